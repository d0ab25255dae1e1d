package cmd

import (
	"fmt"

	"github.com/encodeous/dvr/state"
	"github.com/spf13/cobra"
)

// loadConfig reads the node config, if any, and applies command line overrides on top of it
func loadConfig(cmd *cobra.Command) (*state.LocalCfg, error) {
	cfg := &state.LocalCfg{Interval: state.DefaultUpdateInterval}
	flags := cmd.Flags()

	if path, _ := flags.GetString("config"); path != "" {
		fileCfg, err := state.ReadLocalConfig(path)
		if err != nil {
			return nil, err
		}
		interval := cfg.Interval
		cfg = fileCfg
		if cfg.Interval == 0 {
			cfg.Interval = interval
		}
	}

	if flags.Changed("topology") {
		cfg.TopologyPath, _ = flags.GetString("topology")
	}
	if flags.Changed("id") {
		id, _ := flags.GetUint16("id")
		cfg.Id = state.NodeId(id)
	}
	if flags.Lookup("interval") != nil && flags.Changed("interval") {
		raw, _ := flags.GetString("interval")
		interval, err := state.ParseInterval(raw)
		if err != nil {
			return nil, err
		}
		cfg.Interval = interval
	}
	if flags.Lookup("bind") != nil && flags.Changed("bind") {
		cfg.Bind, _ = flags.GetString("bind")
	}
	if flags.Lookup("log") != nil && flags.Changed("log") {
		cfg.LogPath, _ = flags.GetString("log")
	}
	if flags.Lookup("metrics") != nil && flags.Changed("metrics") {
		cfg.MetricsAddr, _ = flags.GetString("metrics")
	}
	return cfg, nil
}

func loadTopology(cfg *state.LocalCfg) (*state.TopologyCfg, error) {
	if cfg.TopologyPath == "" {
		return nil, fmt.Errorf("no topology file given, use -t")
	}
	topo, err := state.ReadTopology(cfg.TopologyPath)
	if err != nil {
		return nil, err
	}
	err = state.TopologyValidator(topo)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.TopologyPath, err)
	}
	return topo, nil
}
