package cmd

import (
	"errors"
	"log/slog"
	"os"

	"github.com/encodeous/dvr/core"
	"github.com/encodeous/dvr/state"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a router",
	Long: `This will run one router of the topology on the current host. Commands are read from stdin:

  update <server-id1> <server-id2> <cost|inf>
  step
  packets
  display
  disable <server-id>
  crash`,
	Example: "  dvr run -t topology.txt -i 5",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		err = state.NodeConfigValidator(cfg)
		if err != nil {
			return err
		}
		topo, err := loadTopology(cfg)
		if err != nil {
			return err
		}

		level := slog.LevelInfo
		if ok, _ := cmd.Flags().GetBool("verbose"); ok {
			level = slog.LevelDebug
		}

		cmd.SilenceUsage = true
		err = core.Start(*topo, *cfg, level, os.Stdin, os.Stdout, nil, nil)
		if errors.Is(err, state.ErrSelfNotFound) {
			return errors.Join(err, errors.New("use --id to pick the router explicitly"))
		}
		return err
	},
	GroupID: "dvr",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("interval", "i", "5", "advertisement interval, in seconds or as a duration (500ms)")
	runCmd.Flags().StringP("bind", "b", "", "address to bind the advertisement socket to")
	runCmd.Flags().StringP("log", "l", "", "also write logs to this file")
	runCmd.Flags().String("metrics", "", "serve metrics on this address, e.g. 127.0.0.1:9100")
	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
}
