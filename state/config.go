package state

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
)

// LocalCfg represents local node-level configuration. Every field may be overridden on the command line.
type LocalCfg struct {
	Id           NodeId        `yaml:"id,omitempty"`           // if zero, self is found by matching local addresses against the topology
	TopologyPath string        `yaml:"topology,omitempty"`     // path to the topology file
	Interval     time.Duration `yaml:"interval,omitempty"`     // advertisement interval
	Bind         string        `yaml:"bind,omitempty"`         // bind address for the advertisement socket, defaults to all interfaces
	LogPath      string        `yaml:"log_path,omitempty"`     // if not empty, logs are also written to this file
	MetricsAddr  string        `yaml:"metrics_addr,omitempty"` // if not empty, metrics are served on this address
}

// UnmarshalYAML reads interval the same way as the command line: bare seconds or a duration string.
func (c *LocalCfg) UnmarshalYAML(unmarshal func(any) error) error {
	var raw struct {
		Id           NodeId `yaml:"id,omitempty"`
		TopologyPath string `yaml:"topology,omitempty"`
		Interval     any    `yaml:"interval,omitempty"`
		Bind         string `yaml:"bind,omitempty"`
		LogPath      string `yaml:"log_path,omitempty"`
		MetricsAddr  string `yaml:"metrics_addr,omitempty"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*c = LocalCfg{
		Id:           raw.Id,
		TopologyPath: raw.TopologyPath,
		Bind:         raw.Bind,
		LogPath:      raw.LogPath,
		MetricsAddr:  raw.MetricsAddr,
	}
	if raw.Interval != nil {
		interval, err := ParseInterval(fmt.Sprint(raw.Interval))
		if err != nil {
			return err
		}
		c.Interval = interval
	}
	return nil
}

func ReadLocalConfig(path string) (*LocalCfg, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg LocalCfg
	err = yaml.Unmarshal(file, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// ParseInterval accepts a whole number of seconds or a Go duration string
func ParseInterval(s string) (time.Duration, error) {
	if secs, err := strconv.ParseUint(s, 10, 32); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: expected seconds or a duration such as 500ms", s)
	}
	return d, nil
}
