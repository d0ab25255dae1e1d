package state

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"path"
	"path/filepath"
)

func PathValidator(s string) error {
	_, err := os.Stat(path.Dir(s))
	if err != nil {
		return err
	}
	_, err = filepath.Abs(s)
	return err
}

func BindValidator(s string) error {
	_, err := netip.ParseAddr(s)
	return err
}

func NodeConfigValidator(cfg *LocalCfg) error {
	if cfg.TopologyPath == "" {
		return fmt.Errorf("no topology file given")
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", cfg.Interval)
	}
	if cfg.Bind != "" {
		if err := BindValidator(cfg.Bind); err != nil {
			return fmt.Errorf("bind: %w", err)
		}
	}
	if cfg.LogPath != "" {
		if err := PathValidator(cfg.LogPath); err != nil {
			return fmt.Errorf("log path: %w", err)
		}
	}
	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			return fmt.Errorf("metrics address: %w", err)
		}
	}
	return nil
}

// TopologyValidator checks that every link joins two distinct declared nodes, at most once.
func TopologyValidator(topo *TopologyCfg) error {
	if len(topo.Nodes) == 0 {
		return fmt.Errorf("topology has no nodes")
	}
	ids := make(map[NodeId]struct{}, len(topo.Nodes))
	addrs := make(map[netip.AddrPort]NodeId, len(topo.Nodes))
	for _, n := range topo.Nodes {
		if n.Id == NoHop {
			return fmt.Errorf("node id 0 is reserved")
		}
		if _, ok := ids[n.Id]; ok {
			return fmt.Errorf("duplicate node id %d", n.Id)
		}
		if !n.Addr.Addr().Unmap().Is4() {
			return fmt.Errorf("node %d: %s is not an IPv4 address", n.Id, n.Addr)
		}
		if other, ok := addrs[n.Addr]; ok {
			return fmt.Errorf("nodes %d and %d share the address %s", other, n.Id, n.Addr)
		}
		ids[n.Id] = struct{}{}
		addrs[n.Addr] = n.Id
	}
	edges := make(map[Pair[NodeId, NodeId]]struct{}, len(topo.Links))
	for _, l := range topo.Links {
		if _, ok := ids[l.From]; !ok {
			return fmt.Errorf("link %d-%d: node %d not defined", l.From, l.To, l.From)
		}
		if _, ok := ids[l.To]; !ok {
			return fmt.Errorf("link %d-%d: node %d not defined", l.From, l.To, l.To)
		}
		if l.From == l.To {
			return fmt.Errorf("link %d-%d: self links are not allowed", l.From, l.To)
		}
		edge := MakeSortedPair(l.From, l.To)
		if _, ok := edges[edge]; ok {
			return fmt.Errorf("duplicate link found: %d, %d", edge.V1, edge.V2)
		}
		edges[edge] = struct{}{}
	}
	return nil
}
