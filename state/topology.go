package state

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"strconv"
	"strings"
)

// NodeCfg is one "id address port" line of the topology file
type NodeCfg struct {
	Id   NodeId
	Addr netip.AddrPort
}

// LinkCfg is one "from to cost" line of the topology file
type LinkCfg struct {
	From NodeId
	To   NodeId
	Cost Cost
}

// TopologyCfg is the parsed topology file. The file is laid out as:
//
//	<number of nodes>
//	<number of links>
//	<id> <address> <port>   (once per node)
//	<from> <to> <cost>      (once per link)
//
// Blank lines and lines starting with # are skipped.
type TopologyCfg struct {
	Nodes []NodeCfg
	Links []LinkCfg
}

// LookupHost resolves a hostname of the topology file to an IPv4 address
var LookupHost = func(host string) (netip.Addr, error) {
	addrs, err := net.DefaultResolver.LookupNetIP(context.Background(), "ip4", host)
	if err != nil {
		return netip.Addr{}, err
	}
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("%s has no IPv4 address", host)
	}
	return addrs[0].Unmap(), nil
}

func ReadTopology(path string) (*TopologyCfg, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	topo, err := ParseTopology(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return topo, nil
}

func ParseTopology(r io.Reader) (*TopologyCfg, error) {
	sc := bufio.NewScanner(r)
	lineNo := 0
	next := func() ([]string, error) {
		for sc.Scan() {
			lineNo++
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			return strings.Fields(line), nil
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, io.ErrUnexpectedEOF
	}
	count := func(what string) (int, error) {
		fields, err := next()
		if err != nil {
			return 0, fmt.Errorf("reading %s: %w", what, err)
		}
		if len(fields) != 1 {
			return 0, fmt.Errorf("line %d: expected %s, got %q", lineNo, what, strings.Join(fields, " "))
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil || n < 0 {
			return 0, fmt.Errorf("line %d: invalid %s %q", lineNo, what, fields[0])
		}
		return n, nil
	}

	numNodes, err := count("node count")
	if err != nil {
		return nil, err
	}
	numLinks, err := count("link count")
	if err != nil {
		return nil, err
	}

	topo := &TopologyCfg{
		Nodes: make([]NodeCfg, 0, numNodes),
		Links: make([]LinkCfg, 0, numLinks),
	}
	for range numNodes {
		fields, err := next()
		if err != nil {
			return nil, fmt.Errorf("reading node: %w", err)
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: expected <id> <address> <port>", lineNo)
		}
		id, err := ParseNodeId(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		addr, err := parseHost(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		port, err := strconv.ParseUint(fields[2], 10, 16)
		if err != nil || port == 0 {
			return nil, fmt.Errorf("line %d: invalid port %q", lineNo, fields[2])
		}
		topo.Nodes = append(topo.Nodes, NodeCfg{
			Id:   id,
			Addr: netip.AddrPortFrom(addr, uint16(port)),
		})
	}
	for range numLinks {
		fields, err := next()
		if err != nil {
			return nil, fmt.Errorf("reading link: %w", err)
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: expected <from> <to> <cost>", lineNo)
		}
		from, err := ParseNodeId(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		to, err := ParseNodeId(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		cost, err := ParseCost(fields[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		topo.Links = append(topo.Links, LinkCfg{From: from, To: to, Cost: cost})
	}
	return topo, nil
}

func parseHost(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		addr, err = LookupHost(s)
		if err != nil {
			return netip.Addr{}, fmt.Errorf("resolving %s: %w", s, err)
		}
	}
	addr = addr.Unmap()
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%s is not an IPv4 address", s)
	}
	return addr, nil
}

// ParseNodeId parses a positive 16-bit node id
func ParseNodeId(s string) (NodeId, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil || v == 0 {
		return NoHop, fmt.Errorf("invalid node id %q", s)
	}
	return NodeId(v), nil
}

// ParseCost accepts an integer below INF, or "inf" in any case.
func ParseCost(s string) (Cost, error) {
	if strings.EqualFold(s, "inf") {
		return INF, nil
	}
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil || v > uint64(INFM) {
		return INF, fmt.Errorf("invalid cost %q, must be between 0 and %d or inf", s, INFM)
	}
	return Cost(v), nil
}
