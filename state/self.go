package state

import (
	"fmt"
	"net"
	"net/netip"
)

// OutboundAddr returns the local IPv4 address used to reach the outside world. No traffic is sent.
var OutboundAddr = func() (netip.Addr, error) {
	conn, err := net.Dial("udp4", "8.8.8.8:53")
	if err != nil {
		return netip.Addr{}, err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).AddrPort().Addr().Unmap(), nil
}

// InterfaceAddrs lists the IPv4 addresses assigned to local interfaces
var InterfaceAddrs = func() ([]netip.Addr, error) {
	ifAddrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	addrs := make([]netip.Addr, 0, len(ifAddrs))
	for _, a := range ifAddrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if addr, ok := netip.AddrFromSlice(ipNet.IP); ok && addr.Unmap().Is4() {
			addrs = append(addrs, addr.Unmap())
		}
	}
	return addrs, nil
}

// ResolveSelf determines which topology node this process is. An explicit id wins, otherwise the
// outbound address and then every interface address are matched against the node table. The match
// must be unique.
func ResolveSelf(topo *TopologyCfg, id NodeId) (NodeId, error) {
	if id != NoHop {
		for _, n := range topo.Nodes {
			if n.Id == id {
				return id, nil
			}
		}
		return NoHop, fmt.Errorf("%w: no node with id %d", ErrSelfNotFound, id)
	}

	candidates := make([]netip.Addr, 0)
	if addr, err := OutboundAddr(); err == nil {
		candidates = append(candidates, addr)
	}
	if addrs, err := InterfaceAddrs(); err == nil {
		candidates = append(candidates, addrs...)
	}
	for _, addr := range candidates {
		matches := make([]NodeId, 0)
		for _, n := range topo.Nodes {
			if n.Addr.Addr().Unmap() == addr {
				matches = append(matches, n.Id)
			}
		}
		if len(matches) == 1 {
			return matches[0], nil
		}
		if len(matches) > 1 {
			return NoHop, fmt.Errorf("%w: %s is shared by nodes %v, pass an explicit id", ErrSelfNotFound, addr, matches)
		}
	}
	return NoHop, fmt.Errorf("%w: none of the local addresses %v appear in the topology", ErrSelfNotFound, candidates)
}
