package state

import (
	"maps"
	"net/netip"

	"github.com/gaissmai/bart"
)

// AddrIndex maps the (address, port) pairs of the topology back to node ids. Several routers may
// share one host, so every /32 holds the ports living on it.
type AddrIndex struct {
	table bart.Table[map[uint16]NodeId]
}

func (a *AddrIndex) Insert(addr netip.AddrPort, id NodeId) {
	pfx := netip.PrefixFrom(addr.Addr().Unmap(), 32)
	ports, ok := a.table.Get(pfx)
	if ok {
		ports = maps.Clone(ports)
	} else {
		ports = make(map[uint16]NodeId)
	}
	ports[addr.Port()] = id
	a.table.Insert(pfx, ports)
}

// Resolve returns the node bound to addr. When no node uses that exact port, a host with a single
// node still resolves to it, since replies may leave from an ephemeral port.
func (a *AddrIndex) Resolve(addr netip.AddrPort) (NodeId, bool) {
	ip := addr.Addr().Unmap()
	if !ip.Is4() {
		return NoHop, false
	}
	ports, ok := a.table.Get(netip.PrefixFrom(ip, 32))
	if !ok {
		return NoHop, false
	}
	if id, ok := ports[addr.Port()]; ok {
		return id, true
	}
	if len(ports) == 1 {
		for _, id := range ports {
			return id, true
		}
	}
	return NoHop, false
}
