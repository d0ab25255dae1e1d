package core

import (
	"github.com/encodeous/dvr/state"
)

type RouterEvent int

// trace events

const (
	RouteImproved RouterEvent = iota
	RouteChanged
	RoutePoisoned
	RouteLost
	NeighbourDown
	LinkChanged
)

// warn events

const (
	UnknownDestination RouterEvent = iota + 1000
	StaleRow
)

func (e RouterEvent) String() string {
	switch e {
	case RouteImproved:
		return "RouteImproved"
	case RouteChanged:
		return "RouteChanged"
	case RoutePoisoned:
		return "RoutePoisoned"
	case RouteLost:
		return "RouteLost"
	case NeighbourDown:
		return "NeighbourDown"
	case LinkChanged:
		return "LinkChanged"
	case UnknownDestination:
		return "UnknownDestination"
	case StaleRow:
		return "StaleRow"
	default:
		return "RouterEvent(?)"
	}
}

// Router is an interface that defines the underlying router operations
type Router interface {
	Log(event RouterEvent, desc string, args ...any)
}

// ComputeRoutes runs one Bellman-Ford relaxation over the cost matrix. For every destination d, the
// candidates are matrix[k][d] + cost(k) for each live neighbour k, starting from our previously
// advertised matrix[self][d].
//
// If the current next hop of d now advertises d as unreachable, d is poisoned before the scan, so it
// only stays reachable if some other neighbour offers a path. This does not implement split horizon,
// so loops of three or more hops can still count to infinity.
func ComputeRoutes(s *state.RouterState, r Router) {
	neighs := s.LiveNeighbours()
	for _, d := range s.Nodes {
		if d.Id == s.Id {
			continue
		}
		oldCost, oldNh := d.Cost, d.NextHop

		best := s.Cost(s.Id, d.Id)
		nh := d.NextHop
		if nh != state.NoHop && nh != s.Id && s.Cost(nh, d.Id) == state.INF {
			best = state.INF
			nh = state.NoHop
		}
		if best == state.INF {
			nh = state.NoHop
		}

		for _, k := range neighs {
			candidate := AddMetric(s.Cost(k.Id, d.Id), k.Cost)
			if candidate == state.INF {
				continue
			}
			if candidate < best {
				best = candidate
				nh = k.Id
			}
		}

		d.Cost = best
		d.NextHop = nh
		s.SetSelfCost(d.Id, best)

		switch {
		case best == oldCost && nh == oldNh:
		case best == state.INF:
			if oldCost != state.INF {
				r.Log(RoutePoisoned, "no path left", "node", d.Id, "via", oldNh)
			}
		case oldCost == state.INF:
			r.Log(RouteImproved, "new path", "node", d.Id, "cost", best, "via", nh)
		default:
			r.Log(RouteChanged, "path changed", "node", d.Id, "cost", best, "via", nh, "old_cost", oldCost, "old_via", oldNh)
		}
	}
}
