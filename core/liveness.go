package core

import (
	"github.com/encodeous/dvr/state"
)

// TickLiveness counts one more missed interval for every neighbour. Neighbours reaching
// state.MissedAdvertisementLimit are taken down, and every destination routed through them is
// poisoned right away. ComputeRoutes should run afterwards to find alternative paths.
func TickLiveness(s *state.RouterState, r Router) []state.NodeId {
	down := make([]state.NodeId, 0)
	for _, n := range s.Neighbours() {
		n.Missed++
		if n.Missed < state.MissedAdvertisementLimit {
			continue
		}
		if err := s.MarkNeighbourDown(n.Id); err != nil {
			continue
		}
		r.Log(NeighbourDown, "missed too many advertisements", "node", n.Id, "missed", n.Missed)
		for _, dep := range s.PoisonVia(n.Id) {
			r.Log(RouteLost, "next hop is down", "node", dep, "via", n.Id)
		}
		down = append(down, n.Id)
	}
	return down
}

// ResetOnReceipt clears the missed count of a neighbour we just heard from.
func ResetOnReceipt(s *state.RouterState, id state.NodeId) {
	n := s.GetNode(id)
	if n == nil || !n.IsNeighbour {
		return
	}
	n.Missed = 0
}
