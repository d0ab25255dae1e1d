package core

import (
	"fmt"
	"net/netip"

	"github.com/encodeous/dvr/perf"
	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
	"github.com/jellydator/ttlcache/v3"
)

// Sender delivers one encoded advertisement to a neighbour
type Sender interface {
	SendTo(addr netip.AddrPort, pkt []byte) error
}

type DvRouter struct {
	*state.State
	// Out defaults to the Transport module
	Out Sender
	// Received counts accepted advertisements since the last packets command
	Received int
	unknown  *ttlcache.Cache[netip.AddrPort, struct{}]
}

func (r *DvRouter) Log(event RouterEvent, desc string, args ...any) {
	r.Env.Log.Debug(fmt.Sprintf("%s %s", event.String(), desc), args...)
}

func (r *DvRouter) Init(s *state.State) error {
	s.Log.Debug("init router")
	r.State = s
	r.unknown = ttlcache.New[netip.AddrPort, struct{}](
		ttlcache.WithTTL[netip.AddrPort, struct{}](state.UnknownSenderLogTTL),
		ttlcache.WithDisableTouchOnHit[netip.AddrPort, struct{}](),
	)

	rs, skipped, err := state.LoadRouterState(&s.Topology, s.LocalCfg.Id)
	if err != nil {
		return err
	}
	s.RouterState = rs
	for _, link := range skipped {
		s.Log.Warn("ignoring link that does not involve this node", "from", link.From, "to", link.To, "cost", link.Cost)
	}
	for _, n := range rs.Neighbours() {
		s.Log.Info("configured neighbour", "node", n.Id, "addr", n.Addr, "cost", n.Cost)
	}

	s.Log.Debug("schedule router tasks")
	s.Env.RepeatTask(func(s *state.State) error {
		r.Tick()
		return nil
	}, s.Interval)
	return nil
}

func (r *DvRouter) Cleanup(s *state.State) error {
	r.unknown.DeleteAll()
	r.State = nil
	return nil
}

func (r *DvRouter) sender() Sender {
	if r.Out == nil {
		r.Out = Get[*Transport](r.State)
	}
	return r.Out
}

// Tick runs once per interval: age neighbours, recompute and advertise.
func (r *DvRouter) Tick() {
	for range TickLiveness(r.RouterState, r) {
		perf.NeighbourDowns.Inc()
	}
	r.recompute()
	r.Broadcast()
	r.unknown.DeleteExpired()
}

func (r *DvRouter) recompute() {
	ComputeRoutes(r.RouterState, r)
	reachable := 0
	for _, n := range r.Nodes {
		if n.Cost != state.INF {
			reachable++
		}
	}
	perf.ReachableNodes.Set(float64(reachable))
}

// Advertisement builds our current distance vector: every node of the topology with our own cost to it.
func (r *DvRouter) Advertisement() *protocol.Advertisement {
	adv := &protocol.Advertisement{
		Sender:  r.Self().Addr,
		Entries: make([]protocol.Entry, 0, len(r.Nodes)),
	}
	for _, e := range r.SelfRow() {
		adv.Entries = append(adv.Entries, protocol.Entry{
			Addr: r.GetNode(e.Id).Addr,
			Id:   uint16(e.Id),
			Cost: uint16(e.Cost),
		})
	}
	return adv
}

// Broadcast sends our distance vector to every live neighbour. Failed sends are logged and not retried,
// the next interval carries the same information.
func (r *DvRouter) Broadcast() {
	pkt, err := protocol.Encode(r.Advertisement())
	if err != nil {
		r.Env.Log.Error("failed to encode advertisement", "error", err)
		return
	}
	out := r.sender()
	for _, n := range r.LiveNeighbours() {
		err := out.SendTo(n.Addr, pkt)
		if err != nil {
			perf.IOErrors.WithLabelValues("send").Inc()
			r.Env.Log.Warn("failed to send advertisement", "node", n.Id, "addr", n.Addr, "error", err)
			continue
		}
		perf.AdvertisementsSent.Inc()
		perf.SentPacketPerSecond.Add(1)
		perf.SentBytesPerSecond.Add(float64(len(pkt)))
	}
}

// HandleDatagram processes one received datagram. Nothing is changed when it cannot be decoded or its
// sender is not part of the topology. The row of any other known sender is stored, but only an
// advertisement from a live neighbour triggers a recomputation.
func (r *DvRouter) HandleDatagram(pkt []byte, from netip.AddrPort) {
	perf.RecvPacketPerSecond.Add(1)
	perf.RecvBytesPerSecond.Add(float64(len(pkt)))

	adv, err := protocol.Decode(pkt)
	if err != nil {
		perf.AdvertisementsDiscarded.WithLabelValues("decode").Inc()
		r.Env.Log.Warn("discarding malformed advertisement", "from", from, "error", err)
		return
	}

	id, ok := r.Resolve(adv.Sender)
	if !ok {
		perf.AdvertisementsDiscarded.WithLabelValues("unknown").Inc()
		if !r.unknown.Has(adv.Sender) {
			r.unknown.Set(adv.Sender, struct{}{}, ttlcache.DefaultTTL)
			r.Env.Log.Warn("discarding advertisement from unknown sender", "sender", adv.Sender, "from", from)
		}
		return
	}
	if id == r.Id {
		perf.AdvertisementsDiscarded.WithLabelValues("self").Inc()
		r.Env.Log.Warn("discarding advertisement carrying our own address", "from", from)
		return
	}

	row := make(map[state.NodeId]state.Cost, len(adv.Entries))
	for _, e := range adv.Entries {
		row[state.NodeId(e.Id)] = state.Cost(e.Cost)
	}
	unknownIds, err := r.ApplyRow(id, row)
	if err != nil {
		perf.AdvertisementsDiscarded.WithLabelValues("apply").Inc()
		r.Env.Log.Warn("failed to apply advertisement", "node", id, "error", err)
		return
	}
	if len(unknownIds) != 0 {
		r.Log(UnknownDestination, "advertisement names nodes outside the topology", "node", id, "ids", unknownIds)
	}

	n := r.GetNode(id)
	if !n.IsNeighbour || !n.IsAlive {
		perf.AdvertisementsDiscarded.WithLabelValues("not_neighbour").Inc()
		r.Log(StaleRow, "stored row from a sender that is not a live neighbour", "node", id)
		r.Env.Log.Info("discarding advertisement, sender is not a neighbour", "node", id)
		return
	}

	r.recompute()
	r.Received++
	ResetOnReceipt(r.RouterState, id)
	perf.AdvertisementsAccepted.Inc()
	r.Env.Log.Debug("accepted advertisement", "node", id, "entries", len(adv.Entries))
}

// UpdateLink changes the cost of the link between self and a neighbour, then advertises right away.
// An INF cost also poisons every destination routed through that neighbour.
func (r *DvRouter) UpdateLink(a, b state.NodeId, cost state.Cost) error {
	err := r.ConfigureLink(a, b, cost)
	if err != nil {
		return err
	}
	neigh := a
	if a == r.Id {
		neigh = b
	}
	if cost == state.INF {
		for _, dep := range r.PoisonVia(neigh) {
			r.Log(RouteLost, "link set to inf", "node", dep, "via", neigh)
		}
	} else {
		r.Log(LinkChanged, "link cost changed", "node", neigh, "cost", cost)
	}
	r.recompute()
	r.Broadcast()
	return nil
}

// DisableNeighbour drops the direct link to id as if it had timed out.
func (r *DvRouter) DisableNeighbour(id state.NodeId) error {
	err := r.MarkNeighbourDown(id)
	if err != nil {
		return err
	}
	perf.NeighbourDowns.Inc()
	r.Log(NeighbourDown, "disabled", "node", id)
	for _, dep := range r.PoisonVia(id) {
		r.Log(RouteLost, "next hop disabled", "node", dep, "via", id)
	}
	r.recompute()
	return nil
}

// TakeReceived returns the accepted advertisement count and resets it
func (r *DvRouter) TakeReceived() int {
	n := r.Received
	r.Received = 0
	return n
}
