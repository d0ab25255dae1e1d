package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
	"github.com/stretchr/testify/require"
)

type HarnessEvent struct {
	Event RouterEvent
	Desc  string
	Args  []any
}

// RouterHarness records router events instead of logging them
type RouterHarness struct {
	actions []HarnessEvent
}

func (h *RouterHarness) Log(event RouterEvent, desc string, args ...any) {
	h.actions = append(h.actions, HarnessEvent{Event: event, Desc: desc, Args: args})
}

type HarnessEvents []HarnessEvent

func (h HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range h {
		cur := action.Event.String()
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	slices.Sort(out)
	return strings.Join(out, "\n")
}

func (h *RouterHarness) GetActions() HarnessEvents {
	x := h.actions
	h.actions = make([]HarnessEvent, 0)
	return x
}

// contains matches the event and the value of the "node" attribute
func (e HarnessEvents) contains(event RouterEvent, node state.NodeId) bool {
	for _, ev := range e {
		if ev.Event != event {
			continue
		}
		for i := 0; i+1 < len(ev.Args); i += 2 {
			if ev.Args[i] == "node" && ev.Args[i+1] == node {
				return true
			}
		}
	}
	return false
}

func (e HarnessEvents) AssertContains(t *testing.T, event RouterEvent, node state.NodeId) {
	t.Helper()
	if !e.contains(event, node) {
		t.Fatalf("Expected event not found: %s for node %d in\n%s", event, node, e)
	}
}

func (e HarnessEvents) AssertNotContains(t *testing.T, event RouterEvent, node state.NodeId) {
	t.Helper()
	if e.contains(event, node) {
		t.Fatalf("Unexpected event found: %s for node %d in\n%s", event, node, e)
	}
}

type SentPacket struct {
	To  netip.AddrPort
	Adv *protocol.Advertisement
}

// FakeSender decodes and keeps everything the router sends
type FakeSender struct {
	Sent []SentPacket
	Fail map[netip.AddrPort]error
}

func (f *FakeSender) SendTo(addr netip.AddrPort, pkt []byte) error {
	if err, ok := f.Fail[addr]; ok {
		return err
	}
	adv, err := protocol.Decode(pkt)
	if err != nil {
		return err
	}
	f.Sent = append(f.Sent, SentPacket{To: addr, Adv: adv})
	return nil
}

func (f *FakeSender) Take() []SentPacket {
	x := f.Sent
	f.Sent = nil
	return x
}

func nodeAddr(id state.NodeId) netip.AddrPort {
	return netip.MustParseAddrPort(fmt.Sprintf("127.0.0.%d:%d", id, 4000+int(id)))
}

// MakeTopology declares nodes 1..n and the given links as (from, to, cost) triples
func MakeTopology(n int, links ...[3]int) state.TopologyCfg {
	topo := state.TopologyCfg{}
	for i := 1; i <= n; i++ {
		topo.Nodes = append(topo.Nodes, state.NodeCfg{Id: state.NodeId(i), Addr: nodeAddr(state.NodeId(i))})
	}
	for _, l := range links {
		topo.Links = append(topo.Links, state.LinkCfg{From: state.NodeId(l[0]), To: state.NodeId(l[1]), Cost: state.Cost(l[2])})
	}
	return topo
}

// costMatrix copies every cell of the cost matrix, rows and columns in node order
func costMatrix(s *state.State) [][]state.Cost {
	m := make([][]state.Cost, 0, len(s.Nodes))
	for _, from := range s.Nodes {
		row := make([]state.Cost, 0, len(s.Nodes))
		for _, to := range s.Nodes {
			row = append(row, s.Cost(from.Id, to.Id))
		}
		m = append(m, row)
	}
	return m
}

func nodeValues(s *state.State) []state.Node {
	nodes := make([]state.Node, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		nodes = append(nodes, *n)
	}
	return nodes
}

var testDispatch sync.Map

// dispatchOf returns the receiving end of a test router's dispatch channel
func dispatchOf(s *state.State) chan func(*state.State) error {
	ch, _ := testDispatch.Load(s)
	return ch.(chan func(*state.State) error)
}

// NewTestRouter initializes a router module without any sockets. Ticks only happen through the returned
// mock clock or by calling Tick directly.
func NewTestRouter(t *testing.T, self state.NodeId, topo state.TopologyCfg) (*state.State, *DvRouter, *FakeSender, *clock.Mock) {
	t.Helper()
	ctx, cancel := context.WithCancelCause(context.Background())
	t.Cleanup(func() { cancel(nil) })
	mock := clock.NewMock()
	dispatch := make(chan func(*state.State) error, 128)
	s := &state.State{
		Modules: make(map[string]state.Module),
		Env: &state.Env{
			DispatchChannel: dispatch,
			LocalCfg: state.LocalCfg{
				Id:       self,
				Interval: 5 * time.Second,
			},
			Topology: topo,
			Context:  ctx,
			Cancel:   cancel,
			Log:      slog.New(slog.DiscardHandler),
			Clock:    mock,
		},
	}
	out := &FakeSender{}
	r := &DvRouter{Out: out}
	s.Modules["*core.DvRouter"] = r
	testDispatch.Store(s, dispatch)
	t.Cleanup(func() { testDispatch.Delete(s) })
	require.NoError(t, r.Init(s))
	return s, r, out, mock
}

// Advertise feeds the router an advertisement from one of its peers. Nodes missing from costs are
// advertised as unreachable.
func Advertise(r *DvRouter, from state.NodeId, costs map[state.NodeId]state.Cost) {
	adv := &protocol.Advertisement{Sender: nodeAddr(from)}
	for _, n := range r.Nodes {
		cost, ok := costs[n.Id]
		if !ok {
			cost = state.INF
			if n.Id == from {
				cost = 0
			}
		}
		adv.Entries = append(adv.Entries, protocol.Entry{Addr: n.Addr, Id: uint16(n.Id), Cost: uint16(cost)})
	}
	pkt, err := protocol.Encode(adv)
	if err != nil {
		panic(err)
	}
	r.HandleDatagram(pkt, nodeAddr(from))
}
