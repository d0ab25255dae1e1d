package integration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/netip"
	"runtime/pprof"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/encodeous/dvr/core"
	"github.com/encodeous/dvr/state"
)

// VirtualLink carries datagrams in one direction between two nodes
type VirtualLink struct {
	Edge       state.Pair[state.NodeId, state.NodeId]
	Latency    time.Duration
	Jitter     time.Duration
	PacketLoss float64
}

func (v *VirtualLink) simulate(pkt []byte, to *state.State, from netip.AddrPort, i *InMemoryNetwork) {
	if rand.Float64() < v.PacketLoss {
		i.dropped.Add(1)
		return
	}
	lat := v.Latency
	if v.Jitter != 0 {
		lat += time.Duration(rand.Float64() * float64(v.Jitter.Nanoseconds()))
	}
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		select {
		case <-i.cfg.Context.Done():
			return
		case <-time.After(lat):
			core.Deliver(to.Env, pkt, from)
		}
	}()
}

// Duplex is the pair of links created by Connect
type Duplex [2]*VirtualLink

func (d Duplex) WithLatency(lat, jitter time.Duration) Duplex {
	for _, l := range d {
		l.Latency = lat
		l.Jitter = jitter
	}
	return d
}

func (d Duplex) WithPacketLoss(loss float64) Duplex {
	for _, l := range d {
		l.PacketLoss = loss
	}
	return d
}

type virtualNode struct {
	in   *io.PipeWriter
	done chan error
}

type VirtualHarness struct {
	Topology state.TopologyCfg
	Interval time.Duration
	Context  context.Context
	Cancel   context.CancelCauseFunc
	Net      *InMemoryNetwork
	Links    []*VirtualLink
	nodes    map[state.NodeId]*virtualNode
}

func NodeAddr(id state.NodeId) netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4([4]byte{10, 0, byte(id >> 8), byte(id)}), 4000)
}

func (v *VirtualHarness) NewNode(id state.NodeId) {
	v.Topology.Nodes = append(v.Topology.Nodes, state.NodeCfg{Id: id, Addr: NodeAddr(id)})
}

// AddLink lets datagrams flow from one node to another, it does not configure a topology link
func (v *VirtualHarness) AddLink(from, to state.NodeId) *VirtualLink {
	link := &VirtualLink{Edge: state.Pair[state.NodeId, state.NodeId]{V1: from, V2: to}}
	if v.Net != nil {
		v.Net.Lock()
		defer v.Net.Unlock()
	}
	v.Links = append(v.Links, link)
	return link
}

// Connect declares a topology link between a and b and carries datagrams both ways
func (v *VirtualHarness) Connect(a, b state.NodeId, cost state.Cost) Duplex {
	v.Topology.Links = append(v.Topology.Links, state.LinkCfg{From: a, To: b, Cost: cost})
	return Duplex{v.AddLink(a, b), v.AddLink(b, a)}
}

// Cut drops every datagram between a and b from now on. The topology is left as is.
func (v *VirtualHarness) Cut(a, b state.NodeId) {
	v.Net.Lock()
	defer v.Net.Unlock()
	v.Links = slices.DeleteFunc(v.Links, func(l *VirtualLink) bool {
		return (l.Edge.V1 == a && l.Edge.V2 == b) || (l.Edge.V1 == b && l.Edge.V2 == a)
	})
}

func (v *VirtualHarness) Start() chan error {
	ctx, cancel := context.WithCancelCause(context.Background())
	v.Context = ctx
	v.Cancel = cancel
	if v.Interval == 0 {
		v.Interval = 50 * time.Millisecond
	}
	errChan := make(chan error, 128)
	vn := &InMemoryNetwork{
		cfg:    v,
		states: make(map[state.NodeId]*state.State),
	}
	v.Net = vn
	v.nodes = make(map[state.NodeId]*virtualNode)

	for _, nc := range v.Topology.Nodes {
		pr, pw := io.Pipe()
		node := &virtualNode{in: pw, done: make(chan error, 1)}
		v.nodes[nc.Id] = node
		lcfg := state.LocalCfg{Id: nc.Id, Interval: v.Interval}
		go func() {
			labels := pprof.Labels("dvr node", nc.Id.String())
			pprof.Do(context.Background(), labels, func(_ context.Context) {
				err := core.Start(v.Topology, lcfg, slog.LevelWarn, pr, io.Discard, map[string]any{
					"vnet": vn,
				}, nil)
				node.done <- err
				if err != nil {
					errChan <- fmt.Errorf("node %d: %w", nc.Id, err)
				}
			})
		}()
	}

	// wait for all routers to start
	for {
		if vn.started(len(v.Topology.Nodes)) {
			break
		}
		select {
		case <-ctx.Done():
			return errChan
		case <-time.After(time.Millisecond * 10):
		case err := <-errChan:
			errChan <- err
			return errChan
		}
	}
	return errChan
}

// Command runs one control command on a node's main loop and returns its output
func (v *VirtualHarness) Command(id state.NodeId, line string) (string, error) {
	s := v.Net.State(id)
	if s == nil {
		return "", fmt.Errorf("node %d is not running", id)
	}
	res, err := s.DispatchWait(func(s *state.State) (any, error) {
		return core.RunCommand(s, line), nil
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

// Routes returns the route table of a node
func (v *VirtualHarness) Routes(id state.NodeId) ([]state.RouteEntry, error) {
	s := v.Net.State(id)
	if s == nil {
		return nil, fmt.Errorf("node %d is not running", id)
	}
	res, err := s.DispatchWait(func(s *state.State) (any, error) {
		return s.RouteTable(), nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]state.RouteEntry), nil
}

// Crash types crash into the node's console and waits for it to exit
func (v *VirtualHarness) Crash(id state.NodeId) error {
	node := v.nodes[id]
	_, _ = io.WriteString(node.in, "crash\n")
	select {
	case err := <-node.done:
		node.done <- err
		v.Net.detach(id)
		return err
	case <-time.After(10 * time.Second):
		return fmt.Errorf("node %d did not stop", id)
	}
}

func (v *VirtualHarness) Stop() error {
	var errs []error
	for _, nc := range v.Topology.Nodes {
		err := v.Crash(nc.Id)
		if err != nil {
			errs = append(errs, err)
		}
		_ = v.nodes[nc.Id].in.Close()
	}
	v.Cancel(errors.New("stopping harness"))
	v.Net.wg.Wait()
	return errors.Join(errs...)
}

// InMemoryNetwork delivers advertisements between the nodes of a harness over its virtual links
type InMemoryNetwork struct {
	sync.Mutex
	cfg     *VirtualHarness
	states  map[state.NodeId]*state.State
	wg      sync.WaitGroup
	dropped atomic.Int64
}

func (i *InMemoryNetwork) Attach(s *state.State) core.Sender {
	i.Lock()
	defer i.Unlock()
	i.states[s.LocalCfg.Id] = s
	return &virtualSender{net: i, from: s.LocalCfg.Id}
}

func (i *InMemoryNetwork) detach(id state.NodeId) {
	i.Lock()
	defer i.Unlock()
	delete(i.states, id)
}

func (i *InMemoryNetwork) State(id state.NodeId) *state.State {
	i.Lock()
	defer i.Unlock()
	return i.states[id]
}

func (i *InMemoryNetwork) started(n int) bool {
	i.Lock()
	defer i.Unlock()
	if len(i.states) != n {
		return false
	}
	for _, s := range i.states {
		if !s.Started.Load() {
			return false
		}
	}
	return true
}

// Dropped counts datagrams lost to simulated packet loss
func (i *InMemoryNetwork) Dropped() int64 {
	return i.dropped.Load()
}

type virtualSender struct {
	net  *InMemoryNetwork
	from state.NodeId
}

func (v *virtualSender) SendTo(addr netip.AddrPort, pkt []byte) error {
	i := v.net
	i.Lock()
	defer i.Unlock()
	idx := slices.IndexFunc(i.cfg.Topology.Nodes, func(n state.NodeCfg) bool {
		return n.Addr == addr
	})
	if idx == -1 {
		return fmt.Errorf("no route to %s", addr)
	}
	to := i.cfg.Topology.Nodes[idx].Id
	dst, ok := i.states[to]
	if !ok {
		return nil // nobody is listening, the datagram is lost
	}
	li := slices.IndexFunc(i.cfg.Links, func(l *VirtualLink) bool {
		return l.Edge.V1 == v.from && l.Edge.V2 == to
	})
	if li == -1 {
		return nil // no connection, dropped packet
	}
	i.cfg.Links[li].simulate(slices.Clone(pkt), dst, NodeAddr(v.from), i)
	return nil
}
