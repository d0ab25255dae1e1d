package state

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"strconv"
)

type NodeId uint16

// Cost is a 16-bit link or path cost, INF meaning unreachable.
type Cost uint16

func (c Cost) String() string {
	if c == INF {
		return "inf"
	}
	return strconv.Itoa(int(c))
}

func (id NodeId) String() string {
	if id == NoHop {
		return "-"
	}
	return strconv.Itoa(int(id))
}

var ErrSelfNotFound = errors.New("self was not identified in the topology")

// Node is one router of the topology, including self.
type Node struct {
	Id   NodeId
	Addr netip.AddrPort
	// Cost is the current best known cost from self to this node
	Cost Cost
	// NextHop is the neighbour through which Cost is achieved, NoHop iff Cost is INF
	NextHop     NodeId
	IsNeighbour bool
	IsAlive     bool
	// Missed counts consecutive intervals without an advertisement from this neighbour
	Missed int
}

type RouteEntry struct {
	Id      NodeId
	Cost    Cost
	NextHop NodeId
}

// RouterState holds the node table and the cost matrix. Row i of the matrix is the cost vector last
// advertised by node i, row Id is our own.
type RouterState struct {
	Id     NodeId
	Nodes  []*Node // ordered by id
	index  map[NodeId]int
	matrix []Cost // len(Nodes)^2, row major
	addrs  AddrIndex
}

// NewRouterState allocates the node table and the cost matrix. Every diagonal cell is 0 and every
// other cell is INF.
func NewRouterState(self NodeId, nodes []NodeCfg) (*RouterState, error) {
	if len(nodes) == 0 {
		return nil, errors.New("topology has no nodes")
	}
	s := &RouterState{
		Id:    self,
		Nodes: make([]*Node, 0, len(nodes)),
		index: make(map[NodeId]int, len(nodes)),
	}
	sorted := slices.Clone(nodes)
	slices.SortFunc(sorted, func(a, b NodeCfg) int {
		return int(a.Id) - int(b.Id)
	})
	seen := make(map[netip.AddrPort]NodeId)
	for i, cfg := range sorted {
		if cfg.Id == NoHop {
			return nil, errors.New("node id 0 is reserved")
		}
		if _, ok := s.index[cfg.Id]; ok {
			return nil, fmt.Errorf("duplicate node id %d", cfg.Id)
		}
		if other, ok := seen[cfg.Addr]; ok {
			return nil, fmt.Errorf("nodes %d and %d share the address %s", other, cfg.Id, cfg.Addr)
		}
		seen[cfg.Addr] = cfg.Id
		s.index[cfg.Id] = i
		s.Nodes = append(s.Nodes, &Node{
			Id:      cfg.Id,
			Addr:    cfg.Addr,
			Cost:    INF,
			NextHop: NoHop,
		})
		s.addrs.Insert(cfg.Addr, cfg.Id)
	}
	me := s.GetNode(self)
	if me == nil {
		return nil, fmt.Errorf("%w: no node with id %d", ErrSelfNotFound, self)
	}
	me.Cost = 0
	me.NextHop = self

	n := len(s.Nodes)
	s.matrix = make([]Cost, n*n)
	for i := range n {
		for j := range n {
			if i == j {
				s.matrix[i*n+j] = 0
			} else {
				s.matrix[i*n+j] = INF
			}
		}
	}
	return s, nil
}

// LoadRouterState builds the router state from a parsed topology and configures every link that
// touches self. Links between two other nodes are returned, they carry no meaning for this router.
func LoadRouterState(topo *TopologyCfg, self NodeId) (*RouterState, []LinkCfg, error) {
	s, err := NewRouterState(self, topo.Nodes)
	if err != nil {
		return nil, nil, err
	}
	skipped := make([]LinkCfg, 0)
	for _, link := range topo.Links {
		if link.From != self && link.To != self {
			skipped = append(skipped, link)
			continue
		}
		err = s.ConfigureLink(link.From, link.To, link.Cost)
		if err != nil {
			return nil, nil, err
		}
	}
	return s, skipped, nil
}

func (s *RouterState) GetNode(id NodeId) *Node {
	idx, ok := s.index[id]
	if !ok {
		return nil
	}
	return s.Nodes[idx]
}

func (s *RouterState) Self() *Node {
	return s.GetNode(s.Id)
}

// Cost returns matrix[from][to], INF for unknown ids.
func (s *RouterState) Cost(from, to NodeId) Cost {
	i, ok := s.index[from]
	if !ok {
		return INF
	}
	j, ok := s.index[to]
	if !ok {
		return INF
	}
	return s.matrix[i*len(s.Nodes)+j]
}

// SetSelfCost writes matrix[self][to], the value we advertise for to
func (s *RouterState) SetSelfCost(to NodeId, cost Cost) {
	if s.GetNode(to) == nil || to == s.Id {
		return
	}
	s.setCost(s.Id, to, cost)
}

func (s *RouterState) setCost(from, to NodeId, cost Cost) {
	i := s.index[from]
	j := s.index[to]
	s.matrix[i*len(s.Nodes)+j] = cost
}

// ConfigureLink sets the direct cost between self and a neighbour in both directions, and records the
// neighbour as a live, directly reachable node.
func (s *RouterState) ConfigureLink(from, to NodeId, cost Cost) error {
	if s.GetNode(from) == nil {
		return fmt.Errorf("link %d-%d: unknown node %d", from, to, from)
	}
	if s.GetNode(to) == nil {
		return fmt.Errorf("link %d-%d: unknown node %d", from, to, to)
	}
	if from == to {
		return fmt.Errorf("link %d-%d: self links are always 0", from, to)
	}
	neigh := to
	if to == s.Id {
		neigh = from
	} else if from != s.Id {
		return fmt.Errorf("link %d-%d does not involve self (%d)", from, to, s.Id)
	}

	s.setCost(from, to, cost)
	s.setCost(to, from, cost)

	n := s.GetNode(neigh)
	n.IsNeighbour = true
	n.IsAlive = true
	n.Missed = 0
	n.Cost = cost
	n.NextHop = neigh
	if cost == INF {
		n.NextHop = NoHop
	}
	return nil
}

// ApplyRow overwrites the sender's row with the advertised costs. Ids that are not part of the
// topology are ignored and returned.
func (s *RouterState) ApplyRow(sender NodeId, row map[NodeId]Cost) ([]NodeId, error) {
	if sender == s.Id {
		return nil, errors.New("refusing to overwrite our own cost vector")
	}
	if s.GetNode(sender) == nil {
		return nil, fmt.Errorf("unknown sender %d", sender)
	}
	unknown := make([]NodeId, 0)
	for id, cost := range row {
		if s.GetNode(id) == nil {
			unknown = append(unknown, id)
			continue
		}
		s.setCost(sender, id, cost)
	}
	slices.Sort(unknown)
	return unknown, nil
}

// MarkNeighbourDown removes the direct link to id.
func (s *RouterState) MarkNeighbourDown(id NodeId) error {
	n := s.GetNode(id)
	if n == nil {
		return fmt.Errorf("unknown node %d", id)
	}
	if id == s.Id {
		return errors.New("cannot mark self down")
	}
	n.IsNeighbour = false
	n.IsAlive = false
	n.Cost = INF
	n.NextHop = NoHop
	s.setCost(s.Id, id, INF)
	s.setCost(id, s.Id, INF)
	return nil
}

// Poison makes id unreachable until the next recomputation finds a new path.
func (s *RouterState) Poison(id NodeId) {
	n := s.GetNode(id)
	if n == nil || id == s.Id {
		return
	}
	n.Cost = INF
	n.NextHop = NoHop
	s.setCost(s.Id, id, INF)
}

// PoisonVia poisons every node currently routed through nh, and returns them.
func (s *RouterState) PoisonVia(nh NodeId) []NodeId {
	poisoned := make([]NodeId, 0)
	if nh == NoHop || nh == s.Id {
		return poisoned
	}
	for _, n := range s.Nodes {
		if n.NextHop == nh && n.Id != s.Id {
			s.Poison(n.Id)
			poisoned = append(poisoned, n.Id)
		}
	}
	return poisoned
}

// Neighbours returns every node with a configured direct link
func (s *RouterState) Neighbours() []*Node {
	neighs := make([]*Node, 0)
	for _, n := range s.Nodes {
		if n.IsNeighbour {
			neighs = append(neighs, n)
		}
	}
	return neighs
}

func (s *RouterState) LiveNeighbours() []*Node {
	neighs := make([]*Node, 0)
	for _, n := range s.Nodes {
		if n.IsNeighbour && n.IsAlive {
			neighs = append(neighs, n)
		}
	}
	return neighs
}

// SelfRow is our own cost vector, in node order.
func (s *RouterState) SelfRow() []RouteEntry {
	row := make([]RouteEntry, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		row = append(row, RouteEntry{
			Id:      n.Id,
			Cost:    s.Cost(s.Id, n.Id),
			NextHop: n.NextHop,
		})
	}
	return row
}

// RouteTable returns the reported cost and next hop of every node, ordered by id.
func (s *RouterState) RouteTable() []RouteEntry {
	table := make([]RouteEntry, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		table = append(table, RouteEntry{
			Id:      n.Id,
			Cost:    n.Cost,
			NextHop: n.NextHop,
		})
	}
	return table
}

// Resolve maps an advertised sender address to a node of the topology.
func (s *RouterState) Resolve(addr netip.AddrPort) (NodeId, bool) {
	return s.addrs.Resolve(addr)
}
