package state

import (
	"math"
	"time"
)

const (
	// INF is the reserved cost meaning "unreachable".
	INF = Cost(math.MaxUint16)
	// INFM is the maximum value for a cost that is not a retraction.
	INFM = INF - 1
	// NoHop is the next hop of an unreachable node. Node ids are always positive.
	NoHop = NodeId(0)
)

var (
	// MissedAdvertisementLimit is the number of consecutive silent intervals after which a neighbour is dropped
	MissedAdvertisementLimit = 3
	DefaultUpdateInterval    = time.Second * 5
	// UnknownSenderLogTTL limits how often a datagram from an unknown address is reported
	UnknownSenderLogTTL = time.Second * 30
	// DispatchWarnThreshold is how long a single main loop dispatch may run before it is logged
	DispatchWarnThreshold = time.Millisecond * 4
	// DscpNetworkControl marks advertisements as CS6 traffic
	DscpNetworkControl = 0xc0
)
