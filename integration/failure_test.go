package integration

import (
	"testing"
	"time"

	"github.com/encodeous/dvr/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkCutFailsOver(t *testing.T) {
	//    1
	//  1/ \2
	//  2   4
	//  1\ /1
	//    3
	vh := &VirtualHarness{}
	for i := 1; i <= 4; i++ {
		vh.NewNode(state.NodeId(i))
	}
	vh.Connect(1, 2, 1)
	vh.Connect(2, 3, 1)
	vh.Connect(1, 4, 2)
	vh.Connect(4, 3, 1)
	startHarness(t, vh)

	requireRoutes(t, vh, 1, []state.RouteEntry{route(1, 0, 1), route(2, 1, 2), route(3, 2, 2), route(4, 2, 4)})
	requireRoutes(t, vh, 4, []state.RouteEntry{route(1, 2, 1), route(2, 2, 3), route(3, 1, 3), route(4, 0, 4)})

	// 1 stops hearing from 2 and moves everything behind it to 4
	vh.Cut(1, 2)
	requireRoutes(t, vh, 1, []state.RouteEntry{route(1, 0, 1), route(2, 4, 4), route(3, 3, 4), route(4, 2, 4)})

	out, err := vh.Command(1, "disable 2")
	require.NoError(t, err)
	assert.Equal(t, "disable: Server 2 is not a neighbor\n", out)
}

func TestCrashedNeighbourTimesOut(t *testing.T) {
	vh := &VirtualHarness{}
	vh.NewNode(1)
	vh.NewNode(2)
	vh.Connect(1, 2, 3)
	startHarness(t, vh)

	requireRoutes(t, vh, 1, []state.RouteEntry{route(1, 0, 1), route(2, 3, 2)})
	require.NoError(t, vh.Crash(2))
	requireRoutes(t, vh, 1, []state.RouteEntry{route(1, 0, 1), route(2, state.INF, state.NoHop)})
}

func TestUpdateCommand(t *testing.T) {
	vh := &VirtualHarness{}
	for i := 1; i <= 3; i++ {
		vh.NewNode(state.NodeId(i))
	}
	vh.Connect(1, 2, 1)
	vh.Connect(2, 3, 1)
	startHarness(t, vh)
	requireRoutes(t, vh, 1, []state.RouteEntry{route(1, 0, 1), route(2, 1, 2), route(3, 2, 2)})

	out, err := vh.Command(1, "update 1 2 inf")
	require.NoError(t, err)
	require.Equal(t, "update SUCCESS\n", out)
	unreachable := []state.RouteEntry{route(1, 0, 1), route(2, state.INF, state.NoHop), route(3, state.INF, state.NoHop)}
	requireRoutes(t, vh, 1, unreachable)

	// 2 keeps advertising, but a link at inf is never used
	time.Sleep(5 * vh.Interval)
	requireRoutes(t, vh, 1, unreachable)

	out, err = vh.Command(1, "update 2 1 4")
	require.NoError(t, err)
	require.Equal(t, "update SUCCESS\n", out)
	requireRoutes(t, vh, 1, []state.RouteEntry{route(1, 0, 1), route(2, 4, 2), route(3, 5, 2)})
}

func TestDisableCommand(t *testing.T) {
	vh := &VirtualHarness{}
	vh.NewNode(1)
	vh.NewNode(2)
	vh.Connect(1, 2, 1)
	startHarness(t, vh)
	requireRoutes(t, vh, 1, []state.RouteEntry{route(1, 0, 1), route(2, 1, 2)})

	out, err := vh.Command(1, "disable 2")
	require.NoError(t, err)
	require.Equal(t, "disable SUCCESS\n", out)
	_, err = vh.Command(1, "packets")
	require.NoError(t, err)

	// advertisements from 2 are now discarded
	time.Sleep(5 * vh.Interval)
	requireRoutes(t, vh, 1, []state.RouteEntry{route(1, 0, 1), route(2, state.INF, state.NoHop)})
	out, err = vh.Command(1, "packets")
	require.NoError(t, err)
	assert.Equal(t, "Number of packets received 0\npackets SUCCESS\n", out)
}
