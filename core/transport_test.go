package core

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freePort finds a loopback UDP port that is not in use right now
func freePort(t *testing.T) uint16 {
	t.Helper()
	c, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := c.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, c.Close())
	return uint16(port)
}

func TestTransportExchange(t *testing.T) {
	peer, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peer.Close()
	peerAddr := peer.LocalAddr().(*net.UDPAddr).AddrPort()
	selfAddr := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), freePort(t))

	topo := state.TopologyCfg{
		Nodes: []state.NodeCfg{{Id: 1, Addr: selfAddr}, {Id: 2, Addr: peerAddr}},
		Links: []state.LinkCfg{{From: 1, To: 2, Cost: 3}},
	}
	s, r, _, _ := NewTestRouter(t, 1, topo)
	s.Bind = "127.0.0.1"

	tr := &Transport{}
	s.Modules["*core.Transport"] = tr
	require.NoError(t, tr.Init(s))
	assert.Equal(t, selfAddr, tr.LocalAddr())
	r.Out = nil

	// inbound datagrams are handed to the router on the main loop
	pkt, err := protocol.Encode(&protocol.Advertisement{
		Sender:  peerAddr,
		Entries: []protocol.Entry{{Addr: selfAddr, Id: 1, Cost: 3}, {Addr: peerAddr, Id: 2, Cost: 0}},
	})
	require.NoError(t, err)
	_, err = peer.WriteToUDPAddrPort(pkt, selfAddr)
	require.NoError(t, err)

	select {
	case f := <-dispatchOf(s):
		require.NoError(t, f(s))
	case <-time.After(5 * time.Second):
		t.Fatal("datagram was not dispatched")
	}
	assert.Equal(t, 1, r.Received)

	// outbound advertisements go through the transport by default
	r.Broadcast()
	buf := make([]byte, protocol.MaxDatagram)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, from, err := peer.ReadFromUDPAddrPort(buf)
	require.NoError(t, err)
	assert.Equal(t, selfAddr, from)

	adv, err := protocol.Decode(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, selfAddr, adv.Sender)
	require.Len(t, adv.Entries, 2)
	assert.Equal(t, uint16(3), adv.Entries[1].Cost)

	require.NoError(t, tr.Cleanup(s))
	require.NoError(t, tr.Cleanup(s))
}

func TestTransportRejectsBadBind(t *testing.T) {
	s, _, _, _ := NewTestRouter(t, 1, MakeTopology(2, [3]int{1, 2, 1}))
	s.Bind = "not-an-address"
	tr := &Transport{}
	assert.Error(t, tr.Init(s))
	assert.NoError(t, tr.Cleanup(s))
}
