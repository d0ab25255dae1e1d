package core

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/encodeous/dvr/perf"
	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
	"golang.org/x/net/ipv4"
)

// Transport owns the UDP socket advertisements are exchanged on
type Transport struct {
	*state.State
	conn *net.UDPConn
	wg   sync.WaitGroup
}

func (t *Transport) Init(s *state.State) error {
	s.Log.Debug("init transport")
	t.State = s

	bind := netip.IPv4Unspecified()
	if s.Bind != "" {
		addr, err := netip.ParseAddr(s.Bind)
		if err != nil {
			return fmt.Errorf("invalid bind address: %w", err)
		}
		bind = addr
	}
	laddr := netip.AddrPortFrom(bind, s.Self().Addr.Port())

	lc := net.ListenConfig{Control: controlSocket}
	pc, err := lc.ListenPacket(s.Context, "udp4", laddr.String())
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", laddr, err)
	}
	t.conn = pc.(*net.UDPConn)

	err = ipv4.NewPacketConn(t.conn).SetTOS(state.DscpNetworkControl)
	if err != nil {
		s.Log.Debug("failed to set dscp on advertisement socket", "error", err)
	}
	s.Log.Info("listening for advertisements", "addr", t.conn.LocalAddr())

	t.wg.Add(1)
	go t.readLoop()
	return nil
}

func (t *Transport) readLoop() {
	defer t.wg.Done()
	buf := make([]byte, protocol.MaxDatagram)
	for {
		n, from, err := t.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || t.Context.Err() != nil {
				return
			}
			perf.IOErrors.WithLabelValues("recv").Inc()
			t.Log.Warn("failed to read datagram", "error", err)
			continue
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		Deliver(t.Env, pkt, from)
	}
}

// Deliver hands a received datagram to the router on the main loop. pkt must not be reused by the caller.
func Deliver(e *state.Env, pkt []byte, from netip.AddrPort) {
	e.Dispatch(func(s *state.State) error {
		Get[*DvRouter](s).HandleDatagram(pkt, from)
		return nil
	})
}

// VirtualNetwork replaces the UDP transport, e.g. with an in-memory network. Attach is called once per
// node during startup and returns the sender used for its advertisements. Datagrams for the node are
// passed to Deliver.
type VirtualNetwork interface {
	Attach(s *state.State) Sender
}

// LocalAddr is the bound address of the socket
func (t *Transport) LocalAddr() netip.AddrPort {
	return t.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

func (t *Transport) SendTo(addr netip.AddrPort, pkt []byte) error {
	_, err := t.conn.WriteToUDPAddrPort(pkt, addr)
	return err
}

func (t *Transport) Cleanup(s *state.State) error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.wg.Wait()
	t.conn = nil
	return err
}
