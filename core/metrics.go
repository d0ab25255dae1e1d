package core

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/encodeous/dvr/state"
)

// MetricsServer serves /metrics, /debug/metrics and /debug/vars when a metrics address is configured
type MetricsServer struct {
	srv  *http.Server
	done chan struct{}
}

func (m *MetricsServer) Init(s *state.State) error {
	if s.MetricsAddr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", s.MetricsAddr)
	if err != nil {
		return err
	}
	m.srv = &http.Server{
		Handler:           http.DefaultServeMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.done = make(chan struct{})
	s.Log.Info("serving metrics", "addr", ln.Addr())
	go func() {
		defer close(m.done)
		err := m.srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Log.Warn("metrics server stopped", "error", err)
		}
	}()
	return nil
}

func (m *MetricsServer) Cleanup(s *state.State) error {
	if m.srv == nil {
		return nil
	}
	err := m.srv.Close()
	<-m.done
	return err
}
