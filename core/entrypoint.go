package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"reflect"
	"runtime"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/encodeous/dvr/perf"
	"github.com/encodeous/dvr/state"
	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
	"go.uber.org/multierr"
	"gopkg.in/natefinch/lumberjack.v2"
)

var ErrShutdown = errors.New("received shutdown signal")

// Start runs the router until it is crashed or signalled. Commands are read from in and answered on out.
// aux may carry a "clock" (clock.Clock) and a "vnet" (VirtualNetwork) in place of the real ones.
func Start(topo state.TopologyCfg, lcfg state.LocalCfg, logLevel slog.Level, in io.Reader, out io.Writer, aux map[string]any, initState **state.State) error {
	id, err := state.ResolveSelf(&topo, lcfg.Id)
	if err != nil {
		return err
	}
	lcfg.Id = id
	clk, ok := aux["clock"].(clock.Clock)
	if !ok {
		clk = clock.New()
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	dispatch := make(chan func(env *state.State) error, 128)

	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        logLevel,
			AddSource:    false,
			CustomPrefix: id.String(),
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))

	if lcfg.LogPath != "" {
		err := os.MkdirAll(path.Dir(lcfg.LogPath), 0700)
		if err != nil {
			return err
		}
		f := &lumberjack.Logger{
			Filename:   lcfg.LogPath,
			MaxSize:    10,
			MaxBackups: 3,
		}
		defer f.Close()
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: logLevel}))
	}

	logger := slog.New(
		slogmulti.Fanout(handlers...))

	s := state.State{
		Modules: make(map[string]state.Module),
		Env: &state.Env{
			Context:         ctx,
			Cancel:          cancel,
			DispatchChannel: dispatch,
			LocalCfg:        lcfg,
			Topology:        topo,
			Log:             logger,
			Clock:           clk,
		},
	}
	if initState != nil {
		*initState = &s
	}

	s.Log.Info("init modules", "id", id, "interval", lcfg.Interval)
	err = initModules(&s, in, out, aux)
	if err != nil {
		return multierr.Append(err, Stop(&s))
	}
	s.Log.Info("init modules complete")

	s.Log.Info("router is running. To exit, type crash or send SIGINT.")

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)
	go func() {
		select {
		case <-c:
			s.Cancel(ErrShutdown)
		case <-ctx.Done():
			return
		}
	}()

	err = MainLoop(&s, dispatch)
	cause := context.Cause(ctx)
	if errors.Is(cause, state.ErrCrash) || errors.Is(cause, ErrShutdown) {
		return err
	}
	return multierr.Append(cause, err)
}

func initModules(s *state.State, in io.Reader, out io.Writer, aux map[string]any) error {
	var modules []state.Module
	if vnet, ok := aux["vnet"].(VirtualNetwork); ok {
		modules = append(modules, &DvRouter{Out: vnet.Attach(s)})
	} else {
		modules = append(modules, &DvRouter{})
		modules = append(modules, &Transport{})
	}
	modules = append(modules, &Console{In: in, Out: out})
	modules = append(modules, &MetricsServer{})

	for _, module := range modules {
		s.Modules[reflect.TypeOf(module).String()] = module
		if err := module.Init(s); err != nil {
			return err
		}
	}
	return nil
}

func MainLoop(s *state.State, dispatch <-chan func(*state.State) error) error {
	s.Log.Debug("started main loop")
	s.Started.Store(true)
	for {
		select {
		case fun := <-dispatch:
			if fun == nil {
				goto endLoop
			}
			start := time.Now()
			err := fun(s)
			if err != nil {
				s.Log.Error("error occurred during dispatch: ", "error", err)
				s.Cancel(err)
			}
			elapsed := time.Since(start)
			perf.DispatchLatency.Add(float64(elapsed.Microseconds()))
			if elapsed > state.DispatchWarnThreshold {
				s.Log.Warn("dispatch took a long time!", "fun", runtime.FuncForPC(reflect.ValueOf(fun).Pointer()).Name(), "elapsed", elapsed, "len", len(dispatch))
			}
			if s.Context.Err() != nil {
				goto endLoop
			}
		case <-s.Context.Done():
			goto endLoop
		}
	}
endLoop:
	s.Log.Info("stopped main loop", "reason", context.Cause(s.Context).Error())
	return Stop(s)
}

// Stop cancels the state context and cleans up every module once
func Stop(s *state.State) error {
	if s.Stopping.Swap(true) {
		return nil // don't stop twice
	}
	s.Cancel(context.Canceled)
	s.Log.Info("cleaning up modules")
	var errs error
	for moduleName, module := range s.Modules {
		err := module.Cleanup(s)
		if err != nil {
			s.Log.Error("error occurred during Stop: ", "module", moduleName, "error", err)
			errs = multierr.Append(errs, err)
		}
	}
	s.Log.Info("stopped")
	return errs
}
