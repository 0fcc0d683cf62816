package invoker

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	logx "xpost/pkg/logx"
)

// DebugServer serves /debug/pprof next to a long-running daemon.
type DebugServer struct {
	srv *http.Server
	ln  net.Listener
	log logx.Logger
}

// StartDebugServer listens on addr ("127.0.0.1:6060"; port 0 picks one).
func StartDebugServer(addr string, log logx.Logger) (*DebugServer, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	d := &DebugServer{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
		log: log.With(logx.String("comp", "pprof")),
	}
	go func() {
		if err := d.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Warn("pprof server error", logx.Err(err))
		}
	}()
	d.log.Info("pprof enabled", logx.String("addr", d.Addr()))
	return d, nil
}

func (d *DebugServer) Addr() string { return d.ln.Addr().String() }

// Stop shuts the listener down, waiting at most two seconds for requests.
func (d *DebugServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		d.log.Warn("pprof shutdown error", logx.Err(err))
	}
	d.log.Info("pprof disabled")
}
