// Package pprofserver exposes the runtime profiler on a separate listener so that it is never reachable through
// the public API.
package pprofserver

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/myrjola/coachline/internal/errors"
)

func Handle(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
}

func newServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	Handle(mux)
	return mux
}

func newServer(addr string, logger *slog.Logger) *http.Server {
	return &http.Server{ //nolint:exhaustruct // profiles may take long, so no read or write timeouts.
		Addr:              addr,
		Handler:           newServeMux(),
		ReadHeaderTimeout: time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
}

// Launch starts a pprof server at addr, e.g. "localhost:6060", and stops it when ctx is done. An empty addr
// disables the server. Failures are logged and never stop the application.
func Launch(ctx context.Context, addr string, logger *slog.Logger) {
	if addr == "" {
		return
	}
	logger = logger.With(slog.String("source", "pprofserver"))
	srv := newServer(addr, logger)
	go func() {
		<-ctx.Done()
		if err := srv.Close(); err != nil {
			logger.LogAttrs(context.WithoutCancel(ctx), slog.LevelWarn, "failed to close pprof server",
				errors.SlogError(errors.Wrap(err, "close pprof server")))
		}
	}()
	go func() {
		logger.LogAttrs(ctx, slog.LevelInfo, "starting pprof server", slog.String("pprof_addr", addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.LogAttrs(ctx, slog.LevelError, "pprof server stopped",
				errors.SlogError(errors.Wrap(err, "pprof listen and serve", slog.String("pprof_addr", addr))))
		}
	}()
}
