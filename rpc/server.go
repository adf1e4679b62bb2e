package rpc

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qstake/native/accrual"
	"qstake/native/sidepool"
)

// Server exposes the ledger's read-only query surface over HTTP. Nothing
// served here mutates state.
type Server struct {
	engine *accrual.Engine
	pool   *sidepool.Distributor
	log    *slog.Logger
	now    func() time.Time
}

// NewServer constructs a query server over the engine and side-pool
// distributor.
func NewServer(engine *accrual.Engine, pool *sidepool.Distributor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, pool: pool, log: logger, now: time.Now}
}

// Router assembles the HTTP routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Get("/rewardrate", s.handleRewardRate)
		r.Get("/epoch/current", s.handleCurrentEpoch)
		r.Get("/epoch/at/{timestamp}", s.handleEpochAt)
		r.Get("/epoch/{index}", s.handleEpochRecord)
		r.Get("/account/{address}/{index}", s.handleAccountRecord)
		r.Get("/sidepool", s.handleSidePool)
	})
	return r
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("rpc listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
