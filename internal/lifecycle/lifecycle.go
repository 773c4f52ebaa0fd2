// Package lifecycle implements process startup/shutdown orchestration:
// acquire the process singleton, open the DB gateway with a retry budget,
// start the HTTP surface and the DB events listener; once the caller
// receives a termination signal, Shutdown tears everything down in the
// reverse, bounded order.
package lifecycle

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/aidis-project/aidis-core/internal/config"
	"github.com/aidis-project/aidis-core/internal/dbevents"
	"github.com/aidis-project/aidis-core/internal/dbgateway"
	"github.com/aidis-project/aidis-core/internal/singleton"
	"github.com/aidis-project/aidis-core/internal/sse"
)

// shutdownBudget is the ceiling for the whole shutdown sequence.
const shutdownBudget = 10 * time.Second

// dbOpenRetryAttempts and dbOpenRetryBase bound how long startup will retry
// opening the DB gateway before failing fast.
const (
	dbOpenRetryAttempts = 5
	dbOpenRetryBase     = time.Second
)

// Server bundles the long-lived components a running process owns, so main
// can start and stop them in a fixed order.
type Server struct {
	Config *config.Config

	guard           *singleton.Guard
	db              *dbgateway.Gateway
	hub             *sse.Hub
	events          *dbevents.Listener
	httpSrv         *http.Server
	metricsSrv      *http.Server
	eventsCtxCancel context.CancelFunc
}

// metricsPortOffset is added to the HTTP port to get the bind port for the
// separate Prometheus endpoint started alongside the main HTTP surface.
const metricsPortOffset = 1000

// New constructs a Server around cfg without starting anything.
func New(cfg *config.Config) *Server {
	return &Server{Config: cfg}
}

// Start runs startup in a fixed order: singleton, DB init with retry,
// HTTP listen, DB events listen. It returns once the process is fully up;
// callers then run their own signal loop and call Shutdown.
func (s *Server) Start(ctx context.Context, router func(db *dbgateway.Gateway, hub *sse.Hub) http.Handler) error {
	guard, err := singleton.Acquire(s.Config.PIDFile)
	if err != nil {
		return fmt.Errorf("lifecycle: acquiring singleton: %w", err)
	}
	s.guard = guard

	db, err := s.openDBWithRetry(ctx)
	if err != nil {
		guard.Release()
		return fmt.Errorf("lifecycle: opening database: %w", err)
	}
	s.db = db

	s.hub = sse.NewHub()

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.Config.HTTPPort),
		Handler:      router(db, s.hub),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", s.Config.HTTPPort).Msg("aidis-server: HTTP listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("aidis-server: HTTP server stopped unexpectedly")
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s.metricsSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.Config.HTTPPort+metricsPortOffset),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	go func() {
		log.Info().Str("addr", s.metricsSrv.Addr).Msg("aidis-server: metrics listening")
		if err := s.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn().Err(err).Msg("aidis-server: metrics server stopped unexpectedly")
		}
	}()

	eventsCtx, cancel := context.WithCancel(context.Background())
	s.eventsCtxCancel = cancel
	s.events = dbevents.New(s.Config.DSN(), s.Config.DBEventsChannel, s.hub.Broadcast)
	go s.events.Run(eventsCtx)

	return nil
}

// openDBWithRetry opens the DB gateway, retrying with a linear backoff up
// to dbOpenRetryAttempts times before giving up.
func (s *Server) openDBWithRetry(ctx context.Context) (*dbgateway.Gateway, error) {
	gwCfg := dbgateway.Config{
		MaxRetries: s.Config.DBMaxRetries,
		RetryBase:  s.Config.DBRetryBaseDelay,
		Breaker: dbgateway.BreakerConfig{
			FailureThreshold: s.Config.DBBreakerThreshold,
			RecoveryWindow:   s.Config.DBBreakerRecovery,
		},
	}

	var lastErr error
	for attempt := 0; attempt < dbOpenRetryAttempts; attempt++ {
		db, err := dbgateway.Open(ctx, s.Config.DSN(), gwCfg)
		if err == nil {
			if probeErr := db.HealthProbe(ctx, "startup"); probeErr == nil {
				return db, nil
			} else {
				db.Close()
				lastErr = probeErr
			}
		} else {
			lastErr = err
		}

		delay := dbOpenRetryBase * time.Duration(attempt+1)
		log.Warn().Err(lastErr).Int("attempt", attempt+1).Dur("delay", delay).Msg("aidis-server: DB not reachable, retrying")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("exhausted %d attempts: %w", dbOpenRetryAttempts, lastErr)
}

// DB returns the running server's DB gateway.
func (s *Server) DB() *dbgateway.Gateway { return s.db }

// Hub returns the running server's SSE hub.
func (s *Server) Hub() *sse.Hub { return s.hub }

// EventsStatus exposes the DB events listener's status for observability.
func (s *Server) EventsStatus() dbevents.Status { return s.events.Status() }

// Shutdown runs the shutdown order within shutdownBudget: stop
// accepting new HTTP requests, disconnect SSE with the shutdown event, stop
// the DB events listener, close the pool, remove the PID file.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownBudget)
	defer cancel()

	var g errgroup.Group

	g.Go(func() error {
		if s.httpSrv == nil {
			return nil
		}
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("aidis-server: HTTP shutdown error")
		}
		return nil
	})
	g.Go(func() error {
		if s.metricsSrv == nil {
			return nil
		}
		if err := s.metricsSrv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("aidis-server: metrics server shutdown error")
		}
		return nil
	})

	_ = g.Wait()

	if s.hub != nil {
		s.hub.DisconnectAll()
	}

	if s.events != nil {
		s.events.Stop()
	}
	if s.eventsCtxCancel != nil {
		s.eventsCtxCancel()
	}

	if s.db != nil {
		s.db.Close()
	}

	s.guard.Release()

	log.Info().Msg("aidis-server: shutdown complete")
	return nil
}
