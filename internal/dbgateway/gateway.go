package dbgateway

import (
	"context"
	"math"
	"time"

	"github.com/aidis-project/aidis-core/internal/apierr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const (
	slowQueryWarn  = time.Second
	slowQueryError = 5 * time.Second
	sqlTruncateLen = 200
)

// Config tunes retry and breaker behavior; zero values fall back to
// New's defaults.
type Config struct {
	MaxRetries  int
	RetryBase   time.Duration
	Breaker     BreakerConfig
}

// Gateway is the process-singleton pooled Postgres access point.
// No handler opens an ad-hoc connection; every query goes through here.
type Gateway struct {
	pool    *pgxpool.Pool
	breaker *Breaker
	cfg     Config
}

// New wraps an already-established pool. Use Open to both connect and wrap.
func New(pool *pgxpool.Pool, cfg Config) *Gateway {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	return &Gateway{
		pool:    pool,
		breaker: NewBreaker("db-gateway", cfg.Breaker),
		cfg:     cfg,
	}
}

// Open dials Postgres with a pgxpool and returns a ready Gateway.
func Open(ctx context.Context, dsn string, cfg Config) (*Gateway, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, apierr.Wrap(err, "failed to create connection pool")
	}
	return New(pool, cfg), nil
}

// Close releases the underlying pool. Called once during shutdown.
func (g *Gateway) Close() {
	g.pool.Close()
}

// BreakerStatus exposes the breaker's state for /readyz.
func (g *Gateway) BreakerStatus() BreakerStatus {
	return g.breaker.Status()
}

// HealthProbe runs a trivial round trip to confirm connectivity, going
// through the same breaker/retry path as any other call.
func (g *Gateway) HealthProbe(ctx context.Context, correlationID string) error {
	_, err := g.Query(ctx, correlationID, "SELECT 1")
	return err
}

// Row is a loosely-typed result row; handlers scan into their own structs
// via pgx.Rows directly where convenient, or use this for ad-hoc results.
type Row = pgx.Row

// Query runs sql with params through the retry/breaker path and returns the
// resulting pgx.Rows. Callers must Close() the returned Rows. Row count
// isn't known until the caller iterates, so the logged rowCount is 0.
func (g *Gateway) Query(ctx context.Context, correlationID, sql string, params ...any) (pgx.Rows, error) {
	var rows pgx.Rows
	err := g.execute(ctx, correlationID, sql, func() (int64, error) {
		r, qErr := g.pool.Query(ctx, sql, params...)
		rows = r
		return 0, qErr
	})
	return rows, err
}

// QueryRow runs sql expecting at most one row. Its error surfaces on Scan,
// so it cannot retry transparently without buffering; a single attempt
// through the breaker is correct here, leaving Scan-time error handling to
// the caller. It still goes through logQuery for the same observability
// every other call gets.
func (g *Gateway) QueryRow(ctx context.Context, correlationID, sql string, params ...any) (pgx.Row, error) {
	if !g.breaker.Allow() {
		return nil, apierr.New(apierr.CodeCircuitOpen, "database circuit breaker is open")
	}
	start := time.Now()
	row := g.pool.QueryRow(ctx, sql, params...)
	logQuery(correlationID, sql, time.Since(start), 0, nil)
	g.breaker.RecordSuccess()
	return row, nil
}

// Exec runs a statement that returns no rows (INSERT/UPDATE/DELETE).
func (g *Gateway) Exec(ctx context.Context, correlationID, sql string, params ...any) (int64, error) {
	var rowsAffected int64
	err := g.execute(ctx, correlationID, sql, func() (int64, error) {
		tag, eErr := g.pool.Exec(ctx, sql, params...)
		if eErr == nil {
			rowsAffected = tag.RowsAffected()
		}
		return rowsAffected, eErr
	})
	return rowsAffected, err
}

// Tx runs fn inside a transaction, committing on nil return and rolling
// back otherwise. Retries the whole transaction on a transient failure.
func (g *Gateway) Tx(ctx context.Context, correlationID string, fn func(pgx.Tx) error) error {
	return g.execute(ctx, correlationID, "BEGIN", func() (int64, error) {
		tx, err := g.pool.Begin(ctx)
		if err != nil {
			return 0, err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback(ctx)
			return 0, err
		}
		return 0, tx.Commit(ctx)
	})
}

// execute is the shared retry+breaker+observability wrapper every gateway
// method routes through. op returns the row count to log alongside its
// error.
func (g *Gateway) execute(ctx context.Context, correlationID, sql string, op func() (int64, error)) error {
	var lastErr error

	for attempt := 0; attempt < g.cfg.MaxRetries; attempt++ {
		if !g.breaker.Allow() {
			return apierr.New(apierr.CodeCircuitOpen, "database circuit breaker is open")
		}

		start := time.Now()
		rowCount, err := op()
		duration := time.Since(start)

		logQuery(correlationID, sql, duration, rowCount, err)

		if err == nil {
			g.breaker.RecordSuccess()
			return nil
		}

		if ctx.Err() != nil {
			g.breaker.RecordFailure(err)
			return apierr.New(apierr.CodeTimeout, "database call exceeded its deadline")
		}

		if !isRetryable(err) {
			// Non-transient errors propagate immediately and are not
			// retried, but still count toward the breaker
			// ("consecutive failures increment a counter").
			g.breaker.RecordFailure(err)
			return apierr.Wrap(err, "database call failed")
		}

		g.breaker.RecordFailure(err)
		lastErr = err

		if attempt < g.cfg.MaxRetries-1 {
			delay := g.cfg.RetryBase * time.Duration(math.Pow(2, float64(attempt)))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return apierr.New(apierr.CodeTimeout, "database call exceeded its deadline")
			}
		}
	}

	return apierr.Wrap(lastErr, "database call failed after retries")
}

func logQuery(correlationID, sql string, duration time.Duration, rowCount int64, err error) {
	truncated := sql
	if len(truncated) > sqlTruncateLen {
		truncated = truncated[:sqlTruncateLen] + "..."
	}

	event := log.Info()
	switch {
	case err != nil:
		event = log.Error().Err(err)
	case duration >= slowQueryError:
		event = log.Error()
	case duration >= slowQueryWarn:
		event = log.Warn()
	}

	event.
		Str("correlationId", correlationID).
		Dur("durationMs", duration).
		Int64("rowCount", rowCount).
		Str("truncatedSql", truncated).
		Msg("db query")
}
