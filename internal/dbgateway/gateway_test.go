package dbgateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aidis-project/aidis-core/internal/apierr"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatewayForTest builds a Gateway with no live pool, since execute never
// touches g.pool directly; only the op closure passed to it does.
func gatewayForTest(cfg Config) *Gateway {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Millisecond
	}
	return &Gateway{
		breaker: NewBreaker("test", cfg.Breaker),
		cfg:     cfg,
	}
}

func TestExecuteRetriesTransientErrors(t *testing.T) {
	g := gatewayForTest(Config{MaxRetries: 3, RetryBase: time.Millisecond})

	attempts := 0
	err := g.execute(context.Background(), "corr-1", "SELECT 1", func() (int64, error) {
		attempts++
		if attempts < 3 {
			return 0, &pgconn.PgError{Code: "08006"}
		}
		return 0, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestExecuteDoesNotRetryNonTransientErrors(t *testing.T) {
	g := gatewayForTest(Config{MaxRetries: 3, RetryBase: time.Millisecond})

	attempts := 0
	err := g.execute(context.Background(), "corr-2", "INSERT ...", func() (int64, error) {
		attempts++
		return 0, &pgconn.PgError{Code: "23505"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	aerr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.CodeInternal, aerr.Code)
}

func TestExecuteGivesUpAfterMaxRetries(t *testing.T) {
	g := gatewayForTest(Config{MaxRetries: 2, RetryBase: time.Millisecond})

	attempts := 0
	err := g.execute(context.Background(), "corr-3", "SELECT 1", func() (int64, error) {
		attempts++
		return 0, &pgconn.PgError{Code: "08006"}
	})

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestExecuteReturnsCircuitOpenWhenBreakerTripped(t *testing.T) {
	g := gatewayForTest(Config{MaxRetries: 3, RetryBase: time.Millisecond, Breaker: BreakerConfig{FailureThreshold: 1, RecoveryWindow: time.Hour}})

	g.breaker.RecordFailure(errors.New("prior failure"))
	require.Equal(t, BreakerOpen, g.breaker.State())

	err := g.execute(context.Background(), "corr-4", "SELECT 1", func() (int64, error) {
		t.Fatal("op should not run while breaker is open")
		return 0, nil
	})

	require.Error(t, err)
	aerr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.CodeCircuitOpen, aerr.Code)
}

func TestExecuteRespectsContextCancellation(t *testing.T) {
	g := gatewayForTest(Config{MaxRetries: 5, RetryBase: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.execute(ctx, "corr-5", "SELECT 1", func() (int64, error) {
		return 0, &pgconn.PgError{Code: "08006"}
	})

	require.Error(t, err)
	aerr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.CodeTimeout, aerr.Code)
}
