package dbgateway

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// isRetryable classifies an error: connection resets and
// serialization failures are transient and may be retried/counted against
// the breaker's recovery window; constraint violations, syntax errors, and
// authorization failures are not. Those fail again identically and
// must propagate immediately without being retried.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code[:2] {
		case "08": // connection exception
			return true
		case "40": // transaction rollback (serialization failure, deadlock)
			return true
		case "53": // insufficient resources (too many connections, disk full)
			return true
		case "23", "22", "42": // integrity constraint, data, syntax
			return false
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}
