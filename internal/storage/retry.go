package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// isTransient reports failures worth one more attempt: lost connections,
// timeouts, serialization failures and deadlocks.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == "08": // connection exception
			return true
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "57P01":
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// withReadRetry runs an idempotent read and repeats it once on a transient failure.
// Writes never go through here.
func (s *Service) withReadRetry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err != nil && isTransient(err) && ctx.Err() == nil {
		s.Log.Warn("transient read failure, retrying once", zap.String("op", op), zap.Error(err))
		err = fn()
	}
	return classify(op, err)
}
