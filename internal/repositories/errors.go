package repositories

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"
)

var (
	ErrGroupNotFound    = errors.New("group not found")
	ErrMessageNotFound  = errors.New("message not found")
	ErrConnectivityLost = errors.New("document store unreachable")
)

// classify tags connection-class failures with ErrConnectivityLost so callers can
// tell an outage apart from a bad request.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", ErrConnectivityLost, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrConnectivityLost, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "08" {
		return fmt.Errorf("%w: %w", ErrConnectivityLost, err)
	}
	return err
}
