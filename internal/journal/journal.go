// Package journal records order lifecycle events in Postgres for operator
// audit. The journal is strictly best-effort: a nil Journal or a failing
// database never disturbs the fulfillment flow.
package journal

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/funpay-tools/steampoints-bot/pkg/logging"
)

// Lifecycle events recorded per order.
const (
	EventReceived            = "received"
	EventRejected            = "rejected"
	EventAwaitingDestination = "awaiting_destination"
	EventDestinationSet      = "destination_set"
	EventSubmitted           = "submitted"
	EventFulfilled           = "fulfilled"
	EventFailed              = "failed"
	EventRefunded            = "refunded"
	EventRefundFailed        = "refund_failed"
	EventDeactivationSweep   = "deactivation_sweep"
)

// DB is the subset of pgxpool.Pool the journal needs.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Journal writes order events to the order_events table.
type Journal struct {
	db     DB
	logger *logging.Logger
}

// New creates a journal. A nil db yields a nil Journal, whose methods are
// all no-ops.
func New(db DB, logger *logging.Logger) *Journal {
	if db == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Journal{db: db, logger: logger}
}

const insertEventSQL = `INSERT INTO order_events (order_id, event, detail, created_at) VALUES ($1, $2, $3, $4)`

// Record appends one event for an order. Failures are logged, never
// returned.
func (j *Journal) Record(ctx context.Context, orderID, event, detail string) {
	if j == nil {
		return
	}
	if _, err := j.db.Exec(ctx, insertEventSQL, orderID, event, detail, time.Now().UTC()); err != nil {
		j.logger.Warn("journal write failed",
			"order_id", orderID,
			"event", event,
			"error", err,
		)
	}
}
