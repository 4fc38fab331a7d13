package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DeliveryDeduper implements webhook.Deduper against the
// processed_deliveries table, satisfying GitHub's at-least-once redelivery
// guarantee with a simple insert-or-detect-conflict check.
type DeliveryDeduper struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewDeliveryDeduper constructs a DeliveryDeduper over an already
// established pool.
func NewDeliveryDeduper(pool *pgxpool.Pool, logger *zap.Logger) *DeliveryDeduper {
	return &DeliveryDeduper{pool: pool, logger: logger.With(zap.String("component", "delivery-deduper"))}
}

const insertDeliveryQuery = `
INSERT INTO processed_deliveries (delivery_id) VALUES ($1)
ON CONFLICT (delivery_id) DO NOTHING
`

// SeenBefore records deliveryID as processed and reports whether it had
// already been recorded. A delivery ID observed for the first time
// returns (false, nil); every subsequent call with the same ID returns
// (true, nil).
func (d *DeliveryDeduper) SeenBefore(deliveryID string) (bool, error) {
	if deliveryID == "" {
		return false, nil
	}

	ctx := context.Background()
	tag, err := d.pool.Exec(ctx, insertDeliveryQuery, deliveryID)
	if err != nil {
		return false, fmt.Errorf("record delivery %s: %w", deliveryID, err)
	}

	return tag.RowsAffected() == 0, nil
}
