package ports

import (
	"context"

	"github.com/matthewp131/algotrader/internal/domain"
)

// Journal is the append-only telemetry sink for order activity. Core state
// never reads from it; journal failures are logged and swallowed.
type Journal interface {
	// RecordOrder persists a submitted order.
	RecordOrder(ctx context.Context, rec domain.OrderRecord) error

	// RecordTradeUpdate persists a terminal trade-update event.
	RecordTradeUpdate(ctx context.Context, upd domain.TradeUpdate) error

	// Close releases the underlying store.
	Close() error
}
