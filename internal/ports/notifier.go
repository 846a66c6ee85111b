package ports

import (
	"context"

	"github.com/matthewp131/algotrader/internal/domain"
)

// Notifier presents the current system status to the operator.
type Notifier interface {
	// Notify renders the running strategies and remaining allocations.
	Notify(ctx context.Context, report domain.StatusReport) error
}
