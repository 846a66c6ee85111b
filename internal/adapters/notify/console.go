package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/matthewp131/algotrader/internal/domain"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Console implements ports.Notifier by printing a status table to stdout.
type Console struct {
	out io.Writer
}

// NewConsole creates a notifier that writes to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// Notify prints the running strategies and the remaining per-user allocation.
func (c *Console) Notify(_ context.Context, report domain.StatusReport) error {
	now := time.Now().Format("15:04:05")

	if len(report.Strategies) == 0 {
		fmt.Fprintf(c.out, "[%s] no strategies running\n", now)
	} else {
		fmt.Fprintf(c.out, "[%s] %d strategies running\n", now, len(report.Strategies))

		table := tablewriter.NewWriter(c.out)
		table.Header("User", "Symbol", "Alloc", "State", "Age")
		for _, s := range report.Strategies {
			table.Append(
				s.User,
				s.Symbol,
				fmt.Sprintf("%s%%", s.Allocation.Mul(hundred).StringFixed(0)),
				string(s.State),
				time.Since(s.StartedAt).Truncate(time.Second).String(),
			)
		}
		table.Render()
	}

	if len(report.Balances) > 0 {
		fmt.Fprintf(c.out, "  available allocation:")
		for _, b := range report.Balances {
			fmt.Fprintf(c.out, "  %s=%s%%", b.User, b.Available.Mul(hundred).StringFixed(0))
		}
		fmt.Fprintln(c.out)
	}
	return nil
}
