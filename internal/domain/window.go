package domain

import "github.com/shopspring/decimal"

// WindowSize is how many closes the mean-reversion signal looks back over.
const WindowSize = 20

// Window is the rolling sequence of the most recent closing prices, oldest
// first. Owned by a single strategy run loop; not safe for concurrent use.
type Window struct {
	closes []decimal.Decimal
}

// NewWindow creates an empty rolling window.
func NewWindow() *Window {
	return &Window{closes: make([]decimal.Decimal, 0, WindowSize)}
}

// Append adds a close and evicts the oldest once the window is full.
func (w *Window) Append(close decimal.Decimal) {
	w.closes = append(w.closes, close)
	if len(w.closes) > WindowSize {
		w.closes = w.closes[1:]
	}
}

// Len returns how many closes the window currently holds.
func (w *Window) Len() int {
	return len(w.closes)
}

// Full reports whether the window holds enough closes to produce a signal.
func (w *Window) Full() bool {
	return len(w.closes) >= WindowSize
}

// Average returns the exact mean of the held closes, zero when empty.
func (w *Window) Average() decimal.Decimal {
	if len(w.closes) == 0 {
		return decimal.Zero
	}
	return decimal.Avg(w.closes[0], w.closes[1:]...)
}

// Closes returns a copy of the held closes, oldest first.
func (w *Window) Closes() []decimal.Decimal {
	out := make([]decimal.Decimal, len(w.closes))
	copy(out, w.closes)
	return out
}
