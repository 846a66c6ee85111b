package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowFillsToCapacity(t *testing.T) {
	w := NewWindow()
	assert.False(t, w.Full())
	assert.Equal(t, 0, w.Len())

	for i := 0; i < WindowSize; i++ {
		w.Append(decimal.NewFromInt(int64(100 + i)))
	}

	assert.True(t, w.Full())
	assert.Equal(t, WindowSize, w.Len())
}

func TestWindowEvictsOldest(t *testing.T) {
	w := NewWindow()
	for i := 0; i < WindowSize; i++ {
		w.Append(decimal.NewFromInt(int64(i)))
	}
	w.Append(decimal.NewFromInt(99))

	closes := w.Closes()
	require.Len(t, closes, WindowSize)
	// 0 evicted, 1 is now the oldest, 99 the newest.
	assert.True(t, closes[0].Equal(decimal.NewFromInt(1)))
	assert.True(t, closes[WindowSize-1].Equal(decimal.NewFromInt(99)))
}

func TestWindowAverage(t *testing.T) {
	w := NewWindow()
	assert.True(t, w.Average().IsZero())

	w.Append(decimal.NewFromInt(10))
	w.Append(decimal.NewFromInt(20))
	w.Append(decimal.NewFromInt(30))
	assert.True(t, w.Average().Equal(decimal.NewFromInt(20)))
}

func TestWindowClosesIsACopy(t *testing.T) {
	w := NewWindow()
	w.Append(decimal.NewFromInt(1))

	closes := w.Closes()
	closes[0] = decimal.NewFromInt(42)
	assert.True(t, w.Closes()[0].Equal(decimal.NewFromInt(1)))
}
