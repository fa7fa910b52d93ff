package capital

import (
	"context"
	"testing"
	"time"

	"kabupilot/internal/portfolio"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func state() portfolio.State {
	return portfolio.State{
		Market: "us",
		Cash:   decimal.NewFromInt(1000),
		Positions: map[string]portfolio.Position{
			"AAPL": {Symbol: "AAPL", Quantity: 10, AveragePrice: decimal.NewFromInt(100)},
			"MSFT": {Symbol: "MSFT", Quantity: 2, AveragePrice: decimal.NewFromInt(300)},
		},
	}
}

func TestComputeLivePrices(t *testing.T) {
	prices := PriceFunc(func(_ context.Context, symbol string) (decimal.Decimal, error) {
		return map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(120), "MSFT": decimal.NewFromInt(350)}[symbol], nil
	})
	calc, err := NewCalculator(prices, time.Second, 0)
	require.NoError(t, err)

	snap := calc.Compute(context.Background(), state())
	assert.False(t, snap.Approximate)
	assert.True(t, snap.TotalEquity.Equal(decimal.NewFromInt(1000+1200+700)), snap.TotalEquity.String())
	assert.True(t, snap.InvestableCash.Equal(decimal.NewFromInt(1000)))
}

func TestComputeFallsBackToAveragePrice(t *testing.T) {
	prices := PriceFunc(func(_ context.Context, symbol string) (decimal.Decimal, error) {
		if symbol == "MSFT" {
			return decimal.Zero, ErrPriceUnavailable
		}
		return decimal.NewFromInt(110), nil
	})
	calc, err := NewCalculator(prices, time.Second, 0.25)
	require.NoError(t, err)

	snap := calc.Compute(context.Background(), state())
	assert.True(t, snap.Approximate)
	assert.Equal(t, []string{"MSFT"}, snap.ApproximatedSymbols)
	assert.True(t, snap.TotalEquity.Equal(decimal.NewFromInt(1000+1100+600)))
	assert.True(t, snap.InvestableCash.Equal(decimal.NewFromInt(750)))
}

func TestComputeTimeoutIsApproximate(t *testing.T) {
	prices := PriceFunc(func(ctx context.Context, _ string) (decimal.Decimal, error) {
		<-ctx.Done()
		return decimal.Zero, ctx.Err()
	})
	calc, err := NewCalculator(prices, 10*time.Millisecond, 0)
	require.NoError(t, err)

	snap := calc.Compute(context.Background(), state())
	assert.True(t, snap.Approximate)
	assert.Len(t, snap.ApproximatedSymbols, 2)
	assert.True(t, snap.TotalEquity.Equal(state().CostBasisEquity()))
}

func TestReserveRatioBounds(t *testing.T) {
	_, err := NewCalculator(nil, 0, 1.5)
	require.Error(t, err)

	calc, err := NewCalculator(nil, 0, 1)
	require.NoError(t, err)
	snap := calc.Compute(context.Background(), state())
	assert.True(t, snap.InvestableCash.IsZero())
	require.NoError(t, calc.SetReserveRatio(0.5))
	assert.Equal(t, 0.5, calc.ReserveRatio())
	require.Error(t, calc.SetReserveRatio(-0.1))
}

func TestCashBufferRatio(t *testing.T) {
	s := Snapshot{Cash: decimal.NewFromInt(10), TotalEquity: decimal.NewFromInt(100)}
	assert.InDelta(t, 0.1, s.CashBufferRatio(), 1e-9)
	assert.Zero(t, Snapshot{}.CashBufferRatio())
}
