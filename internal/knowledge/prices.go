package knowledge

import (
	"context"
	"sort"

	"kabupilot/internal/capital"

	"github.com/shopspring/decimal"
)

// Prices 以备忘录中的 fair_price 作为报价源，按市场名顺序查找。
func (m *Memo) Prices() capital.PriceLookup {
	return capital.PriceFunc(func(ctx context.Context, symbol string) (decimal.Decimal, error) {
		markets := m.Markets()
		sort.Strings(markets)
		for _, market := range markets {
			price, ok, err := m.FairPrice(ctx, market, symbol)
			if err != nil {
				return decimal.Zero, err
			}
			if ok {
				return price, nil
			}
		}
		return decimal.Zero, capital.ErrPriceUnavailable
	})
}
