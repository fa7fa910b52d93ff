// Package quote 提供基于 Yahoo Finance 的实时报价，并在失败时回退到知识库公允价。
package quote

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"kabupilot/internal/capital"
	"kabupilot/internal/logger"
	"kabupilot/internal/pkg/circuit"

	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"
)

// fetchFunc 返回 Yahoo 代码的 regularMarketPrice。
type fetchFunc func(symbol string) (float64, error)

func fetchYahoo(symbol string) (float64, error) {
	q, err := quote.Get(symbol)
	if err != nil {
		return 0, err
	}
	if q == nil {
		return 0, capital.ErrPriceUnavailable
	}
	return q.RegularMarketPrice, nil
}

// Yahoo 实现 capital.PriceLookup。
type Yahoo struct {
	fetch    fetchFunc
	fallback capital.PriceLookup
	breaker  *circuit.CircuitBreaker
}

// NewYahoo 创建报价源；fallback 可为 nil。
func NewYahoo(fallback capital.PriceLookup) *Yahoo {
	return &Yahoo{fetch: fetchYahoo, fallback: fallback}
}

// WithBreaker 让连续失败后的报价直接走 fallback，不再等待 Yahoo 超时。
func (y *Yahoo) WithBreaker(cb *circuit.CircuitBreaker) *Yahoo {
	y.breaker = cb
	return y
}

// YahooSymbol 把东证四位数字代码映射为 Yahoo 的 "7203.T" 形式，其他代码原样返回。
func YahooSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" || strings.Contains(s, ".") {
		return s
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return s
		}
	}
	return s + ".T"
}

func (y *Yahoo) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var px decimal.Decimal
	err := y.breaker.Do(func() error {
		var err error
		px, err = y.live(ctx, symbol)
		return err
	})
	if err == nil {
		return px, nil
	}
	if y.fallback == nil {
		return decimal.Zero, err
	}
	logger.Debugf("yahoo 报价失败 %s: %v，回退到知识库", symbol, err)
	return y.fallback.Price(ctx, symbol)
}

func (y *Yahoo) live(ctx context.Context, symbol string) (decimal.Decimal, error) {
	type result struct {
		px  float64
		err error
	}
	ch := make(chan result, 1)
	ys := YahooSymbol(symbol)
	go func() {
		px, err := y.fetch(ys)
		ch <- result{px: px, err: err}
	}()
	select {
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return decimal.Zero, fmt.Errorf("yahoo quote %s: %w", ys, r.err)
		}
		if r.px <= 0 {
			return decimal.Zero, fmt.Errorf("yahoo quote %s: %w", ys, capital.ErrPriceUnavailable)
		}
		return decimal.NewFromFloat(r.px), nil
	}
}
