package tools

import (
	"context"

	"kabupilot/internal/pkg/circuit"
)

// Guarded 用熔断器包装在线工具：连续失败后短时间内直接返回 circuit.ErrOpen，
// researcher 把它当作普通的工具失败处理。
type Guarded struct {
	inner interface {
		Query(ctx context.Context, text string) ([]string, error)
	}
	breaker *circuit.CircuitBreaker
}

func NewGuardedSearch(s Searcher, cb *circuit.CircuitBreaker) *Guarded {
	return &Guarded{inner: s, breaker: cb}
}

func NewGuardedSocial(s Social, cb *circuit.CircuitBreaker) *Guarded {
	return &Guarded{inner: s, breaker: cb}
}

func (g *Guarded) Query(ctx context.Context, text string) ([]string, error) {
	var out []string
	err := g.breaker.Do(func() error {
		res, err := g.inner.Query(ctx, text)
		out = res
		return err
	})
	return out, err
}
