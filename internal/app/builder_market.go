package app

import (
	"fmt"
	"strings"

	"kabupilot/internal/capital"
	"kabupilot/internal/config"
	"kabupilot/internal/gateway/quote"
	"kabupilot/internal/knowledge"
	"kabupilot/internal/logger"
	"kabupilot/internal/pkg/circuit"
)

// buildPriceLookup 返回资金计算与 decider 共用的报价源。
// yahoo 模式下以知识库公允价兜底。
func buildPriceLookup(root *config.Config, memo *knowledge.Memo) (capital.PriceLookup, error) {
	if memo == nil {
		return nil, fmt.Errorf("price lookup requires knowledge memo")
	}
	cfg := root.Capital
	switch strings.ToLower(strings.TrimSpace(cfg.PriceSource)) {
	case "", "knowledge":
		logger.Infof("✓ 报价源: knowledge fair_price")
		return memo.Prices(), nil
	case "yahoo":
		logger.Infof("✓ 报价源: yahoo (fallback=knowledge, timeout=%s)", cfg.PriceTimeout())
		return quote.NewYahoo(memo.Prices()).WithBreaker(newBreaker("yahoo", root.Tools)), nil
	default:
		return nil, fmt.Errorf("unsupported capital.price_source %q", cfg.PriceSource)
	}
}

func newBreaker(name string, cfg config.ToolsConfig) *circuit.CircuitBreaker {
	return circuit.NewCircuitBreaker(name, cfg.BreakerThreshold, cfg.BreakerCooldown())
}
