package portfolio

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// InsufficientFundsError 表示买入后现金会变为负数。
type InsufficientFundsError struct {
	Symbol    string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for %s: required %s, available %s",
		e.Symbol, e.Required.StringFixed(2), e.Available.StringFixed(2))
}

// InsufficientPositionError 表示卖出数量超过持仓。
type InsufficientPositionError struct {
	Symbol    string
	Requested int64
	Held      int64
}

func (e *InsufficientPositionError) Error() string {
	return fmt.Sprintf("insufficient position for %s: requested %d, held %d", e.Symbol, e.Requested, e.Held)
}

// InvalidDecisionError 表示决策本身不合法（动作未知、数量或价格非正等）。
type InvalidDecisionError struct {
	Decision Decision
	Reason   string
}

func (e *InvalidDecisionError) Error() string {
	return fmt.Sprintf("invalid decision %s %s: %s", e.Decision.Action, e.Decision.Symbol, e.Reason)
}

// IsBusinessRejection 判断错误是否为可跳过的业务拒绝，而非持久化故障。
func IsBusinessRejection(err error) bool {
	var funds *InsufficientFundsError
	var pos *InsufficientPositionError
	var invalid *InvalidDecisionError
	return errors.As(err, &funds) || errors.As(err, &pos) || errors.As(err, &invalid)
}
