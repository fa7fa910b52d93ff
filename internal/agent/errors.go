package agent

import (
	"errors"
	"fmt"
)

var (
	ErrAgentTimeout = errors.New("agent timed out")
	ErrUnknownAgent = errors.New("agent not registered")
)

// InvalidPayloadError 表示 agent 输入或输出的结构不符合约定。
// Field 为出错字段的 JSON 路径（如 /scores/0/score）。
type InvalidPayloadError struct {
	Kind      Kind
	Direction Direction
	Field     string
	Reason    string
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("invalid %s %s payload at %s: %s", e.Kind, e.Direction, e.Field, e.Reason)
}

func IsInvalidPayload(err error) bool {
	var target *InvalidPayloadError
	return errors.As(err, &target)
}
