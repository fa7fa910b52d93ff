// Package agents 提供五类 agent 的启发式实现。它们只通过只读依赖访问组合与知识库，
// 所有写操作由编排器完成。
package agents

import (
	"context"
	"fmt"
	"time"

	"kabupilot/internal/agent"
	"kabupilot/internal/capital"
	"kabupilot/internal/portfolio"
)

// PortfolioReader 是组合服务的只读视图。
type PortfolioReader interface {
	Read(ctx context.Context, market string) (portfolio.State, error)
}

// CapitalSource 计算资金快照。
type CapitalSource interface {
	Compute(ctx context.Context, state portfolio.State) capital.Snapshot
}

func unexpectedInput(kind agent.Kind, in agent.Payload) error {
	return &agent.InvalidPayloadError{
		Kind:      kind,
		Direction: agent.DirectionInput,
		Field:     "$",
		Reason:    fmt.Sprintf("unexpected payload type %T", in),
	}
}

// Weekdays 从 start 起取 n 个工作日（跳过周末）。
func Weekdays(start time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	for d := start; len(out) < n; d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		out = append(out, d)
	}
	return out
}
