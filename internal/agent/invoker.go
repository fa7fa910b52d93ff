package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kabupilot/internal/logger"
)

// Agent 是一个推理 agent 的能力接口；实现方式（启发式、LLM、stub）对调用方不可见。
type Agent interface {
	Kind() Kind
	Run(ctx context.Context, in Payload, rec *Recorder) (Payload, error)
}

// Result 是一次调用的输出与活动日志。调用失败时 Activity 仍然有效。
type Result struct {
	Kind     Kind     `json:"kind"`
	Output   Payload  `json:"output,omitempty"`
	Activity []Record `json:"activity"`
}

// TimeoutFunc 返回某类 agent 的调用超时，<=0 表示不限。
type TimeoutFunc func(Kind) time.Duration

type Invoker struct {
	agents   map[Kind]Agent
	schemas  *schemaSet
	timeouts TimeoutFunc
	now      func() time.Time
}

type InvokerOption func(*Invoker)

func WithTimeouts(fn TimeoutFunc) InvokerOption {
	return func(inv *Invoker) { inv.timeouts = fn }
}

func WithClock(now func() time.Time) InvokerOption {
	return func(inv *Invoker) { inv.now = now }
}

func NewInvoker(agents []Agent, opts ...InvokerOption) (*Invoker, error) {
	schemas, err := loadSchemas()
	if err != nil {
		return nil, err
	}
	inv := &Invoker{
		agents:   make(map[Kind]Agent, len(agents)),
		schemas:  schemas,
		timeouts: func(Kind) time.Duration { return 0 },
		now:      time.Now,
	}
	for _, a := range agents {
		if a == nil {
			continue
		}
		if _, dup := inv.agents[a.Kind()]; dup {
			return nil, fmt.Errorf("duplicate agent for kind %s", a.Kind())
		}
		inv.agents[a.Kind()] = a
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv, nil
}

// Validate 校验 payload 是否是该 kind 在该方向上的合法形态。
func (inv *Invoker) Validate(kind Kind, dir Direction, p Payload) error {
	if p == nil {
		return &InvalidPayloadError{Kind: kind, Direction: dir, Field: "$", Reason: "payload is nil"}
	}
	if err := checkVariant(kind, dir, p); err != nil {
		return err
	}
	return inv.schemas.validate(kind, dir, p)
}

// Invoke 以全新的活动作用域运行 agent：校验输入，按超时执行，再校验输出。
func (inv *Invoker) Invoke(ctx context.Context, kind Kind, in Payload) (Result, error) {
	res := Result{Kind: kind}
	a, ok := inv.agents[kind]
	if !ok {
		return res, fmt.Errorf("%s: %w", kind, ErrUnknownAgent)
	}
	if err := inv.Validate(kind, DirectionInput, in); err != nil {
		return res, err
	}
	rec := NewRecorder(kind, inv.now)
	callCtx := ctx
	if d := inv.timeouts(kind); d > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	type outcome struct {
		out Payload
		err error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%s panic: %v", kind, r)}
			}
		}()
		out, err := a.Run(callCtx, in, rec)
		done <- outcome{out: out, err: err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-callCtx.Done():
		o.err = callCtx.Err()
	}
	res.Activity = rec.Records()
	if o.err != nil {
		if errors.Is(o.err, context.DeadlineExceeded) && ctx.Err() == nil {
			o.err = fmt.Errorf("%s after %s: %w", kind, inv.timeouts(kind), ErrAgentTimeout)
		}
		logger.Warnf("[agent] %s 调用失败 (%s): %v", kind, time.Since(start).Round(time.Millisecond), o.err)
		return res, o.err
	}
	if err := inv.Validate(kind, DirectionOutput, o.out); err != nil {
		return res, err
	}
	res.Output = o.out
	logger.Debugf("[agent] %s 完成，用时 %s，记录 %d 条", kind, time.Since(start).Round(time.Millisecond), len(res.Activity))
	return res, nil
}
