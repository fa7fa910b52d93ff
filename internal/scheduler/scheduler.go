// Package scheduler 在交易日的固定本地时刻触发任务。
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"kabupilot/internal/logger"
)

// DailyScheduler 每个工作日（周一到周五）在 Location 的 At 时刻执行一次任务。
type DailyScheduler struct {
	At             time.Duration
	Location       *time.Location
	RunImmediately bool

	nowFn func() time.Time
}

// NewDailyScheduler 解析 "15:30" 形式的时刻与 IANA 时区名。
func NewDailyScheduler(at, timezone string) (*DailyScheduler, error) {
	clock, err := time.Parse("15:04", strings.TrimSpace(at))
	if err != nil {
		return nil, fmt.Errorf("invalid time of day %q: %w", at, err)
	}
	loc, err := time.LoadLocation(strings.TrimSpace(timezone))
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	return &DailyScheduler{
		At:       time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute,
		Location: loc,
		nowFn:    time.Now,
	}, nil
}

// Next 返回 now 之后最近的一个工作日触发时刻。
func (s *DailyScheduler) Next(now time.Time) time.Time {
	local := now.In(s.Location)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.Location)
	for i := 0; i < 8; i++ {
		candidate := day.AddDate(0, 0, i).Add(s.At)
		if wd := candidate.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if candidate.After(local) {
			return candidate
		}
	}
	return day.AddDate(0, 0, 7).Add(s.At)
}

// Start 阻塞运行，直到 ctx 取消。任务在调度 goroutine 中同步执行。
func (s *DailyScheduler) Start(ctx context.Context, task func(context.Context)) {
	if s == nil {
		return
	}
	if task == nil {
		logger.Warnf("DailyScheduler: task is nil, exit")
		return
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}
	logger.Infof("DailyScheduler: started at=%s tz=%s run_immediately=%v", s.At, s.Location, s.RunImmediately)

	if s.RunImmediately {
		task(ctx)
	}
	for {
		now := s.nowFn()
		wakeAt := s.Next(now)
		wait := wakeAt.Sub(now)
		logger.Infof("DailyScheduler: 下一次日循环 %s (in %s)", wakeAt.Format(time.RFC3339), wait.Truncate(time.Second))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Infof("DailyScheduler: ctx done, exit")
			return
		case <-timer.C:
		}
		task(ctx)
	}
}
