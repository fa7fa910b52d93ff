package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextSkipsWeekends(t *testing.T) {
	s, err := NewDailyScheduler("15:30", "Asia/Tokyo")
	require.NoError(t, err)
	jst := s.Location

	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"monday morning", time.Date(2024, 3, 4, 9, 0, 0, 0, jst), time.Date(2024, 3, 4, 15, 30, 0, 0, jst)},
		{"monday after close", time.Date(2024, 3, 4, 16, 0, 0, 0, jst), time.Date(2024, 3, 5, 15, 30, 0, 0, jst)},
		{"friday after close", time.Date(2024, 3, 8, 15, 30, 0, 0, jst), time.Date(2024, 3, 11, 15, 30, 0, 0, jst)},
		{"saturday", time.Date(2024, 3, 9, 12, 0, 0, 0, jst), time.Date(2024, 3, 11, 15, 30, 0, 0, jst)},
		{"utc input", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 4, 15, 30, 0, 0, jst)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, tc.want.Equal(s.Next(tc.now)), "got %s", s.Next(tc.now))
		})
	}
}

func TestNewDailySchedulerRejectsBadInput(t *testing.T) {
	_, err := NewDailyScheduler("3pm", "Asia/Tokyo")
	assert.Error(t, err)
	_, err = NewDailyScheduler("15:30", "Mars/Olympus")
	assert.Error(t, err)
}

func TestStartRunsImmediatelyAndStopsOnCancel(t *testing.T) {
	s, err := NewDailyScheduler("15:30", "UTC")
	require.NoError(t, err)
	s.RunImmediately = true

	ctx, cancel := context.WithCancel(context.Background())
	runs := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		s.Start(ctx, func(context.Context) { runs <- struct{}{} })
		close(done)
	}()

	select {
	case <-runs:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
