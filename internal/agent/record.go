package agent

import (
	"sync"
	"time"
)

type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Record 是一条活动日志，Timestamp 在记录创建时取得。
type Record struct {
	Agent     Kind           `json:"agent"`
	Action    string         `json:"action"`
	Status    Status         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Details   string         `json:"details"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (r Record) Failed() bool { return r.Status == StatusFailed }

// Recorder 收集一次 agent 调用内的活动；每次调用都会新建，不跨调用累积。
type Recorder struct {
	kind Kind
	now  func() time.Time

	mu      sync.Mutex
	records []Record
}

func NewRecorder(kind Kind, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{kind: kind, now: now}
}

func (r *Recorder) Log(action, details string, metadata map[string]any) {
	r.add(StatusOK, action, details, metadata)
}

func (r *Recorder) Fail(action, details string, metadata map[string]any) {
	r.add(StatusFailed, action, details, metadata)
}

func (r *Recorder) add(status Status, action, details string, metadata map[string]any) {
	rec := Record{
		Agent:     r.kind,
		Action:    action,
		Status:    status,
		Timestamp: r.now(),
		Details:   details,
		Metadata:  metadata,
	}
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

// Records 返回当前记录的副本。
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...)
}
