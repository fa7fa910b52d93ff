package model

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityModel maps to 'activity_log'. Timestamp is the record creation time, not the flush time.
type ActivityModel struct {
	ID        int64          `gorm:"column:id;primaryKey;autoIncrement"`
	RunID     string         `gorm:"column:run_id;index"`
	Market    string         `gorm:"column:market;index"`
	Agent     string         `gorm:"column:agent"`
	Action    string         `gorm:"column:action"`
	Status    string         `gorm:"column:status"`
	Details   string         `gorm:"column:details"`
	Metadata  datatypes.JSON `gorm:"column:metadata"`
	Timestamp time.Time      `gorm:"column:timestamp;index"`
}

func (ActivityModel) TableName() string { return "activity_log" }

// GoalModel maps to 'goals'; Payload holds the full weekly goal with its daily goals.
type GoalModel struct {
	ID        int64          `gorm:"column:id;primaryKey;autoIncrement"`
	Market    string         `gorm:"column:market;index"`
	WeekStart string         `gorm:"column:week_start"`
	Headline  string         `gorm:"column:headline"`
	Payload   datatypes.JSON `gorm:"column:payload"`
	CreatedAt time.Time      `gorm:"column:created_at"`
}

func (GoalModel) TableName() string { return "goals" }
