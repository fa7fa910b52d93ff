package sqlite

import (
	"context"
	"errors"

	"kabupilot/internal/store/model"

	"gorm.io/gorm"
)

type activityRepository struct {
	db *gorm.DB
}

func NewActivityRepo(db *gorm.DB) *activityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Append(ctx context.Context, records []model.ActivityModel) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&records).Error
}

func (r *activityRepository) ListByRun(ctx context.Context, runID string) ([]model.ActivityModel, error) {
	var out []model.ActivityModel
	if err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("timestamp ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListRecent returns the newest records first.
func (r *activityRepository) ListRecent(ctx context.Context, market string, limit int) ([]model.ActivityModel, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []model.ActivityModel
	q := r.db.WithContext(ctx)
	if market != "" {
		q = q.Where("market = ?", market)
	}
	if err := q.Order("timestamp DESC, id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type goalRepository struct {
	db *gorm.DB
}

func NewGoalRepo(db *gorm.DB) *goalRepository {
	return &goalRepository{db: db}
}

func (r *goalRepository) Save(ctx context.Context, g *model.GoalModel) error {
	if g == nil {
		return errors.New("goal cannot be nil")
	}
	return r.db.WithContext(ctx).Create(g).Error
}

func (r *goalRepository) Latest(ctx context.Context, market string) (*model.GoalModel, error) {
	var g model.GoalModel
	err := r.db.WithContext(ctx).Where("market = ?", market).Order("id DESC").First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}
