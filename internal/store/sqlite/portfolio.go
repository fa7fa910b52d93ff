package sqlite

import (
	"context"
	"errors"

	"kabupilot/internal/store/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type portfolioRepository struct {
	db *gorm.DB
}

func NewPortfolioRepo(db *gorm.DB) *portfolioRepository {
	return &portfolioRepository{db: db}
}

// Get returns nil when the market has no portfolio row yet.
func (r *portfolioRepository) Get(ctx context.Context, market string) (*model.PortfolioModel, error) {
	var p model.PortfolioModel
	err := r.db.WithContext(ctx).Where("market = ?", market).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *portfolioRepository) Save(ctx context.Context, p *model.PortfolioModel) error {
	if p == nil {
		return errors.New("portfolio cannot be nil")
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "market"}},
		DoUpdates: clause.AssignmentColumns([]string{"cash", "updated_at"}),
	}).Create(p).Error
}

type positionRepository struct {
	db *gorm.DB
}

func NewPositionRepo(db *gorm.DB) *positionRepository {
	return &positionRepository{db: db}
}

func (r *positionRepository) List(ctx context.Context, market string) ([]model.PositionModel, error) {
	var out []model.PositionModel
	if err := r.db.WithContext(ctx).
		Where("market = ?", market).
		Order("symbol ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *positionRepository) Upsert(ctx context.Context, p *model.PositionModel) error {
	if p == nil {
		return errors.New("position cannot be nil")
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "market"}, {Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "average_price", "cost_basis", "updated_at"}),
	}).Create(p).Error
}

func (r *positionRepository) Delete(ctx context.Context, market, symbol string) error {
	return r.db.WithContext(ctx).
		Where("market = ? AND symbol = ?", market, symbol).
		Delete(&model.PositionModel{}).Error
}

func (r *positionRepository) DeleteAll(ctx context.Context, market string) error {
	return r.db.WithContext(ctx).Where("market = ?", market).Delete(&model.PositionModel{}).Error
}

type watchlistRepository struct {
	db *gorm.DB
}

func NewWatchlistRepo(db *gorm.DB) *watchlistRepository {
	return &watchlistRepository{db: db}
}

// List keeps insertion order so template refreshes are reproducible.
func (r *watchlistRepository) List(ctx context.Context, market string) ([]model.WatchItemModel, error) {
	var out []model.WatchItemModel
	if err := r.db.WithContext(ctx).
		Where("market = ?", market).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *watchlistRepository) Add(ctx context.Context, item *model.WatchItemModel) error {
	if item == nil {
		return errors.New("watch item cannot be nil")
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "market"}, {Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"rationale"}),
	}).Create(item).Error
}

func (r *watchlistRepository) Remove(ctx context.Context, market, symbol string) error {
	return r.db.WithContext(ctx).
		Where("market = ? AND symbol = ?", market, symbol).
		Delete(&model.WatchItemModel{}).Error
}

func (r *watchlistRepository) Replace(ctx context.Context, market string, items []model.WatchItemModel) error {
	if err := r.db.WithContext(ctx).Where("market = ?", market).Delete(&model.WatchItemModel{}).Error; err != nil {
		return err
	}
	for i := range items {
		items[i].ID = 0
		items[i].Market = market
		if err := r.Add(ctx, &items[i]); err != nil {
			return err
		}
	}
	return nil
}

type settingRepository struct {
	db *gorm.DB
}

func NewSettingRepo(db *gorm.DB) *settingRepository {
	return &settingRepository{db: db}
}

func (r *settingRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var s model.SettingModel
	err := r.db.WithContext(ctx).Where("name = ?", key).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s.Value, true, nil
}

func (r *settingRepository) Set(ctx context.Context, key, value string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&model.SettingModel{Key: key, Value: value}).Error
}
