package store

import (
	"context"

	"kabupilot/internal/store/model"
)

// UnitOfWork defines a transaction scope.
type UnitOfWork interface {
	// Commit commits the transaction.
	Commit() error
	// Rollback rolls back the transaction.
	Rollback() error

	Portfolios() PortfolioRepository
	Positions() PositionRepository
	Watchlist() WatchlistRepository
	Activity() ActivityRepository
	Goals() GoalRepository
	Settings() SettingRepository
}

// Store is the entry point for database access.
type Store interface {
	// Begin starts a new UnitOfWork (transaction).
	Begin(ctx context.Context) (UnitOfWork, error)
	// Close closes the store connection.
	Close() error
}

// PortfolioRepository persists per-market cash.
type PortfolioRepository interface {
	Get(ctx context.Context, market string) (*model.PortfolioModel, error)
	Save(ctx context.Context, p *model.PortfolioModel) error
}

// PositionRepository persists held positions.
type PositionRepository interface {
	List(ctx context.Context, market string) ([]model.PositionModel, error)
	Upsert(ctx context.Context, p *model.PositionModel) error
	Delete(ctx context.Context, market, symbol string) error
	DeleteAll(ctx context.Context, market string) error
}

// WatchlistRepository persists watch items.
type WatchlistRepository interface {
	List(ctx context.Context, market string) ([]model.WatchItemModel, error)
	Add(ctx context.Context, item *model.WatchItemModel) error
	Remove(ctx context.Context, market, symbol string) error
	Replace(ctx context.Context, market string, items []model.WatchItemModel) error
}

// ActivityRepository stores the audit trail of pipeline runs.
type ActivityRepository interface {
	Append(ctx context.Context, records []model.ActivityModel) error
	ListByRun(ctx context.Context, runID string) ([]model.ActivityModel, error)
	ListRecent(ctx context.Context, market string, limit int) ([]model.ActivityModel, error)
}

// GoalRepository stores weekly goals.
type GoalRepository interface {
	Save(ctx context.Context, g *model.GoalModel) error
	Latest(ctx context.Context, market string) (*model.GoalModel, error)
}

// SettingRepository is a small key/value table.
type SettingRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// InTx runs fn inside a UnitOfWork and commits when fn returns nil.
func InTx(ctx context.Context, s Store, fn func(UnitOfWork) error) error {
	uow, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()
	if err := fn(uow); err != nil {
		return err
	}
	return uow.Commit()
}
