package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"kabupilot/internal/store"
	"kabupilot/internal/store/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type SqliteStore struct {
	db *gorm.DB
}

func NewSqliteStore(path string) (*SqliteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	return newSqliteStore(db)
}

func newSqliteStore(db *gorm.DB) (*SqliteStore, error) {
	models := []interface{}{
		&model.PortfolioModel{},
		&model.PositionModel{},
		&model.WatchItemModel{},
		&model.SettingModel{},
		&model.ActivityModel{},
		&model.GoalModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		// 单写者：所有事务串行落到同一连接。
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Begin(ctx context.Context) (store.UnitOfWork, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &gormUnitOfWork{tx: tx}, nil
}

func (s *SqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormUnitOfWork struct {
	tx *gorm.DB
}

func (u *gormUnitOfWork) Portfolios() store.PortfolioRepository { return NewPortfolioRepo(u.tx) }
func (u *gormUnitOfWork) Positions() store.PositionRepository   { return NewPositionRepo(u.tx) }
func (u *gormUnitOfWork) Watchlist() store.WatchlistRepository  { return NewWatchlistRepo(u.tx) }
func (u *gormUnitOfWork) Activity() store.ActivityRepository    { return NewActivityRepo(u.tx) }
func (u *gormUnitOfWork) Goals() store.GoalRepository           { return NewGoalRepo(u.tx) }
func (u *gormUnitOfWork) Settings() store.SettingRepository     { return NewSettingRepo(u.tx) }

func (u *gormUnitOfWork) Commit() error {
	return u.tx.Commit().Error
}

func (u *gormUnitOfWork) Rollback() error {
	return u.tx.Rollback().Error
}
