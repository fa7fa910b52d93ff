package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioModel maps to 'portfolios': one row per market holding free cash.
type PortfolioModel struct {
	Market    string          `gorm:"column:market;primaryKey"`
	Cash      decimal.Decimal `gorm:"column:cash;type:text;not null"`
	UpdatedAt time.Time       `gorm:"column:updated_at"`
}

func (PortfolioModel) TableName() string { return "portfolios" }

// PositionModel maps to 'positions'. Rows with quantity 0 are deleted, never stored.
type PositionModel struct {
	ID           uint64          `gorm:"column:id;primaryKey;autoIncrement"`
	Market       string          `gorm:"column:market;uniqueIndex:idx_positions_market_symbol;not null"`
	Symbol       string          `gorm:"column:symbol;uniqueIndex:idx_positions_market_symbol;not null"`
	Quantity     int64           `gorm:"column:quantity;not null"`
	AveragePrice decimal.Decimal `gorm:"column:average_price;type:text;not null"`
	CostBasis    decimal.Decimal `gorm:"column:cost_basis;type:text;not null;default:'0'"`
	UpdatedAt    time.Time       `gorm:"column:updated_at"`
}

func (PositionModel) TableName() string { return "positions" }

// WatchItemModel maps to 'watchlist'.
type WatchItemModel struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	Market    string    `gorm:"column:market;uniqueIndex:idx_watchlist_market_symbol;not null"`
	Symbol    string    `gorm:"column:symbol;uniqueIndex:idx_watchlist_market_symbol;not null"`
	Rationale string    `gorm:"column:rationale"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (WatchItemModel) TableName() string { return "watchlist" }

// SettingModel maps to 'settings' (active market etc.).
type SettingModel struct {
	Key   string `gorm:"column:name;primaryKey"`
	Value string `gorm:"column:value"`
}

func (SettingModel) TableName() string { return "settings" }
