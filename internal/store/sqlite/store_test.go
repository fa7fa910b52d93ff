package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"kabupilot/internal/store"
	"kabupilot/internal/store/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	s, err := NewSqliteStore(filepath.Join(t.TempDir(), "kabupilot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPortfolioAndPositions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := store.InTx(ctx, s, func(uow store.UnitOfWork) error {
		p, err := uow.Portfolios().Get(ctx, "jp")
		require.NoError(t, err)
		assert.Nil(t, p)
		if err := uow.Portfolios().Save(ctx, &model.PortfolioModel{Market: "jp", Cash: decimal.NewFromInt(1000)}); err != nil {
			return err
		}
		if err := uow.Portfolios().Save(ctx, &model.PortfolioModel{Market: "jp", Cash: decimal.NewFromInt(750)}); err != nil {
			return err
		}
		return uow.Positions().Upsert(ctx, &model.PositionModel{Market: "jp", Symbol: "7203.T", Quantity: 10, AveragePrice: decimal.NewFromInt(25)})
	})
	require.NoError(t, err)

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()
	p, err := uow.Portfolios().Get(ctx, "jp")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.Cash.Equal(decimal.NewFromInt(750)))

	require.NoError(t, uow.Positions().Upsert(ctx, &model.PositionModel{Market: "jp", Symbol: "7203.T", Quantity: 20, AveragePrice: decimal.NewFromInt(30)}))
	positions, err := uow.Positions().List(ctx, "jp")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, int64(20), positions[0].Quantity)
	assert.True(t, positions[0].AveragePrice.Equal(decimal.NewFromInt(30)))

	require.NoError(t, uow.Positions().Delete(ctx, "jp", "7203.T"))
	positions, err = uow.Positions().List(ctx, "jp")
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.Portfolios().Save(ctx, &model.PortfolioModel{Market: "us", Cash: decimal.NewFromInt(5)}))
	require.NoError(t, uow.Rollback())

	uow, err = s.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()
	p, err := uow.Portfolios().Get(ctx, "us")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestWatchlistReplaceKeepsOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := store.InTx(ctx, s, func(uow store.UnitOfWork) error {
		repo := uow.Watchlist()
		require.NoError(t, repo.Add(ctx, &model.WatchItemModel{Market: "jp", Symbol: "OLD", Rationale: "x"}))
		return repo.Replace(ctx, "jp", []model.WatchItemModel{
			{Symbol: "B", Rationale: "b"},
			{Symbol: "A", Rationale: "a"},
		})
	})
	require.NoError(t, err)

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()
	items, err := uow.Watchlist().List(ctx, "jp")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "B", items[0].Symbol)
	assert.Equal(t, "A", items[1].Symbol)
}

func TestSettingsAndGoalsAndActivity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	err := store.InTx(ctx, s, func(uow store.UnitOfWork) error {
		require.NoError(t, uow.Settings().Set(ctx, "market", "jp"))
		require.NoError(t, uow.Settings().Set(ctx, "market", "us"))
		require.NoError(t, uow.Goals().Save(ctx, &model.GoalModel{Market: "us", Headline: "first"}))
		require.NoError(t, uow.Goals().Save(ctx, &model.GoalModel{Market: "us", Headline: "second"}))
		return uow.Activity().Append(ctx, []model.ActivityModel{
			{RunID: "r1", Market: "us", Agent: "explorer", Action: "discover", Status: "ok", Timestamp: now},
			{RunID: "r1", Market: "us", Agent: "decider", Action: "decide", Status: "ok", Timestamp: now.Add(time.Second)},
			{RunID: "r2", Market: "jp", Agent: "checker", Action: "review", Status: "ok", Timestamp: now.Add(2 * time.Second)},
		})
	})
	require.NoError(t, err)

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()

	v, ok, err := uow.Settings().Get(ctx, "market")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "us", v)
	_, ok, err = uow.Settings().Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	g, err := uow.Goals().Latest(ctx, "us")
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "second", g.Headline)
	g, err = uow.Goals().Latest(ctx, "jp")
	require.NoError(t, err)
	assert.Nil(t, g)

	run, err := uow.Activity().ListByRun(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, run, 2)
	assert.Equal(t, "explorer", run[0].Agent)

	recent, err := uow.Activity().ListRecent(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "checker", recent[0].Agent)
}
