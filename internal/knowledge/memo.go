// Package knowledge 保存按市场划分的共享知识备忘录。每个市场一个 SQLite 文件，
// 只追加不覆盖；agent 只拿到 Reader 能力，写入由流水线统一完成。
package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

var ErrUnsupportedMarket = errors.New("unsupported market")

type Entry struct {
	ID        int64           `json:"id"`
	Market    string          `json:"market"`
	Title     string          `json:"title"`
	Symbol    string          `json:"symbol,omitempty"`
	Sector    string          `json:"sector,omitempty"`
	Content   string          `json:"content"`
	FairPrice decimal.Decimal `json:"fair_price"`
	Source    string          `json:"source,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Reader 是交给 agent 的只读能力。
type Reader interface {
	Latest(ctx context.Context, market string) (*Entry, error)
	Recent(ctx context.Context, market string, limit int) ([]Entry, error)
	Search(ctx context.Context, market, query string) ([]Entry, error)
}

type Memo struct {
	root    string
	markets map[string]bool
	now     func() time.Time

	mu  sync.Mutex
	dbs map[string]*sql.DB
	// lastStamp 保证同一进程内 created_at 单调递增。
	lastStamp int64
}

func NewMemo(root string, markets []string) (*Memo, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("knowledge dir 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	m := &Memo{root: root, markets: make(map[string]bool), dbs: make(map[string]*sql.DB), now: time.Now}
	for _, mk := range markets {
		m.markets[strings.ToLower(strings.TrimSpace(mk))] = true
	}
	return m, nil
}

func (m *Memo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for k, db := range m.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.dbs, k)
	}
	return firstErr
}

func (m *Memo) Markets() []string {
	out := make([]string, 0, len(m.markets))
	for mk := range m.markets {
		out = append(out, mk)
	}
	return out
}

func (m *Memo) db(market string) (*sql.DB, error) {
	market = strings.ToLower(strings.TrimSpace(market))
	if !m.markets[market] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMarket, market)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if db, ok := m.dbs[market]; ok {
		return db, nil
	}
	path := filepath.Join(m.root, market+".db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	m.dbs[market] = db
	return db, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS knowledge_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			symbol TEXT NOT NULL DEFAULT '',
			sector TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			fair_price TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_knowledge_created ON knowledge_entries (created_at, id);
		CREATE INDEX IF NOT EXISTS idx_knowledge_symbol ON knowledge_entries (symbol);
	`)
	return err
}

func (m *Memo) stamp(t time.Time) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns := t.UnixNano()
	if ns <= m.lastStamp {
		ns = m.lastStamp + 1
	}
	m.lastStamp = ns
	return ns
}

// Append 总是插入新条目，返回带 ID 与 CreatedAt 的副本。
func (m *Memo) Append(ctx context.Context, market string, e Entry) (Entry, error) {
	db, err := m.db(market)
	if err != nil {
		return Entry{}, err
	}
	if strings.TrimSpace(e.Title) == "" && strings.TrimSpace(e.Content) == "" {
		return Entry{}, fmt.Errorf("knowledge entry needs a title or content")
	}
	e.Symbol = strings.ToUpper(strings.TrimSpace(e.Symbol))
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now()
	}
	ns := m.stamp(e.CreatedAt)
	fair := ""
	if e.FairPrice.IsPositive() {
		fair = e.FairPrice.String()
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO knowledge_entries (title, symbol, sector, content, fair_price, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Title, e.Symbol, e.Sector, e.Content, fair, e.Source, ns)
	if err != nil {
		return Entry{}, fmt.Errorf("append knowledge (%s): %w", market, err)
	}
	e.ID, _ = res.LastInsertId()
	e.Market = strings.ToLower(strings.TrimSpace(market))
	e.CreatedAt = time.Unix(0, ns).UTC()
	return e, nil
}

const selectColumns = `SELECT id, title, symbol, sector, content, fair_price, source, created_at FROM knowledge_entries`

// Latest 返回创建顺序最大的一条，备忘录为空时返回 nil。
func (m *Memo) Latest(ctx context.Context, market string) (*Entry, error) {
	list, err := m.Recent(ctx, market, 1)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

// Recent 按 created_at、id 倒序返回最多 limit 条。
func (m *Memo) Recent(ctx context.Context, market string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	return m.query(ctx, market, selectColumns+` ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
}

// Search 对 title/symbol/sector/content 做大小写无关的逐词匹配，所有词都需命中。
// 结果顺序与 Recent 相同，对相同输入稳定。
func (m *Memo) Search(ctx context.Context, market, query string) ([]Entry, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return m.Recent(ctx, market, 0)
	}
	var (
		where []string
		args  []any
	)
	for _, term := range terms {
		where = append(where, `lower(title || ' ' || symbol || ' ' || sector || ' ' || content) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(term)+"%")
	}
	stmt := selectColumns + ` WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_at DESC, id DESC`
	return m.query(ctx, market, stmt, args...)
}

// FairPrice 返回该代码最新一条带估值的条目价格。
func (m *Memo) FairPrice(ctx context.Context, market, symbol string) (decimal.Decimal, bool, error) {
	list, err := m.query(ctx, market,
		selectColumns+` WHERE symbol = ? AND fair_price <> '' ORDER BY created_at DESC, id DESC LIMIT 1`,
		strings.ToUpper(strings.TrimSpace(symbol)))
	if err != nil || len(list) == 0 {
		return decimal.Zero, false, err
	}
	return list[0].FairPrice, true, nil
}

func (m *Memo) Count(ctx context.Context, market string) (int, error) {
	db, err := m.db(market)
	if err != nil {
		return 0, err
	}
	var n int
	err = db.QueryRowContext(ctx, `SELECT COUNT(1) FROM knowledge_entries`).Scan(&n)
	return n, err
}

func (m *Memo) query(ctx context.Context, market, stmt string, args ...any) ([]Entry, error) {
	db, err := m.db(market)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query knowledge (%s): %w", market, err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e    Entry
			fair string
			ns   int64
		)
		if err := rows.Scan(&e.ID, &e.Title, &e.Symbol, &e.Sector, &e.Content, &fair, &e.Source, &ns); err != nil {
			return nil, err
		}
		if fair != "" {
			e.FairPrice, _ = decimal.NewFromString(fair)
		}
		e.Market = strings.ToLower(strings.TrimSpace(market))
		e.CreatedAt = time.Unix(0, ns).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Seed 写入市场模板；备忘录非空时不做任何事，force 时先清空再写入。
func (m *Memo) Seed(ctx context.Context, market string, seeds []Seed, force bool) (int, error) {
	db, err := m.db(market)
	if err != nil {
		return 0, err
	}
	if force {
		if _, err := db.ExecContext(ctx, `DELETE FROM knowledge_entries`); err != nil {
			return 0, err
		}
	} else {
		n, err := m.Count(ctx, market)
		if err != nil {
			return 0, err
		}
		if n > 0 {
			return 0, nil
		}
	}
	for _, s := range seeds {
		if _, err := m.Append(ctx, market, s.entry()); err != nil {
			return 0, err
		}
	}
	return len(seeds), nil
}
