package knowledge

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"kabupilot/internal/portfolio"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// watchlistTemplateSize 是刷新 watchlist 时取用的种子条数。
const watchlistTemplateSize = 5

//go:embed seeds.yaml
var defaultSeeds []byte

// Seed 是市场模板中的一条初始知识。
type Seed struct {
	Symbol    string `yaml:"symbol"`
	Sector    string `yaml:"sector"`
	Insight   string `yaml:"insight"`
	FairPrice string `yaml:"fair_price"`
	Source    string `yaml:"source"`
}

// Templates 按市场保存种子列表，顺序即文件中的顺序。
type Templates map[string][]Seed

func ParseTemplates(raw []byte) (Templates, error) {
	var t Templates
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse knowledge templates: %w", err)
	}
	for market, seeds := range t {
		for i, s := range seeds {
			if strings.TrimSpace(s.Symbol) == "" {
				return nil, fmt.Errorf("template %s[%d] missing symbol", market, i)
			}
			if _, err := decimal.NewFromString(s.FairPrice); err != nil {
				return nil, fmt.Errorf("template %s[%d] bad fair_price %q: %w", market, i, s.FairPrice, err)
			}
		}
	}
	return t, nil
}

// DefaultTemplates 返回内置的 jp/us 模板。
func DefaultTemplates() Templates {
	t, err := ParseTemplates(defaultSeeds)
	if err != nil {
		panic(err)
	}
	return t
}

func (t Templates) Markets() []string {
	out := make([]string, 0, len(t))
	for m := range t {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (t Templates) Supports(market string) bool {
	_, ok := t[market]
	return ok
}

// Watchlist 返回市场模板对应的自选列表。
func (t Templates) Watchlist(market string) []portfolio.WatchItem {
	seeds := t[market]
	if len(seeds) > watchlistTemplateSize {
		seeds = seeds[:watchlistTemplateSize]
	}
	out := make([]portfolio.WatchItem, 0, len(seeds))
	for _, s := range seeds {
		out = append(out, portfolio.WatchItem{
			Symbol:    portfolio.NormalizeSymbol(s.Symbol),
			Rationale: fmt.Sprintf("Seed from knowledge base (%s)", s.Sector),
		})
	}
	return out
}

func (s Seed) entry() Entry {
	price, _ := decimal.NewFromString(s.FairPrice)
	return Entry{
		Title:     fmt.Sprintf("%s %s outlook", portfolio.NormalizeSymbol(s.Symbol), s.Sector),
		Symbol:    portfolio.NormalizeSymbol(s.Symbol),
		Sector:    s.Sector,
		Content:   strings.TrimSpace(s.Insight),
		FairPrice: price,
		Source:    s.Source,
	}
}
