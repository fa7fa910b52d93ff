package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"kabupilot/internal/agent"
	"kabupilot/internal/gateway/provider"
	"kabupilot/internal/pkg/jsonutil"
	"kabupilot/internal/pkg/text"
	"kabupilot/internal/portfolio"

	"github.com/tidwall/gjson"
)

const modelAction = "model-call"

var tickerPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,11}$`)

// callModel 调用模型并取回复中的第一个 JSON 对象。
func callModel(ctx context.Context, m provider.ModelProvider, purpose, system, user string, maxTokens int) (gjson.Result, error) {
	if m == nil || !m.Enabled() {
		return gjson.Result{}, fmt.Errorf("%s model not configured", purpose)
	}
	raw, err := m.Call(ctx, provider.ChatPayload{
		System:     system,
		User:       user,
		ExpectJSON: true,
		MaxTokens:  maxTokens,
		Purpose:    purpose,
	})
	if err != nil {
		return gjson.Result{}, err
	}
	obj, ok := jsonutil.ExtractObject(raw)
	if !ok {
		return gjson.Result{}, fmt.Errorf("model reply has no JSON object")
	}
	return obj, nil
}

// stringList 读取字符串数组，去掉空项并截断过长的条目。
func stringList(r gjson.Result, limit int) []string {
	var out []string
	for _, item := range r.Array() {
		if len(out) >= limit {
			break
		}
		s := strings.TrimSpace(item.String())
		if s == "" {
			continue
		}
		out = append(out, text.Truncate(s, maxRationaleRunes))
	}
	return out
}

// tickerList 读取代码数组，只保留形如股票代码的条目。
func tickerList(r gjson.Result, limit int) []string {
	var out []string
	for _, item := range r.Array() {
		if len(out) >= limit {
			break
		}
		s := portfolio.NormalizeSymbol(item.String())
		if tickerPattern.MatchString(s) {
			out = append(out, s)
		}
	}
	return out
}

func modelFallback(rec *agent.Recorder, m provider.ModelProvider, err error) {
	rec.Fail(modelAction, err.Error(), map[string]any{"model": m.ID(), "fallback": "heuristic"})
}

func writeHoldings(b *strings.Builder, state portfolio.State) {
	positions := state.SortedPositions()
	if len(positions) == 0 {
		b.WriteString("Holdings: none\n")
		return
	}
	b.WriteString("Holdings:\n")
	for _, p := range positions {
		fmt.Fprintf(b, "- %s qty %d avg %s\n", p.Symbol, p.Quantity, p.AveragePrice.String())
	}
}
