package cli

import (
	"fmt"
	"strings"

	"kabupilot/internal/app"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7C3AED")).
		Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#3B82F6")).
		Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#3B82F6"))

	mutedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6B7280"))

	warnStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#F59E0B")).
		Bold(true)
)

// renderPortfolio 渲染 show-portfolio 的终端视图。
func renderPortfolio(v app.PortfolioView) string {
	var summary strings.Builder
	fmt.Fprintf(&summary, "%s %s\n", headerStyle.Render("Cash:"), v.Portfolio.Cash.StringFixed(2))
	fmt.Fprintf(&summary, "%s %s\n", headerStyle.Render("Total equity:"), v.Capital.TotalEquity.StringFixed(2))
	fmt.Fprintf(&summary, "%s %s (reserve %.0f%%)", headerStyle.Render("Investable:"), v.Capital.InvestableCash.StringFixed(2), v.Capital.ReserveRatio*100)
	if v.Capital.Approximate {
		fmt.Fprintf(&summary, "\n%s %s", warnStyle.Render("approximate:"), strings.Join(v.Capital.ApproximatedSymbols, ", "))
	}

	var positions strings.Builder
	positions.WriteString(headerStyle.Render(fmt.Sprintf("%-10s %10s %12s %14s", "SYMBOL", "QTY", "AVG PRICE", "VALUE")))
	sorted := v.Portfolio.SortedPositions()
	if len(sorted) == 0 {
		positions.WriteString("\n" + mutedStyle.Render("(no positions)"))
	}
	for _, p := range sorted {
		value := p.Cost()
		if mv, ok := v.Capital.PositionValues[p.Symbol]; ok {
			value = mv
		}
		fmt.Fprintf(&positions, "\n%-10s %10d %12s %14s", p.Symbol, p.Quantity, p.AveragePrice.StringFixed(2), value.StringFixed(2))
	}

	var watch strings.Builder
	watch.WriteString(headerStyle.Render("Watchlist"))
	if len(v.Portfolio.Watchlist) == 0 {
		watch.WriteString("\n" + mutedStyle.Render("(empty)"))
	}
	for _, w := range v.Portfolio.Watchlist {
		fmt.Fprintf(&watch, "\n%-10s %s", w.Symbol, mutedStyle.Render(w.Rationale))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(fmt.Sprintf("Portfolio [%s]", strings.ToUpper(v.Market))),
		sectionStyle.Render(summary.String()),
		sectionStyle.Render(positions.String()),
		sectionStyle.Render(watch.String()),
	)
}
