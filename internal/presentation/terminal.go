package presentation

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const (
	chartWidth = 40
	wordWrap   = 80
)

var (
	speakerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A"))
	userStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2196F3"))
	noticeStyle     = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#FFC107"))
	headerStyle     = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle       = lipgloss.NewStyle().Padding(0, 1)
	barStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#e57373"))
	chartTitleStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

// Terminal renders views for the interactive CLI.
type Terminal struct {
	renderer *glamour.TermRenderer
}

// NewTerminal creates a terminal renderer. When plain is set, markdown is
// printed without styling (useful for pipes and tests).
func NewTerminal(plain bool) (*Terminal, error) {
	if plain {
		return &Terminal{}, nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return &Terminal{renderer: r}, nil
}

// Markdown renders assistant markdown for the terminal.
func (t *Terminal) Markdown(md string) string {
	if t.renderer == nil {
		return md
	}
	out, err := t.renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

// Message formats one chat bubble.
func (t *Terminal) Message(m Message) string {
	if m.FromUser {
		return userStyle.Render(m.Speaker+":") + " " + m.Content
	}
	return speakerStyle.Render(m.Speaker+":") + "\n" + t.Markdown(m.Content)
}

// MealPlan renders the plan, then the table and chart or the notice.
func (t *Terminal) MealPlan(v MealPlanView) string {
	var b strings.Builder
	b.WriteString(t.Markdown(v.Markdown))
	b.WriteString("\n")

	if v.Notice != "" {
		b.WriteString(noticeStyle.Render(v.Notice))
		b.WriteString("\n")
		return b.String()
	}
	if v.Table != nil {
		b.WriteString(RenderTable(*v.Table))
		b.WriteString("\n\n")
	}
	if v.Chart != nil {
		b.WriteString(RenderChart(*v.Chart))
	}
	return b.String()
}

// RenderTable draws the nutrition table with a rounded border.
func RenderTable(tb Table) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		Headers(tb.Columns...).
		Rows(tb.Rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

// RenderChart draws a horizontal bar chart, scaling bars to the largest value.
func RenderChart(c BarChart) string {
	var b strings.Builder
	b.WriteString(chartTitleStyle.Render(fmt.Sprintf("%s by %s", c.YLabel, c.XLabel)))
	b.WriteString("\n")

	labelWidth := 0
	for _, bar := range c.Bars {
		labelWidth = max(labelWidth, lipgloss.Width(bar.Category))
	}

	for _, bar := range c.Bars {
		n := 0
		if c.Max > 0 {
			n = int(math.Round(bar.Value / c.Max * chartWidth))
		}
		fmt.Fprintf(&b, "%-*s %s %s\n",
			labelWidth, bar.Category,
			barStyle.Render(strings.Repeat("█", n)),
			formatNumber(math.Round(bar.Value*100)/100),
		)
	}
	return b.String()
}
