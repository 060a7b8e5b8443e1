/*
Package presentation turns conversation snapshots and extracted nutrition
records into view models: a chat transcript, a nutrition table, a calorie bar
chart, and the meal plan rendered as HTML or terminal text.
*/
package presentation

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"

	"Healthbite/internal/conversation"
	"Healthbite/internal/nutrition"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// AssistantName is shown for both assistant roles.
const AssistantName = "Healthbite Assistant"

// Columns of the nutrition table, in the order the assistant emits them.
var Columns = []string{"Date", "Meal", "Fat%", "Calorie Intake", "Sugar"}

// Message is one chat bubble.
type Message struct {
	Speaker  string `json:"speaker"`
	Role     string `json:"role"`
	Content  string `json:"content"`
	FromUser bool   `json:"from_user"`
}

// Transcript converts turns into chat bubbles.
func Transcript(turns []conversation.Turn) []Message {
	out := make([]Message, 0, len(turns))
	for _, t := range turns {
		m := Message{Role: string(t.Role), Content: t.Content}
		if t.Role == conversation.RoleUser {
			m.Speaker = "You"
			m.FromUser = true
		} else {
			m.Speaker = AssistantName
		}
		out = append(out, m)
	}
	return out
}

// Table is the nutrition table view.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// NewTable renders one row per record, in source order.
func NewTable(records []nutrition.Record) Table {
	t := Table{Columns: Columns, Rows: make([][]string, 0, len(records))}
	for _, r := range records {
		t.Rows = append(t.Rows, []string{
			r.Date,
			r.Meal,
			formatNumber(r.FatPercent),
			formatNumber(r.CalorieIntake),
			formatNumber(r.Sugar),
		})
	}
	return t
}

// Bar is one category of the chart.
type Bar struct {
	Category string  `json:"category"`
	Value    float64 `json:"value"`
	Samples  int     `json:"samples"`
}

// BarChart plots calorie intake per meal.
type BarChart struct {
	XLabel string  `json:"x_label"`
	YLabel string  `json:"y_label"`
	Bars   []Bar   `json:"bars"`
	Max    float64 `json:"max"`
}

// NewCalorieChart groups records by meal in first-seen order and plots the
// mean calorie intake of each group.
func NewCalorieChart(records []nutrition.Record) BarChart {
	chart := BarChart{XLabel: "Meal", YLabel: "Calorie Intake", Bars: []Bar{}}
	index := make(map[string]int)
	sums := []float64{}

	for _, r := range records {
		i, ok := index[r.Meal]
		if !ok {
			i = len(chart.Bars)
			index[r.Meal] = i
			chart.Bars = append(chart.Bars, Bar{Category: r.Meal})
			sums = append(sums, 0)
		}
		sums[i] += r.CalorieIntake
		chart.Bars[i].Samples++
	}

	for i := range chart.Bars {
		chart.Bars[i].Value = sums[i] / float64(chart.Bars[i].Samples)
		if chart.Bars[i].Value > chart.Max {
			chart.Max = chart.Bars[i].Value
		}
	}
	return chart
}

// Percent is the bar length relative to the tallest bar, in [0, 100].
func (c BarChart) Percent(b Bar) float64 {
	if c.Max <= 0 {
		return 0
	}
	return b.Value / c.Max * 100
}

// MealPlanView is everything the meal plan page shows.
type MealPlanView struct {
	Markdown string           `json:"markdown"`
	HTML     template.HTML    `json:"html"`
	Status   nutrition.Status `json:"status"`
	Notice   string           `json:"notice,omitempty"`
	Table    *Table           `json:"table,omitempty"`
	Chart    *BarChart        `json:"chart,omitempty"`
}

// NewMealPlanView builds the page model for a finished conversation. Missing
// and malformed data blocks get different notices.
func NewMealPlanView(plan string, data nutrition.Result) (MealPlanView, error) {
	html, err := RenderHTML(plan)
	if err != nil {
		return MealPlanView{}, err
	}

	view := MealPlanView{Markdown: plan, HTML: html, Status: data.Status}
	switch data.Status {
	case nutrition.StatusOK:
		table := NewTable(data.Records)
		chart := NewCalorieChart(data.Records)
		view.Table, view.Chart = &table, &chart
	case nutrition.StatusAbsent:
		view.Notice = "No nutritional data found in the assistant's response."
	case nutrition.StatusParseError:
		view.Notice = "The assistant included nutritional data, but it could not be read."
	}
	return view, nil
}

var (
	markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
	policy   = bluemonday.UGCPolicy()
)

// RenderHTML converts assistant markdown to sanitized HTML.
func RenderHTML(md string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return template.HTML(policy.SanitizeBytes(buf.Bytes())), nil
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
