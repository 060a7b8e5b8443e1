package presentation

import (
	"strings"
	"testing"

	"Healthbite/internal/conversation"
	"Healthbite/internal/nutrition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleRecords = []nutrition.Record{
	{Date: "2024-06-01", Meal: "Breakfast", FatPercent: 20, CalorieIntake: 350, Sugar: 8},
	{Date: "2024-06-01", Meal: "Lunch", FatPercent: 25.5, CalorieIntake: 600, Sugar: 12},
	{Date: "2024-06-02", Meal: "Breakfast", FatPercent: 18, CalorieIntake: 450, Sugar: 6},
}

func TestTranscriptLabelsSpeakers(t *testing.T) {
	msgs := Transcript([]conversation.Turn{
		{Role: conversation.RoleUser, Content: "hi"},
		{Role: conversation.RoleOnboarding, Content: "hello"},
		{Role: conversation.RoleEngagement, Content: "plan"},
	})
	require.Len(t, msgs, 3)
	assert.Equal(t, "You", msgs[0].Speaker)
	assert.True(t, msgs[0].FromUser)
	assert.Equal(t, AssistantName, msgs[1].Speaker)
	assert.Equal(t, AssistantName, msgs[2].Speaker)
	assert.Equal(t, "engagement", msgs[2].Role)

	assert.NotNil(t, Transcript(nil))
}

func TestNewTableKeepsSourceOrder(t *testing.T) {
	tb := NewTable(sampleRecords)
	assert.Equal(t, []string{"Date", "Meal", "Fat%", "Calorie Intake", "Sugar"}, tb.Columns)
	require.Len(t, tb.Rows, 3)
	assert.Equal(t, []string{"2024-06-01", "Lunch", "25.5", "600", "12"}, tb.Rows[1])
	assert.Equal(t, "Breakfast", tb.Rows[2][1])
}

func TestCalorieChartAveragesPerMeal(t *testing.T) {
	chart := NewCalorieChart(sampleRecords)
	require.Len(t, chart.Bars, 2)

	assert.Equal(t, "Breakfast", chart.Bars[0].Category)
	assert.InDelta(t, 400, chart.Bars[0].Value, 1e-9)
	assert.Equal(t, 2, chart.Bars[0].Samples)

	assert.Equal(t, "Lunch", chart.Bars[1].Category)
	assert.InDelta(t, 600, chart.Bars[1].Value, 1e-9)
	assert.InDelta(t, 600, chart.Max, 1e-9)
	assert.Equal(t, "Meal", chart.XLabel)
	assert.Equal(t, "Calorie Intake", chart.YLabel)
}

func TestCalorieChartEmpty(t *testing.T) {
	chart := NewCalorieChart(nil)
	assert.Empty(t, chart.Bars)
	assert.NotNil(t, chart.Bars)
	assert.Zero(t, chart.Max)
}

func TestMealPlanViewByStatus(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		v, err := NewMealPlanView("# Plan", nutrition.Result{Status: nutrition.StatusOK, Records: sampleRecords})
		require.NoError(t, err)
		require.NotNil(t, v.Table)
		require.NotNil(t, v.Chart)
		assert.Empty(t, v.Notice)
		assert.Contains(t, string(v.HTML), "<h1")
	})

	t.Run("absent", func(t *testing.T) {
		v, err := NewMealPlanView("plan", nutrition.Result{Status: nutrition.StatusAbsent})
		require.NoError(t, err)
		assert.Nil(t, v.Table)
		assert.Nil(t, v.Chart)
		assert.Contains(t, v.Notice, "No nutritional data")
	})

	t.Run("parse error", func(t *testing.T) {
		v, err := NewMealPlanView("plan", nutrition.Result{Status: nutrition.StatusParseError})
		require.NoError(t, err)
		assert.Nil(t, v.Table)
		assert.Contains(t, v.Notice, "could not be read")
	})
}

func TestRenderHTMLSanitizes(t *testing.T) {
	html, err := RenderHTML("**bold** <script>alert(1)</script>\n\n| a | b |\n|---|---|\n| 1 | 2 |")
	require.NoError(t, err)
	out := string(html)
	assert.Contains(t, out, "<strong>bold</strong>")
	assert.Contains(t, out, "<table>")
	assert.NotContains(t, out, "<script>")
}

func TestTerminalPlainRendering(t *testing.T) {
	term, err := NewTerminal(true)
	require.NoError(t, err)

	assert.Contains(t, term.Message(Message{Speaker: "You", Content: "hi", FromUser: true}), "hi")

	out := term.MealPlan(MealPlanView{
		Markdown: "Eat well",
		Status:   nutrition.StatusOK,
		Table:    &Table{Columns: Columns, Rows: NewTable(sampleRecords).Rows},
		Chart:    func() *BarChart { c := NewCalorieChart(sampleRecords); return &c }(),
	})
	assert.Contains(t, out, "Eat well")
	assert.Contains(t, out, "Calorie Intake")
	assert.Contains(t, out, "Breakfast")
	assert.Contains(t, out, "█")

	notice := term.MealPlan(MealPlanView{Markdown: "plan", Notice: "No nutritional data found"})
	assert.Contains(t, notice, "No nutritional data found")
}

func TestRenderChartScalesToMax(t *testing.T) {
	out := RenderChart(BarChart{
		XLabel: "Meal", YLabel: "Calorie Intake", Max: 200,
		Bars: []Bar{{Category: "A", Value: 200}, {Category: "B", Value: 100}},
	})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, chartWidth, strings.Count(lines[1], "█"))
	assert.Equal(t, chartWidth/2, strings.Count(lines[2], "█"))
}
