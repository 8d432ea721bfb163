package services

import (
	"testing"
	"time"

	"github.com/artpro/stockpulse/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValuePortfolio(t *testing.T) {
	items := []models.PortfolioItem{
		{ID: 1, Ticker: "fpt", Quantity: 100, PurchasePrice: 70},
		{ID: 2, Ticker: "VNM", Quantity: 10, PurchasePrice: 80},
		{ID: 3, Ticker: "NEW", Quantity: 5, PurchasePrice: 20},
	}
	prices := map[string]float64{"FPT": 75.2, "VNM": 78.5}

	summary := ValuePortfolio(items, prices, "USD")

	assert.Equal(t, "USD", summary.Currency)
	assert.InDelta(t, 7000+800+100, summary.TotalCost, 1e-9)
	assert.InDelta(t, 7520+785+100, summary.TotalValue, 1e-9)
	assert.InDelta(t, 505, summary.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 6.39, summary.UnrealizedPnLPercent, 1e-9)

	require.Len(t, summary.Holdings, 3)
	assert.Equal(t, "FPT", summary.Holdings[0].Ticker)
	assert.True(t, summary.Holdings[0].Priced)
	assert.InDelta(t, 520, summary.Holdings[0].UnrealizedPnL, 1e-9)

	unpriced := summary.Holdings[2]
	assert.Equal(t, "NEW", unpriced.Ticker)
	assert.False(t, unpriced.Priced)
	assert.InDelta(t, 20, unpriced.CurrentPrice, 1e-9)
	assert.InDelta(t, 100, unpriced.MarketValue, 1e-9)

	assert.Equal(t, "$8,405.00", summary.Display.TotalValue)
}

func TestValuePortfolio_Empty(t *testing.T) {
	summary := ValuePortfolio(nil, nil, "VND")
	assert.Empty(t, summary.Holdings)
	assert.Zero(t, summary.TotalValue)
	assert.Zero(t, summary.UnrealizedPnLPercent)
}

func TestFormatMoney_UnknownCurrency(t *testing.T) {
	assert.Equal(t, "12.50", FormatMoney(decimal.NewFromFloat(12.5), "ZZZ"))
}

func TestSummarizeMarket(t *testing.T) {
	stocks := []models.Stock{
		{Symbol: "A", Name: "A Corp", Price: ptr(10.0), PercentChange: ptr(3.0)},
		{Symbol: "B", Name: "B Corp", Price: ptr(20.0), PercentChange: ptr(-2.0)},
		{Symbol: "C", Name: "C Corp", PercentChange: ptr(0.0)},
		{Symbol: "D", Name: "D Corp"},
		{Symbol: "E", Name: "E Corp", Price: ptr(5.0), PercentChange: ptr(1.0)},
	}
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

	summary := SummarizeMarket(stocks, now)

	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 2, summary.Advancers)
	assert.Equal(t, 1, summary.Decliners)
	assert.Equal(t, 2, summary.Unchanged)
	require.Len(t, summary.Gainers, 2)
	assert.Equal(t, "A", summary.Gainers[0].Symbol)
	assert.Equal(t, "E", summary.Gainers[1].Symbol)
	require.Len(t, summary.Losers, 1)
	assert.Equal(t, "B", summary.Losers[0].Symbol)
	assert.Equal(t, now, summary.UpdatedAt)
}

func TestPeriodInterval(t *testing.T) {
	assert.Equal(t, IntervalWeekly, PeriodInterval("1w"))
	assert.Equal(t, IntervalWeekly, PeriodInterval("WEEKLY"))
	assert.Equal(t, IntervalMonthly, PeriodInterval("1m"))
	assert.Equal(t, IntervalDaily, PeriodInterval("1d"))
	assert.Equal(t, IntervalDaily, PeriodInterval(""))
}
