package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/artpro/stockpulse/pkg/models"
)

// HistoryProvider serves price history and symbol search
type HistoryProvider interface {
	FetchTimeSeries(ctx context.Context, symbol string, interval Interval) ([]PricePoint, error)
	SearchSymbols(ctx context.Context, keywords string) ([]SymbolMatch, error)
}

// PeriodInterval maps a history period to a provider interval
func PeriodInterval(period string) Interval {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "1w", "weekly":
		return IntervalWeekly
	case "1m", "monthly":
		return IntervalMonthly
	default:
		return IntervalDaily
	}
}

// Mover is one entry in the gainers or losers list
type Mover struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	PercentChange float64 `json:"percent_change"`
}

// MarketSummary describes the stored universe of stocks
type MarketSummary struct {
	Total     int       `json:"total"`
	Advancers int       `json:"advancers"`
	Decliners int       `json:"decliners"`
	Unchanged int       `json:"unchanged"`
	Gainers   []Mover   `json:"top_gainers"`
	Losers    []Mover   `json:"top_losers"`
	UpdatedAt time.Time `json:"updated_at"`
}

const topMovers = 5

// SummarizeMarket counts advancers and decliners and picks the top movers
// among stocks that have a known percent change.
func SummarizeMarket(stocks []models.Stock, now time.Time) MarketSummary {
	summary := MarketSummary{
		Total:     len(stocks),
		Gainers:   []Mover{},
		Losers:    []Mover{},
		UpdatedAt: now,
	}

	var movers []Mover
	for _, stock := range stocks {
		if stock.PercentChange == nil {
			summary.Unchanged++
			continue
		}
		pct := *stock.PercentChange
		switch {
		case pct > 0:
			summary.Advancers++
		case pct < 0:
			summary.Decliners++
		default:
			summary.Unchanged++
		}

		m := Mover{Symbol: stock.Symbol, Name: stock.Name, PercentChange: pct}
		if stock.Price != nil {
			m.Price = *stock.Price
		}
		movers = append(movers, m)
	}

	sort.SliceStable(movers, func(i, j int) bool { return movers[i].PercentChange > movers[j].PercentChange })
	for _, m := range movers {
		if m.PercentChange <= 0 || len(summary.Gainers) == topMovers {
			break
		}
		summary.Gainers = append(summary.Gainers, m)
	}
	for i := len(movers) - 1; i >= 0; i-- {
		m := movers[i]
		if m.PercentChange >= 0 || len(summary.Losers) == topMovers {
			break
		}
		summary.Losers = append(summary.Losers, m)
	}

	return summary
}
