package services

import (
	"sort"

	"github.com/Rhymond/go-money"
	"github.com/artpro/stockpulse/pkg/models"
	"github.com/shopspring/decimal"
)

// HoldingValue is one valued portfolio position
type HoldingValue struct {
	ItemID        uint    `json:"item_id"`
	Ticker        string  `json:"ticker"`
	Quantity      float64 `json:"quantity"`
	PurchasePrice float64 `json:"purchase_price"`
	CurrentPrice  float64 `json:"current_price"`
	// Priced is false when no stored price exists and the holding is valued at cost
	Priced        bool    `json:"priced"`
	CostBasis     float64 `json:"cost_basis"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Weight        float64 `json:"weight"`
}

// PortfolioSummary aggregates a user's holdings
type PortfolioSummary struct {
	Currency             string         `json:"currency"`
	Holdings             []HoldingValue `json:"holdings"`
	TotalCost            float64        `json:"total_cost"`
	TotalValue           float64        `json:"total_value"`
	UnrealizedPnL        float64        `json:"unrealized_pnl"`
	UnrealizedPnLPercent float64        `json:"unrealized_pnl_percent"`
	Display              SummaryDisplay `json:"display"`
}

// SummaryDisplay holds the totals formatted in the summary currency
type SummaryDisplay struct {
	TotalCost     string `json:"total_cost"`
	TotalValue    string `json:"total_value"`
	UnrealizedPnL string `json:"unrealized_pnl"`
}

// ValuePortfolio values items against the last known prices keyed by symbol.
// Holdings without a price count at cost.
func ValuePortfolio(items []models.PortfolioItem, prices map[string]float64, currency string) PortfolioSummary {
	totalCost := decimal.Zero
	totalValue := decimal.Zero
	values := make([]decimal.Decimal, len(items))

	holdings := make([]HoldingValue, 0, len(items))
	for i, item := range items {
		ticker := models.NormalizeSymbol(item.Ticker)
		qty := decimal.NewFromFloat(item.Quantity)
		cost := qty.Mul(decimal.NewFromFloat(item.PurchasePrice))

		price, priced := prices[ticker]
		value := cost
		if priced {
			value = qty.Mul(decimal.NewFromFloat(price))
		} else {
			price = item.PurchasePrice
		}

		totalCost = totalCost.Add(cost)
		totalValue = totalValue.Add(value)
		values[i] = value

		holdings = append(holdings, HoldingValue{
			ItemID:        item.ID,
			Ticker:        ticker,
			Quantity:      item.Quantity,
			PurchasePrice: item.PurchasePrice,
			CurrentPrice:  price,
			Priced:        priced,
			CostBasis:     cost.Round(4).InexactFloat64(),
			MarketValue:   value.Round(4).InexactFloat64(),
			UnrealizedPnL: value.Sub(cost).Round(4).InexactFloat64(),
		})
	}

	if totalValue.IsPositive() {
		for i := range holdings {
			holdings[i].Weight = values[i].Div(totalValue).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
		}
	}

	sort.SliceStable(holdings, func(i, j int) bool {
		return holdings[i].MarketValue > holdings[j].MarketValue
	})

	pnl := totalValue.Sub(totalCost)
	pnlPercent := decimal.Zero
	if totalCost.IsPositive() {
		pnlPercent = pnl.Div(totalCost).Mul(decimal.NewFromInt(100))
	}

	return PortfolioSummary{
		Currency:             currency,
		Holdings:             holdings,
		TotalCost:            totalCost.Round(4).InexactFloat64(),
		TotalValue:           totalValue.Round(4).InexactFloat64(),
		UnrealizedPnL:        pnl.Round(4).InexactFloat64(),
		UnrealizedPnLPercent: pnlPercent.Round(2).InexactFloat64(),
		Display: SummaryDisplay{
			TotalCost:     FormatMoney(totalCost, currency),
			TotalValue:    FormatMoney(totalValue, currency),
			UnrealizedPnL: FormatMoney(pnl, currency),
		},
	}
}

// FormatMoney renders amount in currency's display format. Unknown
// currencies fall back to the plain decimal string.
func FormatMoney(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2)
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	return money.New(minor.IntPart(), cur.Code).Display()
}
