package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/artpro/stockpulse/pkg/models"
	"github.com/artpro/stockpulse/pkg/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// DataSourceHeader tells the client whether a stock came from the provider or the store
const DataSourceHeader = "X-Data-Source"

// StockHandler handles stock-related requests
type StockHandler struct {
	db       *gorm.DB
	sync     *services.MarketSync
	provider services.HistoryProvider
	logger   zerolog.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(db *gorm.DB, sync *services.MarketSync, provider services.HistoryProvider, logger zerolog.Logger) *StockHandler {
	return &StockHandler{
		db:       db,
		sync:     sync,
		provider: provider,
		logger:   logger,
	}
}

// HistoryResponse is a symbol's price history for a period
type HistoryResponse struct {
	Symbol string                `json:"symbol"`
	Period string                `json:"period"`
	Data   []services.PricePoint `json:"data"`
}

// GetAllStocks returns stored stocks filtered by market, sector and a search term
func (h *StockHandler) GetAllStocks(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).Model(&models.Stock{})

	if market := strings.TrimSpace(c.Query("market")); market != "" {
		query = query.Where("market = ?", market)
	}
	if sector := strings.TrimSpace(c.Query("sector")); sector != "" {
		query = query.Where("sector = ?", sector)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("(LOWER(symbol) LIKE ? OR LOWER(name) LIKE ?)", like, like)
	}

	var stocks []models.Stock
	if err := query.Order("symbol").Find(&stocks).Error; err != nil {
		serverError(c, h.logger, err, "Failed to fetch stocks")
		return
	}

	c.JSON(http.StatusOK, stocks)
}

// GetStock returns the freshest record for a symbol, refreshing it from the provider when possible
func (h *StockHandler) GetStock(c *gin.Context) {
	result, err := h.sync.Sync(c.Request.Context(), c.Param("symbol"))
	if errors.Is(err, services.ErrStockNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Stock not found"})
		return
	}
	if err != nil {
		serverError(c, h.logger, err, "Failed to fetch stock")
		return
	}

	source := "live"
	if !result.Live() {
		source = "cache"
	}
	c.Header(DataSourceHeader, source)
	c.JSON(http.StatusOK, result.Stock)
}

// GetStockHistory returns the price history for a symbol
func (h *StockHandler) GetStockHistory(c *gin.Context) {
	ctx := c.Request.Context()
	period := c.DefaultQuery("period", "1m")

	stock, err := h.sync.GetStock(ctx, c.Param("symbol"))
	if errors.Is(err, services.ErrStockNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Stock not found"})
		return
	}
	if err != nil {
		serverError(c, h.logger, err, "Failed to fetch stock")
		return
	}

	points, err := h.provider.FetchTimeSeries(ctx, stock.Symbol, services.PeriodInterval(period))
	if err != nil {
		h.logger.Warn().Err(err).Str("symbol", stock.Symbol).Str("period", period).Msg("Failed to fetch price history")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch price history"})
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{Symbol: stock.Symbol, Period: period, Data: points})
}

// SearchStocks runs a provider symbol search
func (h *StockHandler) SearchStocks(c *gin.Context) {
	keywords := strings.TrimSpace(c.Query("keywords"))
	if keywords == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "keywords is required"})
		return
	}

	matches, err := h.provider.SearchSymbols(c.Request.Context(), keywords)
	if err != nil {
		h.logger.Warn().Err(err).Str("keywords", keywords).Msg("Symbol search failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Symbol search failed"})
		return
	}

	c.JSON(http.StatusOK, matches)
}

// GetMarketSummary summarizes the stored stocks
func (h *StockHandler) GetMarketSummary(c *gin.Context) {
	var stocks []models.Stock
	if err := h.db.WithContext(c.Request.Context()).Find(&stocks).Error; err != nil {
		serverError(c, h.logger, err, "Failed to fetch stocks")
		return
	}

	c.JSON(http.StatusOK, services.SummarizeMarket(stocks, time.Now().UTC()))
}
