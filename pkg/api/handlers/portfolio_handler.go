package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/artpro/stockpulse/pkg/database"
	"github.com/artpro/stockpulse/pkg/models"
	"github.com/artpro/stockpulse/pkg/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// PortfolioHandler handles portfolio-related requests
type PortfolioHandler struct {
	db     *gorm.DB
	stocks *database.StockRepository
	prefs  *services.PreferencesService
	logger zerolog.Logger
}

// NewPortfolioHandler creates a new portfolio handler
func NewPortfolioHandler(db *gorm.DB, prefs *services.PreferencesService, logger zerolog.Logger) *PortfolioHandler {
	return &PortfolioHandler{
		db:     db,
		stocks: database.NewStockRepository(db),
		prefs:  prefs,
		logger: logger,
	}
}

// PortfolioItemRequest represents a create or partial update of a holding
type PortfolioItemRequest struct {
	Ticker        *string  `json:"ticker"`
	Quantity      *float64 `json:"quantity"`
	PurchasePrice *float64 `json:"purchase_price"`
	PurchaseDate  *string  `json:"purchase_date"`
}

// apply copies the set fields onto item and validates the result
func (r PortfolioItemRequest) apply(item *models.PortfolioItem) error {
	if r.Ticker != nil {
		item.Ticker = models.NormalizeSymbol(*r.Ticker)
	}
	if r.Quantity != nil {
		item.Quantity = *r.Quantity
	}
	if r.PurchasePrice != nil {
		item.PurchasePrice = *r.PurchasePrice
	}
	if r.PurchaseDate != nil {
		date, err := parseDate(*r.PurchaseDate)
		if err != nil {
			return err
		}
		item.PurchaseDate = date
	}

	switch {
	case item.Ticker == "":
		return errors.New("ticker is required")
	case item.Quantity <= 0:
		return errors.New("quantity must be greater than 0")
	case item.PurchasePrice < 0:
		return errors.New("purchase price must not be negative")
	}
	return nil
}

// parseDate accepts RFC 3339 timestamps or plain dates; blank clears the date
func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid purchase date %q", s)
}

// GetPortfolio returns the caller's holdings, newest first
func (h *PortfolioHandler) GetPortfolio(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var items []models.PortfolioItem
	if err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", p.UserID()).
		Order("created_at DESC, id DESC").
		Find(&items).Error; err != nil {
		serverError(c, h.logger, err, "Failed to fetch portfolio")
		return
	}

	c.JSON(http.StatusOK, items)
}

// CreateItem adds a holding to the caller's portfolio
func (h *PortfolioHandler) CreateItem(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req PortfolioItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	item := models.PortfolioItem{UserID: p.UserID()}
	if err := req.apply(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Create(&item).Error; err != nil {
		serverError(c, h.logger, err, "Failed to create portfolio item")
		return
	}

	h.logger.Info().Uint("user_id", item.UserID).Str("ticker", item.Ticker).Msg("Portfolio item added")
	c.JSON(http.StatusCreated, item)
}

// GetItem returns one of the caller's holdings
func (h *PortfolioHandler) GetItem(c *gin.Context) {
	item, ok := h.ownedItem(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, item)
}

// UpdateItem applies a partial update to one of the caller's holdings
func (h *PortfolioHandler) UpdateItem(c *gin.Context) {
	item, ok := h.ownedItem(c)
	if !ok {
		return
	}

	var req PortfolioItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if err := req.apply(item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Save(item).Error; err != nil {
		serverError(c, h.logger, err, "Failed to update portfolio item")
		return
	}

	c.JSON(http.StatusOK, item)
}

// DeleteItem removes one of the caller's holdings
func (h *PortfolioHandler) DeleteItem(c *gin.Context) {
	item, ok := h.ownedItem(c)
	if !ok {
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Delete(item).Error; err != nil {
		serverError(c, h.logger, err, "Failed to delete portfolio item")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Portfolio item removed"})
}

// GetPortfolioSummary values the caller's holdings at the last known prices
func (h *PortfolioHandler) GetPortfolioSummary(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var items []models.PortfolioItem
	if err := h.db.WithContext(ctx).Where("user_id = ?", p.UserID()).Find(&items).Error; err != nil {
		serverError(c, h.logger, err, "Failed to fetch portfolio")
		return
	}

	symbols := make([]string, 0, len(items))
	for _, item := range items {
		symbols = append(symbols, models.NormalizeSymbol(item.Ticker))
	}
	prices, err := h.stocks.PricesBySymbol(ctx, symbols)
	if err != nil {
		serverError(c, h.logger, err, "Failed to fetch prices")
		return
	}

	prefs, err := h.prefs.GetOrCreate(ctx, p.User)
	if err != nil {
		serverError(c, h.logger, err, "Failed to load preferences")
		return
	}

	c.JSON(http.StatusOK, services.ValuePortfolio(items, prices, prefs.DefaultCurrency))
}

// ownedItem loads the holding named by :id, reporting another user's holding as missing
func (h *PortfolioHandler) ownedItem(c *gin.Context) (*models.PortfolioItem, bool) {
	p, ok := principal(c)
	if !ok {
		return nil, false
	}
	id, ok := idParam(c, "id")
	if !ok {
		return nil, false
	}

	var item models.PortfolioItem
	err := h.db.WithContext(c.Request.Context()).Where("id = ? AND user_id = ?", id, p.UserID()).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Portfolio item with ID %d not found", id)})
		return nil, false
	}
	if err != nil {
		serverError(c, h.logger, err, "Failed to fetch portfolio item")
		return nil, false
	}
	return &item, true
}
