package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/artpro/stockpulse/pkg/database"
	"github.com/artpro/stockpulse/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// WatchlistHandler handles watchlist requests
type WatchlistHandler struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewWatchlistHandler creates a new watchlist handler
func NewWatchlistHandler(db *gorm.DB, logger zerolog.Logger) *WatchlistHandler {
	return &WatchlistHandler{
		db:     db,
		logger: logger,
	}
}

// AddWatchlistItemRequest represents a new watchlist entry
type AddWatchlistItemRequest struct {
	Symbol string  `json:"symbol" binding:"required"`
	Note   *string `json:"note"`
}

// GetWatchlist returns the caller's watchlist, newest first
func (h *WatchlistHandler) GetWatchlist(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var items []models.WatchlistItem
	if err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", p.UserID()).
		Order("created_at DESC, id DESC").
		Find(&items).Error; err != nil {
		serverError(c, h.logger, err, "Failed to fetch watchlist")
		return
	}

	c.JSON(http.StatusOK, items)
}

// AddItem adds a symbol to the caller's watchlist
func (h *WatchlistHandler) AddItem(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req AddWatchlistItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Symbol is required"})
		return
	}

	symbol := models.NormalizeSymbol(req.Symbol)
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Symbol is required"})
		return
	}

	item := models.WatchlistItem{UserID: p.UserID(), Symbol: symbol}
	if req.Note != nil && strings.TrimSpace(*req.Note) != "" {
		note := strings.TrimSpace(*req.Note)
		item.Note = &note
	}

	if err := h.db.WithContext(c.Request.Context()).Create(&item).Error; err != nil {
		if database.IsDuplicate(err) {
			c.JSON(http.StatusConflict, gin.H{"error": symbol + " is already on your watchlist"})
			return
		}
		serverError(c, h.logger, err, "Failed to add watchlist item")
		return
	}

	h.logger.Info().Uint("user_id", item.UserID).Str("symbol", symbol).Msg("Watchlist item added")
	c.JSON(http.StatusCreated, item)
}

// GetItem returns one of the caller's watchlist items
func (h *WatchlistHandler) GetItem(c *gin.Context) {
	item, ok := h.ownedItem(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, item)
}

// DeleteItem removes one of the caller's watchlist items
func (h *WatchlistHandler) DeleteItem(c *gin.Context) {
	item, ok := h.ownedItem(c)
	if !ok {
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Delete(item).Error; err != nil {
		serverError(c, h.logger, err, "Failed to delete watchlist item")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Watchlist item removed"})
}

// ownedItem loads the item named by :id, reporting another user's item as missing
func (h *WatchlistHandler) ownedItem(c *gin.Context) (*models.WatchlistItem, bool) {
	p, ok := principal(c)
	if !ok {
		return nil, false
	}
	id, ok := idParam(c, "id")
	if !ok {
		return nil, false
	}

	var item models.WatchlistItem
	err := h.db.WithContext(c.Request.Context()).Where("id = ? AND user_id = ?", id, p.UserID()).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Watchlist item not found"})
		return nil, false
	}
	if err != nil {
		serverError(c, h.logger, err, "Failed to fetch watchlist item")
		return nil, false
	}
	return &item, true
}
