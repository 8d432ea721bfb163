package database

import (
	"context"
	"fmt"

	"github.com/artpro/stockpulse/pkg/models"
	"gorm.io/gorm"
)

// UserRepository persists users
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByExternalID looks a user up by identity provider subject
func (r *UserRepository) FindByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// FindByEmail looks a user up by email
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// FindByID looks a user up by primary key
func (r *UserRepository) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// Create inserts a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", translate(err))
	}
	return nil
}

// Save updates an existing user
func (r *UserRepository) Save(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("failed to save user: %w", translate(err))
	}
	return nil
}

// StockRepository persists stock records keyed by symbol
type StockRepository struct {
	db *gorm.DB
}

// NewStockRepository creates a new stock repository
func NewStockRepository(db *gorm.DB) *StockRepository {
	return &StockRepository{db: db}
}

// FindBySymbol loads the stored record for a symbol
func (r *StockRepository) FindBySymbol(ctx context.Context, symbol string) (*models.Stock, error) {
	var stock models.Stock
	if err := r.db.WithContext(ctx).Where("symbol = ?", symbol).First(&stock).Error; err != nil {
		return nil, translate(err)
	}
	return &stock, nil
}

// Save inserts a new record or updates the existing one
func (r *StockRepository) Save(ctx context.Context, stock *models.Stock) error {
	if err := r.db.WithContext(ctx).Save(stock).Error; err != nil {
		return fmt.Errorf("failed to save stock %s: %w", stock.Symbol, translate(err))
	}
	return nil
}

// PricesBySymbol returns the last known price for each requested symbol that has one
func (r *StockRepository) PricesBySymbol(ctx context.Context, symbols []string) (map[string]float64, error) {
	prices := make(map[string]float64)
	if len(symbols) == 0 {
		return prices, nil
	}

	var stocks []models.Stock
	if err := r.db.WithContext(ctx).Where("symbol IN ?", symbols).Find(&stocks).Error; err != nil {
		return nil, fmt.Errorf("failed to load prices: %w", err)
	}
	for _, stock := range stocks {
		if stock.Price != nil {
			prices[stock.Symbol] = *stock.Price
		}
	}
	return prices, nil
}

// TrackedSymbols returns every distinct symbol on a watchlist or in a portfolio
func (r *StockRepository) TrackedSymbols(ctx context.Context) ([]string, error) {
	var watched []string
	if err := r.db.WithContext(ctx).Model(&models.WatchlistItem{}).Distinct().Pluck("symbol", &watched).Error; err != nil {
		return nil, fmt.Errorf("failed to load watchlist symbols: %w", err)
	}
	var held []string
	if err := r.db.WithContext(ctx).Model(&models.PortfolioItem{}).Distinct().Pluck("ticker", &held).Error; err != nil {
		return nil, fmt.Errorf("failed to load portfolio symbols: %w", err)
	}

	seen := make(map[string]bool)
	var symbols []string
	for _, symbol := range append(watched, held...) {
		symbol = models.NormalizeSymbol(symbol)
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true
		symbols = append(symbols, symbol)
	}
	return symbols, nil
}
