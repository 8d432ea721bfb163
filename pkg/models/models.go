package models

import (
	"strings"
	"time"
)

// Roles stored on Preferences
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Theme values
const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

// Notification frequencies
const (
	FrequencyRealTime = "real_time"
	FrequencyDaily    = "daily"
	FrequencyWeekly   = "weekly"
	FrequencyNever    = "never"
)

// User is a local account linked to an external identity provider subject
type User struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	Email      string    `gorm:"uniqueIndex;not null" json:"email"`
	Name       *string   `json:"name"`
	ExternalID string    `gorm:"column:external_id;uniqueIndex;not null" json:"external_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Preferences holds per-user settings, created lazily on first access
type Preferences struct {
	ID                    uint       `gorm:"primarykey" json:"id"`
	UserID                uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	Theme                 string     `gorm:"not null" json:"theme"`
	NotificationFrequency string     `gorm:"not null" json:"notification_frequency"`
	EmailNotifications    bool       `json:"email_notifications"`
	DefaultCurrency       string     `gorm:"not null" json:"default_currency"`
	Role                  string     `gorm:"not null;index" json:"role"`
	LastDigestAt          *time.Time `json:"last_digest_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// TableName keeps the table name stable
func (Preferences) TableName() string {
	return "user_preferences"
}

// DefaultPreferences returns the defaults for a user's first preferences row.
// Bool and enum defaults live here rather than in gorm tags so a stored false
// is never replaced by a column default.
func DefaultPreferences(userID uint) Preferences {
	return Preferences{
		UserID:                userID,
		Theme:                 ThemeSystem,
		NotificationFrequency: FrequencyDaily,
		EmailNotifications:    true,
		DefaultCurrency:       "VND",
		Role:                  RoleUser,
	}
}

// Stock is the last known good market data for a symbol.
// Nullable fields stay nil until the provider supplies a usable value.
type Stock struct {
	ID            uint       `gorm:"primarykey" json:"id"`
	Symbol        string     `gorm:"uniqueIndex;not null" json:"symbol"`
	Name          string     `gorm:"not null" json:"name"`
	Price         *float64   `json:"price"`
	Change        *float64   `json:"change"`
	PercentChange *float64   `json:"percent_change"`
	Volume        *int64     `json:"volume"`
	MarketCap     *int64     `json:"market_cap"`
	PERatio       *float64   `gorm:"column:pe_ratio" json:"pe_ratio"`
	Market        *string    `gorm:"index" json:"market"`
	Sector        *string    `gorm:"index" json:"sector"`
	Industry      *string    `json:"industry"`
	DividendYield *float64   `json:"dividend_yield"`
	EPS           *float64   `gorm:"column:eps" json:"eps"`
	High52Week    *float64   `gorm:"column:high_52_week" json:"high_52_week"`
	Low52Week     *float64   `gorm:"column:low_52_week" json:"low_52_week"`
	LastSyncedAt  *time.Time `json:"last_synced_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// WatchlistItem is a symbol a user follows
type WatchlistItem struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_watchlist_user_symbol" json:"user_id"`
	Symbol    string    `gorm:"not null;uniqueIndex:idx_watchlist_user_symbol" json:"symbol"`
	Note      *string   `json:"note"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PortfolioItem is a position a user holds
type PortfolioItem struct {
	ID            uint       `gorm:"primarykey" json:"id"`
	UserID        uint       `gorm:"not null;index" json:"user_id"`
	Ticker        string     `gorm:"not null" json:"ticker"`
	Quantity      float64    `gorm:"not null" json:"quantity"`
	PurchasePrice float64    `gorm:"not null" json:"purchase_price"`
	PurchaseDate  *time.Time `json:"purchase_date"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NormalizeSymbol trims and upper-cases a ticker symbol
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
