package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/artpro/stockpulse/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := InitDB("", fmt.Sprintf("file:%s?mode=memory&cache=shared", name), logger.Silent)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func ptr[T any](v T) *T { return &v }

func TestUserRepository_Lookups(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := &models.User{ExternalID: "ext_1", Email: "a@x.com"}
	require.NoError(t, repo.Create(ctx, user))
	require.NotZero(t, user.ID)

	byExt, err := repo.FindByExternalID(ctx, "ext_1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byExt.ID)

	byEmail, err := repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	byID, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ext_1", byID.ExternalID)

	_, err = repo.FindByExternalID(ctx, "ext_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.User{ExternalID: "ext_1", Email: "a@x.com"}))
	err := repo.Create(ctx, &models.User{ExternalID: "ext_2", Email: "a@x.com"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicate), "expected ErrDuplicate, got %v", err)
}

func TestStockRepository_SaveAndPrices(t *testing.T) {
	db := newTestDB(t)
	repo := NewStockRepository(db)
	ctx := context.Background()

	vnm := &models.Stock{Symbol: "VNM", Name: "Vinamilk", Price: ptr(78.5)}
	require.NoError(t, repo.Save(ctx, vnm))
	require.NoError(t, repo.Save(ctx, &models.Stock{Symbol: "FPT", Name: "FPT Corp"}))

	vnm.Price = ptr(79.0)
	require.NoError(t, repo.Save(ctx, vnm))

	stored, err := repo.FindBySymbol(ctx, "VNM")
	require.NoError(t, err)
	assert.Equal(t, 79.0, *stored.Price)

	prices, err := repo.PricesBySymbol(ctx, []string{"VNM", "FPT", "MSN"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"VNM": 79.0}, prices)

	_, err = repo.FindBySymbol(ctx, "MSN")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStockRepository_TrackedSymbols(t *testing.T) {
	db := newTestDB(t)
	repo := NewStockRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.WatchlistItem{UserID: 1, Symbol: "VNM"}).Error)
	require.NoError(t, db.Create(&models.WatchlistItem{UserID: 2, Symbol: "VNM"}).Error)
	require.NoError(t, db.Create(&models.WatchlistItem{UserID: 2, Symbol: "FPT"}).Error)
	require.NoError(t, db.Create(&models.PortfolioItem{UserID: 1, Ticker: "fpt", Quantity: 1, PurchasePrice: 1}).Error)
	require.NoError(t, db.Create(&models.PortfolioItem{UserID: 1, Ticker: "HPG", Quantity: 1, PurchasePrice: 1}).Error)

	symbols, err := repo.TrackedSymbols(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"VNM", "FPT", "HPG"}, symbols)
}

func TestInitializeAdminRoles(t *testing.T) {
	db := newTestDB(t)

	withPrefs := models.User{ExternalID: "ext_1", Email: "root@example.com"}
	withoutPrefs := models.User{ExternalID: "ext_2", Email: "ops@example.com"}
	regular := models.User{ExternalID: "ext_3", Email: "user@example.com"}
	require.NoError(t, db.Create(&withPrefs).Error)
	require.NoError(t, db.Create(&withoutPrefs).Error)
	require.NoError(t, db.Create(&regular).Error)

	prefs := models.DefaultPreferences(withPrefs.ID)
	require.NoError(t, db.Create(&prefs).Error)

	promoted, err := InitializeAdminRoles(db, []string{"root@example.com", "ops@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 2, promoted)

	var roles []models.Preferences
	require.NoError(t, db.Order("user_id").Find(&roles).Error)
	require.Len(t, roles, 2)
	for _, p := range roles {
		assert.Equal(t, models.RoleAdmin, p.Role)
	}

	promoted, err = InitializeAdminRoles(db, []string{"root@example.com", "ops@example.com"})
	require.NoError(t, err)
	assert.Zero(t, promoted)
}

func TestIsDuplicate(t *testing.T) {
	assert.False(t, IsDuplicate(nil))
	assert.True(t, IsDuplicate(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicate(errors.New("UNIQUE constraint failed: users.email")))
	assert.True(t, IsDuplicate(errors.New(`ERROR: duplicate key value violates unique constraint "idx_users_email"`)))
	assert.False(t, IsDuplicate(errors.New("connection refused")))
}
