//go:build integration

package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/artpro/stockpulse/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm/logger"
)

// startPostgres runs a throwaway PostgreSQL container and returns its URL
func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "stockpulse_user",
			"POSTGRES_PASSWORD": "stockpulse_pass",
			"POSTGRES_DB":       "stockpulse_db",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		).WithDeadline(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://stockpulse_user:stockpulse_pass@%s:%s/stockpulse_db?sslmode=disable", host, port.Port())
}

func TestPostgres_RepositoriesAndConstraints(t *testing.T) {
	db, err := InitDB(startPostgres(t), "", logger.Silent)
	require.NoError(t, err)

	ctx := context.Background()
	users := NewUserRepository(db)
	stocks := NewStockRepository(db)

	require.NoError(t, users.Create(ctx, &models.User{ExternalID: "ext_1", Email: "a@x.com"}))
	err = users.Create(ctx, &models.User{ExternalID: "ext_2", Email: "a@x.com"})
	assert.ErrorIs(t, err, ErrDuplicate)

	price := 75.2
	require.NoError(t, stocks.Save(ctx, &models.Stock{Symbol: "FPT", Name: "FPT Corp", Price: &price}))
	stored, err := stocks.FindBySymbol(ctx, "FPT")
	require.NoError(t, err)
	assert.Equal(t, 75.2, *stored.Price)
}
