//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/signal-order-service/internal/entity"
	"github.com/krobus00/signal-order-service/migration"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func newPostgresRepository(t *testing.T) *OrderHistoryRepository {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("signal_order"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migration.Apply(ctx, db.DB, migration.DriverPostgres, "order_history"))

	return NewOrderHistoryRepository(db)
}

func TestOrderHistoryRepository_Postgres(t *testing.T) {
	repo := newPostgresRepository(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	history := pendingHistory("MXF202611", entity.OrderActionLongEntry, now)
	history.RequestID = null.StringFrom("pg-req-1")
	require.NoError(t, repo.Create(ctx, history))

	duplicate := pendingHistory("MXF202611", entity.OrderActionLongEntry, now)
	duplicate.RequestID = null.StringFrom("pg-req-1")
	assert.ErrorIs(t, repo.Create(ctx, duplicate), ErrDuplicateRequestID)

	history.Status = entity.HistoryStatusSuccess
	history.OrderID = null.StringFrom("pg-order")
	history.FillStatus = null.StringFrom(string(entity.OrderStateSubmitted))
	history.FillQuantity = null.IntFrom(0)
	history.FillCheckedAt = null.TimeFrom(now)
	history.UpdatedAt = now
	require.NoError(t, repo.Finalize(ctx, history))
	assert.ErrorIs(t, repo.Finalize(ctx, history), ErrOrderHistoryNotPending)

	open, err := repo.GetOpenFills(ctx, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, history.ID, open[0].ID)

	history.FillStatus = null.StringFrom(string(entity.OrderStateFilled))
	history.FillQuantity = null.IntFrom(2)
	history.FillPrice = decimal.NewNullDecimal(decimal.RequireFromString("22850.25"))
	history.FillCheckedAt = null.TimeFrom(now.Add(time.Second))
	require.NoError(t, repo.UpdateFill(ctx, history))

	got, err := repo.GetByRequestID(ctx, "pg-req-1")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("22850.25").Equal(got.FillPrice.Decimal))

	open, err = repo.GetOpenFills(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, open)

	total, err := repo.Count(ctx, entity.OrderHistoryFilter{Symbol: "MXF202611"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}
