package repository

import (
	"context"
	"testing"

	"crypto-content-gate/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsEmptyLedger(t *testing.T) {
	stats, err := NewStatsRepository(newTestDB(t)).Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(0), stats.TotalBuyers)
	assert.True(t, stats.TotalRevenue.IsZero())
	assert.Empty(t, stats.PackageSales)
	assert.Empty(t, stats.StatusCounts)
}

func TestStatsCollect(t *testing.T) {
	db := newTestDB(t)
	intents := NewIntentRepository(db)
	fulfillments := NewFulfillmentRepository(db)
	statsRepo := NewStatsRepository(db)
	ctx := context.Background()

	require.NoError(t, intents.Create(ctx, newIntent("T1", model.StatusConfirmed)))
	require.NoError(t, intents.Create(ctx, newIntent("T2", model.StatusConfirmed)))
	require.NoError(t, intents.Create(ctx, newIntent("T3", model.StatusExpired)))

	rec1 := newRecord("T1")
	require.NoError(t, fulfillments.Record(ctx, rec1))

	rec2 := newRecord("T2")
	rec2.BuyerID = 7
	rec2.PackageID = "1000_videos"
	rec2.Amount = decimal.NewFromInt(35)
	require.NoError(t, fulfillments.Record(ctx, rec2))

	stats, err := statsRepo.Collect(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.TotalBuyers)
	assert.True(t, stats.TotalRevenue.Equal(decimal.NewFromInt(50)), "got %s", stats.TotalRevenue)
	assert.Equal(t, int64(1), stats.PackageSales["100_videos"])
	assert.Equal(t, int64(1), stats.PackageSales["1000_videos"])
	assert.Equal(t, int64(2), stats.StatusCounts["delivered"])
	assert.Equal(t, int64(1), stats.StatusCounts["expired"])
}
