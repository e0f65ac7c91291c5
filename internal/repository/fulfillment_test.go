package repository

import (
	"context"
	"sync"
	"testing"

	"crypto-content-gate/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(trackID string) *model.FulfillmentRecord {
	return &model.FulfillmentRecord{
		TrackID:    trackID,
		BuyerID:    4242,
		PackageID:  "100_videos",
		Amount:     decimal.NewFromInt(15),
		Currency:   "USD",
		Credential: "https://t.me/+invite",
	}
}

func TestRecordFulfillment(t *testing.T) {
	db := newTestDB(t)
	intents := NewIntentRepository(db)
	fulfillments := NewFulfillmentRepository(db)
	ctx := context.Background()

	require.NoError(t, intents.Create(ctx, newIntent("T1", model.StatusConfirmed)))

	require.NoError(t, fulfillments.Record(ctx, newRecord("T1")))

	intent, err := intents.FindByTrackID(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDelivered, intent.Status)
	require.NotNil(t, intent.CompletedAt)

	record, err := fulfillments.FindByTrackID(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, "https://t.me/+invite", record.Credential)
	assert.False(t, record.DeliveredAt.IsZero())
}

func TestRecordFulfillmentReplay(t *testing.T) {
	db := newTestDB(t)
	intents := NewIntentRepository(db)
	fulfillments := NewFulfillmentRepository(db)
	ctx := context.Background()

	require.NoError(t, intents.Create(ctx, newIntent("T1", model.StatusConfirmed)))
	require.NoError(t, fulfillments.Record(ctx, newRecord("T1")))

	err := fulfillments.Record(ctx, newRecord("T1"))
	assert.ErrorIs(t, err, ErrAlreadyDelivered)

	count, err := fulfillments.CountByTrackID(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRecordFulfillmentRequiresConfirmed(t *testing.T) {
	db := newTestDB(t)
	intents := NewIntentRepository(db)
	fulfillments := NewFulfillmentRepository(db)
	ctx := context.Background()

	require.NoError(t, intents.Create(ctx, newIntent("T1", model.StatusPaid)))

	err := fulfillments.Record(ctx, newRecord("T1"))
	assert.ErrorIs(t, err, ErrStaleState)

	// The rejected commit must leave no partial state behind.
	count, err := fulfillments.CountByTrackID(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	intent, err := intents.FindByTrackID(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, intent.Status)
}

func TestRecordFulfillmentUnknownIntent(t *testing.T) {
	db := newTestDB(t)
	fulfillments := NewFulfillmentRepository(db)
	ctx := context.Background()

	err := fulfillments.Record(ctx, newRecord("missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordFulfillmentConcurrent(t *testing.T) {
	db := newTestDB(t)
	intents := NewIntentRepository(db)
	fulfillments := NewFulfillmentRepository(db)
	ctx := context.Background()

	require.NoError(t, intents.Create(ctx, newIntent("T1", model.StatusConfirmed)))

	const racers = 10
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = fulfillments.Record(ctx, newRecord("T1"))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyDelivered)
		}
	}
	assert.Equal(t, 1, wins)

	count, err := fulfillments.CountByTrackID(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	intent, err := intents.FindByTrackID(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDelivered, intent.Status)
}
