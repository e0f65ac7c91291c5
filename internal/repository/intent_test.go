package repository

import (
	"context"
	"testing"
	"time"

	"crypto-content-gate/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIntent(trackID string, status model.Status) *model.PaymentIntent {
	return &model.PaymentIntent{
		TrackID:   trackID,
		OrderID:   "ORD_" + trackID,
		BuyerID:   4242,
		PackageID: "100_videos",
		Amount:    decimal.NewFromInt(15),
		Currency:  "USD",
		Status:    status,
	}
}

func TestIntentCreateConflict(t *testing.T) {
	repo := NewIntentRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newIntent("T1", model.StatusCreated)))

	err := repo.Create(ctx, newIntent("T1", model.StatusCreated))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestIntentFindByTrackID(t *testing.T) {
	repo := NewIntentRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newIntent("T1", model.StatusCreated)))

	intent, err := repo.FindByTrackID(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCreated, intent.Status)
	assert.True(t, intent.Amount.Equal(decimal.NewFromInt(15)))

	_, err = repo.FindByTrackID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIntentTransition(t *testing.T) {
	repo := NewIntentRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newIntent("T1", model.StatusCreated)))

	require.NoError(t, repo.Transition(ctx, "T1", model.StatusCreated, model.StatusPending, nil))

	intent, err := repo.FindByTrackID(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, intent.Status)
}

func TestIntentTransitionStale(t *testing.T) {
	repo := NewIntentRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newIntent("T1", model.StatusPaid)))

	// Expected status does not match the stored one, nothing changes.
	err := repo.Transition(ctx, "T1", model.StatusCreated, model.StatusPending, nil)
	assert.ErrorIs(t, err, ErrStaleState)

	intent, err := repo.FindByTrackID(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, intent.Status)
}

func TestIntentTransitionNotFound(t *testing.T) {
	repo := NewIntentRepository(newTestDB(t))
	ctx := context.Background()

	err := repo.Transition(ctx, "missing", model.StatusCreated, model.StatusPending, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIntentTransitionAppliesFields(t *testing.T) {
	repo := NewIntentRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newIntent("T1", model.StatusPaid)))

	now := time.Now()
	require.NoError(t, repo.Transition(ctx, "T1", model.StatusPaid, model.StatusFailed, map[string]interface{}{
		"fail_reason":  "amount mismatch",
		"completed_at": now,
	}))

	intent, err := repo.FindByTrackID(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, intent.Status)
	assert.Equal(t, "amount mismatch", intent.FailReason)
	require.NotNil(t, intent.CompletedAt)
}

func TestIntentConcurrentTransitionSingleWinner(t *testing.T) {
	repo := NewIntentRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newIntent("T1", model.StatusPending)))

	const racers = 8
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		go func() {
			results <- repo.Transition(ctx, "T1", model.StatusPending, model.StatusPaid, nil)
		}()
	}

	wins, stale := 0, 0
	for i := 0; i < racers; i++ {
		err := <-results
		switch {
		case err == nil:
			wins++
		case assert.ErrorIs(t, err, ErrStaleState):
			stale++
		}
	}

	assert.Equal(t, 1, wins)
	assert.Equal(t, racers-1, stale)

	intent, err := repo.FindByTrackID(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, intent.Status)
}

func TestExpireStale(t *testing.T) {
	db := newTestDB(t)
	repo := NewIntentRepository(db)
	ctx := context.Background()

	old := newIntent("T_old", model.StatusCreated)
	require.NoError(t, repo.Create(ctx, old))
	// Backdate past the expiry window.
	require.NoError(t, db.Model(&model.PaymentIntent{}).
		Where("track_id = ?", "T_old").
		Update("created_at", time.Now().Add(-time.Hour)).Error)

	require.NoError(t, repo.Create(ctx, newIntent("T_fresh", model.StatusCreated)))
	paid := newIntent("T_paid", model.StatusPaid)
	require.NoError(t, repo.Create(ctx, paid))
	require.NoError(t, db.Model(&model.PaymentIntent{}).
		Where("track_id = ?", "T_paid").
		Update("created_at", time.Now().Add(-time.Hour)).Error)

	expired, err := repo.ExpireStale(ctx, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "T_old", expired[0].TrackID)

	intent, err := repo.FindByTrackID(ctx, "T_old")
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, intent.Status)

	// Paid and fresh intents are untouched.
	intent, err = repo.FindByTrackID(ctx, "T_paid")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaid, intent.Status)

	intent, err = repo.FindByTrackID(ctx, "T_fresh")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCreated, intent.Status)
}

func TestFindStuckAndByStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewIntentRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newIntent("T1", model.StatusPending)))
	require.NoError(t, db.Model(&model.PaymentIntent{}).
		Where("track_id = ?", "T1").
		Update("created_at", time.Now().Add(-time.Hour)).Error)
	require.NoError(t, repo.Create(ctx, newIntent("T2", model.StatusConfirmed)))

	stuck, err := repo.FindStuck(ctx, time.Now().Add(-10*time.Minute), 50)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, "T1", stuck[0].TrackID)

	confirmed, err := repo.FindByStatus(ctx, model.StatusConfirmed, 50)
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, "T2", confirmed[0].TrackID)
}
