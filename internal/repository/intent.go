package repository

import (
	"context"
	"crypto-content-gate/internal/model"
	"errors"
	"time"

	"gorm.io/gorm"
)

type IntentRepository interface {
	Create(ctx context.Context, intent *model.PaymentIntent) error
	FindByTrackID(ctx context.Context, trackID string) (*model.PaymentIntent, error)
	FindByBuyer(ctx context.Context, buyerID int64) ([]*model.PaymentIntent, error)
	// Transition atomically moves the intent from expected status to the new
	// one, applying extra column updates in the same write. It is the only
	// mutation primitive; every racing writer either wins the conditional
	// update or observes ErrStaleState with no side effects.
	Transition(ctx context.Context, trackID string, from, to model.Status, fields map[string]interface{}) error
	// ExpireStale moves created/pending intents older than cutoff to expired
	// and returns the ones this call actually expired.
	ExpireStale(ctx context.Context, cutoff time.Time) ([]*model.PaymentIntent, error)
	// FindStuck returns created/pending intents older than cutoff, for the
	// reconciliation sweep to re-check against the processor.
	FindStuck(ctx context.Context, cutoff time.Time, limit int) ([]*model.PaymentIntent, error)
	FindByStatus(ctx context.Context, status model.Status, limit int) ([]*model.PaymentIntent, error)
}

type intentRepoImpl struct {
	db *gorm.DB
}

func NewIntentRepository(db *gorm.DB) IntentRepository {
	return &intentRepoImpl{
		db: db,
	}
}

func (r *intentRepoImpl) Create(ctx context.Context, intent *model.PaymentIntent) error {
	err := r.db.WithContext(ctx).Create(intent).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict
	}
	return err
}

func (r *intentRepoImpl) FindByTrackID(ctx context.Context, trackID string) (*model.PaymentIntent, error) {
	var intent model.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("track_id = ?", trackID).
		First(&intent).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &intent, nil
}

func (r *intentRepoImpl) FindByBuyer(ctx context.Context, buyerID int64) ([]*model.PaymentIntent, error) {
	var intents []*model.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at DESC").
		Find(&intents).Error

	if err != nil {
		return nil, err
	}

	return intents, nil
}

func (r *intentRepoImpl) Transition(ctx context.Context, trackID string, from, to model.Status, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		}
		for k, v := range fields {
			updates[k] = v
		}

		result := tx.Model(&model.PaymentIntent{}).
			Where("track_id = ? AND status = ?", trackID, from).
			Updates(updates)

		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&model.PaymentIntent{}).
				Where("track_id = ?", trackID).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrStaleState
		}
		return nil
	})
}

func (r *intentRepoImpl) ExpireStale(ctx context.Context, cutoff time.Time) ([]*model.PaymentIntent, error) {
	var stale []*model.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?",
			[]model.Status{model.StatusCreated, model.StatusPending},
			cutoff,
		).
		Find(&stale).Error
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expired := make([]*model.PaymentIntent, 0, len(stale))
	for _, intent := range stale {
		err := r.Transition(ctx, intent.TrackID, intent.Status, model.StatusExpired, map[string]interface{}{
			"completed_at": now,
		})
		if err != nil {
			// A webhook won the race for this intent; leave it alone.
			if errors.Is(err, ErrStaleState) || errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		intent.Status = model.StatusExpired
		expired = append(expired, intent)
	}

	return expired, nil
}

func (r *intentRepoImpl) FindByStatus(ctx context.Context, status model.Status, limit int) ([]*model.PaymentIntent, error) {
	var intents []*model.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&intents).Error

	if err != nil {
		return nil, err
	}

	return intents, nil
}

func (r *intentRepoImpl) FindStuck(ctx context.Context, cutoff time.Time, limit int) ([]*model.PaymentIntent, error) {
	var stuck []*model.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?",
			[]model.Status{model.StatusCreated, model.StatusPending},
			cutoff,
		).
		Order("created_at ASC").
		Limit(limit).
		Find(&stuck).Error

	if err != nil {
		return nil, err
	}

	return stuck, nil
}
