package repository

import (
	"context"
	"crypto-content-gate/internal/model"
	"errors"
	"time"

	"gorm.io/gorm"
)

type FulfillmentRepository interface {
	// Record inserts the fulfillment record and moves the intent from
	// confirmed to delivered in one transaction. It is the commit point for
	// delivery: at most one record can ever exist per track id, so replays
	// and crash-resume retries get ErrAlreadyDelivered and stop there.
	Record(ctx context.Context, record *model.FulfillmentRecord) error
	FindByTrackID(ctx context.Context, trackID string) (*model.FulfillmentRecord, error)
	CountByTrackID(ctx context.Context, trackID string) (int64, error)
}

type fulfillmentRepoImpl struct {
	db *gorm.DB
}

func NewFulfillmentRepository(db *gorm.DB) FulfillmentRepository {
	return &fulfillmentRepoImpl{
		db: db,
	}
}

func (r *fulfillmentRepoImpl) Record(ctx context.Context, record *model.FulfillmentRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.FulfillmentRecord{}).
			Where("track_id = ?", record.TrackID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyDelivered
		}

		now := time.Now()
		record.DeliveredAt = now

		if err := tx.Create(record).Error; err != nil {
			// Concurrent committer beat the existence check; the unique
			// index on track_id is the real guard.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyDelivered
			}
			return err
		}

		result := tx.Model(&model.PaymentIntent{}).
			Where("track_id = ? AND status = ?", record.TrackID, model.StatusConfirmed).
			Updates(map[string]interface{}{
				"status":       model.StatusDelivered,
				"completed_at": now,
				"updated_at":   now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var intent model.PaymentIntent
			err := tx.Where("track_id = ?", record.TrackID).First(&intent).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			if intent.Status == model.StatusDelivered {
				return ErrAlreadyDelivered
			}
			// Rolls back the record insert too; nothing partial survives.
			return ErrStaleState
		}

		return nil
	})
}

func (r *fulfillmentRepoImpl) FindByTrackID(ctx context.Context, trackID string) (*model.FulfillmentRecord, error) {
	var record model.FulfillmentRecord
	err := r.db.WithContext(ctx).
		Where("track_id = ?", trackID).
		First(&record).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &record, nil
}

func (r *fulfillmentRepoImpl) CountByTrackID(ctx context.Context, trackID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.FulfillmentRecord{}).
		Where("track_id = ?", trackID).
		Count(&count).Error

	return count, err
}
