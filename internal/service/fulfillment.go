package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"crypto-content-gate/internal/catalog"
	"crypto-content-gate/internal/model"
	"crypto-content-gate/internal/repository"
)

// FulfillmentService grants the purchased credential. Deliver may be called
// any number of times for the same intent (webhook replays, crash-resume
// retries); the fulfillment record's unique track id makes every call after
// the first a no-op that returns the already-granted credential.
type FulfillmentService interface {
	Deliver(ctx context.Context, intent *model.PaymentIntent) (string, error)
}

type fulfillmentServiceImpl struct {
	catalogStore    *catalog.Store
	fulfillmentRepo repository.FulfillmentRepository
	notifier        Notifier
	logger          *slog.Logger
}

func NewFulfillmentService(
	catalogStore *catalog.Store,
	fulfillmentRepo repository.FulfillmentRepository,
	notifier Notifier,
	logger *slog.Logger,
) FulfillmentService {
	return &fulfillmentServiceImpl{
		catalogStore:    catalogStore,
		fulfillmentRepo: fulfillmentRepo,
		notifier:        notifier,
		logger:          logger,
	}
}

func (s *fulfillmentServiceImpl) Deliver(ctx context.Context, intent *model.PaymentIntent) (string, error) {
	pkg, err := s.catalogStore.Snapshot().Package(intent.PackageID)
	if err != nil {
		return "", fmt.Errorf("resolve credential for package %s: %w", intent.PackageID, err)
	}

	record := &model.FulfillmentRecord{
		TrackID:    intent.TrackID,
		BuyerID:    intent.BuyerID,
		PackageID:  intent.PackageID,
		Amount:     intent.Amount,
		Currency:   intent.Currency,
		Credential: pkg.InviteLink,
	}

	err = s.fulfillmentRepo.Record(ctx, record)
	if errors.Is(err, repository.ErrAlreadyDelivered) {
		existing, findErr := s.fulfillmentRepo.FindByTrackID(ctx, intent.TrackID)
		if findErr != nil {
			return "", fmt.Errorf("load existing fulfillment: %w", findErr)
		}
		s.logger.DebugContext(ctx, "fulfillment replay ignored",
			"track_id", intent.TrackID,
		)
		return existing.Credential, nil
	}
	if err != nil {
		return "", fmt.Errorf("record fulfillment: %w", err)
	}

	s.logger.InfoContext(ctx, "credential delivered",
		"track_id", intent.TrackID,
		"buyer_id", intent.BuyerID,
		"package_id", intent.PackageID,
	)

	// The credential is durably committed at this point; a failed
	// notification is retried manually, never by re-granting.
	if err := s.notifier.PaymentDelivered(ctx, intent, record.Credential); err != nil {
		s.logger.ErrorContext(ctx, "delivered but buyer notification failed",
			"track_id", intent.TrackID,
			"buyer_id", intent.BuyerID,
			"error", err,
		)
	}

	return record.Credential, nil
}
