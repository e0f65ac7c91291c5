package service

import (
	"context"
	"log/slog"

	"crypto-content-gate/internal/model"
)

// Notifier is the chat-layer collaborator that talks to the buyer. The
// transport (bot messages) lives outside this service; delivery of the
// ledger commit never depends on a notification succeeding.
type Notifier interface {
	PaymentDelivered(ctx context.Context, intent *model.PaymentIntent, credential string) error
	PaymentExpired(ctx context.Context, intent *model.PaymentIntent) error
	PaymentFailed(ctx context.Context, intent *model.PaymentIntent, reason string) error
}

// LogNotifier is the default Notifier until a chat transport is attached.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) PaymentDelivered(ctx context.Context, intent *model.PaymentIntent, credential string) error {
	n.Logger.InfoContext(ctx, "notify buyer: payment delivered",
		"buyer_id", intent.BuyerID,
		"track_id", intent.TrackID,
		"package_id", intent.PackageID,
	)
	return nil
}

func (n *LogNotifier) PaymentExpired(ctx context.Context, intent *model.PaymentIntent) error {
	n.Logger.InfoContext(ctx, "notify buyer: payment expired",
		"buyer_id", intent.BuyerID,
		"track_id", intent.TrackID,
		"package_id", intent.PackageID,
	)
	return nil
}

func (n *LogNotifier) PaymentFailed(ctx context.Context, intent *model.PaymentIntent, reason string) error {
	n.Logger.InfoContext(ctx, "notify buyer: payment failed",
		"buyer_id", intent.BuyerID,
		"track_id", intent.TrackID,
		"reason", reason,
	)
	return nil
}
