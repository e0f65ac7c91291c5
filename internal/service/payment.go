package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"crypto-content-gate/internal/catalog"
	"crypto-content-gate/internal/client"
	"crypto-content-gate/internal/dto"
	"crypto-content-gate/internal/model"
	"crypto-content-gate/internal/repository"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrPackageUnavailable means the requested package does not exist or is
// disabled in the current catalog snapshot.
var ErrPackageUnavailable = errors.New("package unavailable")

// PaymentService drives each payment intent through its lifecycle:
// created -> pending -> paid -> confirmed -> delivered, with expired and
// failed as alternate terminal branches. All mutations go through the
// ledger's conditional transition, so concurrent and replayed webhook
// deliveries converge without in-process locking.
type PaymentService interface {
	RequestPurchase(ctx context.Context, buyerID int64, packageID string) (*dto.PurchaseResponse, error)
	GetPurchaseStatus(ctx context.Context, buyerID int64, trackID string) (*dto.PurchaseStatusResponse, error)
	ListPurchases(ctx context.Context, buyerID int64) ([]*dto.PurchaseHistoryItem, error)
	HandleWebhook(ctx context.Context, event *dto.WebhookEvent) error
	// ExpireStale closes unpaid intents whose invoice lifetime elapsed.
	ExpireStale(ctx context.Context) error
	// Reconcile re-checks intents stuck before payment against the
	// processor, and retries delivery for intents stuck at confirmed.
	Reconcile(ctx context.Context) error
}

type Options struct {
	InvoiceLifetime time.Duration
	ReconcileAfter  time.Duration
	// ConfirmOnPaid treats the processor's "Paid" report as confirmation,
	// matching processors that only report finalized payments. When false
	// the intent stays at paid until an explicit confirming/confirmed
	// report arrives.
	ConfirmOnPaid bool
}

type paymentServiceImpl struct {
	intentRepo   repository.IntentRepository
	fulfillment  FulfillmentService
	oxapayClient client.OxapayClient
	catalogStore *catalog.Store
	notifier     Notifier
	logger       *slog.Logger
	opts         Options
}

func NewPaymentService(
	intentRepo repository.IntentRepository,
	fulfillment FulfillmentService,
	oxapayClient client.OxapayClient,
	catalogStore *catalog.Store,
	notifier Notifier,
	logger *slog.Logger,
	opts Options,
) PaymentService {
	return &paymentServiceImpl{
		intentRepo:   intentRepo,
		fulfillment:  fulfillment,
		oxapayClient: oxapayClient,
		catalogStore: catalogStore,
		notifier:     notifier,
		logger:       logger,
		opts:         opts,
	}
}

func (s *paymentServiceImpl) RequestPurchase(ctx context.Context, buyerID int64, packageID string) (*dto.PurchaseResponse, error) {
	// Price and currency come from the snapshot valid right now and are
	// frozen into the intent; a catalog reload cannot reprice it.
	pkg, err := s.catalogStore.Snapshot().Package(packageID)
	if err != nil || !pkg.Enabled {
		return nil, ErrPackageUnavailable
	}

	orderID := fmt.Sprintf("PKG_%s_%d_%s", packageID, buyerID, uuid.NewString()[:8])
	lifetimeMin := int(s.opts.InvoiceLifetime.Minutes())

	req := &client.CreateInvoiceRequest{
		Amount:      pkg.Price,
		Currency:    pkg.Currency,
		OrderID:     orderID,
		Description: fmt.Sprintf("Content package %s for buyer %d", pkg.Name, buyerID),
		LifetimeMin: lifetimeMin,
	}

	var invoice *client.CreateInvoiceResponse
	operation := func() error {
		resp, err := s.oxapayClient.CreateInvoice(ctx, req)
		if err != nil {
			if errors.Is(err, client.ErrProcessorUnavailable) {
				return err
			}
			return backoff.Permanent(err)
		}
		invoice = resp
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	// The processor call durably succeeded; only now does an intent exist.
	intent := &model.PaymentIntent{
		TrackID:   invoice.TrackID,
		OrderID:   orderID,
		BuyerID:   buyerID,
		PackageID: packageID,
		Amount:    pkg.Price,
		Currency:  pkg.Currency,
		Status:    model.StatusCreated,
	}
	if err := s.intentRepo.Create(ctx, intent); err != nil {
		return nil, fmt.Errorf("store payment intent: %w", err)
	}

	s.logger.InfoContext(ctx, "payment intent created",
		"track_id", intent.TrackID,
		"buyer_id", buyerID,
		"package_id", packageID,
		"amount", pkg.Price.String(),
		"currency", pkg.Currency,
	)

	return &dto.PurchaseResponse{
		TrackID:      invoice.TrackID,
		PayURL:       invoice.PayURL,
		ExpiresInMin: lifetimeMin,
	}, nil
}

func (s *paymentServiceImpl) GetPurchaseStatus(ctx context.Context, buyerID int64, trackID string) (*dto.PurchaseStatusResponse, error) {
	intent, err := s.intentRepo.FindByTrackID(ctx, trackID)
	if err != nil {
		return nil, err
	}
	if intent.BuyerID != buyerID {
		return nil, repository.ErrNotFound
	}

	return &dto.PurchaseStatusResponse{
		TrackID: intent.TrackID,
		Status:  displayStatus(intent.Status),
	}, nil
}

func (s *paymentServiceImpl) ListPurchases(ctx context.Context, buyerID int64) ([]*dto.PurchaseHistoryItem, error) {
	intents, err := s.intentRepo.FindByBuyer(ctx, buyerID)
	if err != nil {
		return nil, err
	}

	items := make([]*dto.PurchaseHistoryItem, len(intents))
	for i, intent := range intents {
		items[i] = &dto.PurchaseHistoryItem{
			TrackID:   intent.TrackID,
			PackageID: intent.PackageID,
			Amount:    intent.Amount,
			Currency:  intent.Currency,
			Status:    displayStatus(intent.Status),
			CreatedAt: intent.CreatedAt.Format(time.RFC3339),
		}
	}

	return items, nil
}

func (s *paymentServiceImpl) HandleWebhook(ctx context.Context, event *dto.WebhookEvent) error {
	intent, err := s.intentRepo.FindByTrackID(ctx, event.TrackID)
	if err != nil {
		return err
	}

	return s.applyProcessorStatus(ctx, intent, event.Status, event.Amount, event.Currency)
}

// applyProcessorStatus maps a processor status report onto the state machine
// and applies it. Replayed and out-of-order reports never return an error:
// at-or-past reports are no-ops, regressions are logged and swallowed so the
// processor's retry policy is not provoked.
func (s *paymentServiceImpl) applyProcessorStatus(ctx context.Context, intent *model.PaymentIntent, procStatus string, amount decimal.Decimal, currency string) error {
	target, ok := s.mapStatus(procStatus)
	if !ok {
		s.logger.WarnContext(ctx, "unrecognized processor status",
			"track_id", intent.TrackID,
			"processor_status", procStatus,
		)
		return nil
	}

	if intent.Status.Terminal() {
		if intent.Status.AtOrPast(target) {
			s.logger.DebugContext(ctx, "replayed notification for settled intent",
				"track_id", intent.TrackID,
				"status", intent.Status,
				"processor_status", procStatus,
			)
		} else {
			s.logger.WarnContext(ctx, "stale notification rejected",
				"track_id", intent.TrackID,
				"status", intent.Status,
				"processor_status", procStatus,
			)
		}
		return nil
	}

	switch target {
	case model.StatusPending:
		_, err := s.advanceChain(ctx, intent, model.StatusPending)
		return err

	case model.StatusExpired:
		return s.finalize(ctx, intent, model.StatusExpired, "invoice expired")

	case model.StatusFailed:
		// A failure report is only honored before the payment was durably
		// recorded; once at paid it is out of order and rejected. The
		// paid -> failed edge stays reserved for the amount-mismatch guard.
		if intent.Status == model.StatusPaid {
			s.logger.WarnContext(ctx, "stale notification rejected",
				"track_id", intent.TrackID,
				"status", intent.Status,
				"processor_status", procStatus,
			)
			return nil
		}
		return s.finalize(ctx, intent, model.StatusFailed, fmt.Sprintf("processor reported %s", procStatus))

	case model.StatusPaid, model.StatusConfirmed:
		// Money claims are checked on every paying notification until the
		// intent is confirmed. A notification claiming a different amount
		// or currency than the intent was created with never marks it
		// paid; claiming one against an already-paid intent fails it.
		if intent.Status.Rank() <= model.StatusPaid.Rank() && hasAmount(amount, currency) {
			if !amount.Equal(intent.Amount) || !strings.EqualFold(currency, intent.Currency) {
				s.logger.ErrorContext(ctx, "SECURITY: webhook amount mismatch, flagging for manual review",
					"track_id", intent.TrackID,
					"intent_amount", intent.Amount.String(),
					"intent_currency", intent.Currency,
					"event_amount", amount.String(),
					"event_currency", currency,
				)
				return s.finalize(ctx, intent, model.StatusFailed, "amount mismatch")
			}
		}

		intent, err := s.advanceChain(ctx, intent, target)
		if err != nil {
			return err
		}
		if intent.Status == model.StatusConfirmed {
			if _, err := s.fulfillment.Deliver(ctx, intent); err != nil {
				return fmt.Errorf("dispatch fulfillment: %w", err)
			}
		}
		return nil
	}

	return nil
}

// advanceChain fast-forwards the intent one state at a time up to target so
// skipped states still appear in the audit trail. Racing writers each win
// some steps; a loser re-reads and continues from wherever the winner left
// the intent. The chain stops at confirmed: delivered is only ever reached
// through the fulfillment commit.
func (s *paymentServiceImpl) advanceChain(ctx context.Context, intent *model.PaymentIntent, target model.Status) (*model.PaymentIntent, error) {
	if target.Rank() > model.StatusConfirmed.Rank() {
		target = model.StatusConfirmed
	}

	for intent.Status.Rank() < target.Rank() {
		next := model.Chain[intent.Status.Rank()+1]

		err := s.intentRepo.Transition(ctx, intent.TrackID, intent.Status, next, nil)
		if err == nil {
			s.logger.InfoContext(ctx, "intent transitioned",
				"track_id", intent.TrackID,
				"from", intent.Status,
				"to", next,
			)
			intent.Status = next
			continue
		}
		if !errors.Is(err, repository.ErrStaleState) {
			return nil, err
		}

		current, readErr := s.intentRepo.FindByTrackID(ctx, intent.TrackID)
		if readErr != nil {
			return nil, readErr
		}
		intent = current
		if intent.Status.Terminal() || intent.Status.AtOrPast(target) {
			break
		}
	}

	return intent, nil
}

// finalize moves the intent to a terminal branch, tolerating races: a stale
// observation is re-read once, and an intent that meanwhile reached a state
// the branch is not allowed from is left alone.
func (s *paymentServiceImpl) finalize(ctx context.Context, intent *model.PaymentIntent, terminal model.Status, reason string) error {
	for {
		allowed := intent.Status == model.StatusCreated || intent.Status == model.StatusPending
		if terminal == model.StatusFailed {
			allowed = allowed || intent.Status == model.StatusPaid
		}
		if !allowed {
			s.logger.WarnContext(ctx, "stale terminal notification rejected",
				"track_id", intent.TrackID,
				"status", intent.Status,
				"target", terminal,
				"reason", reason,
			)
			return nil
		}

		fields := map[string]interface{}{
			"completed_at": time.Now(),
		}
		if terminal == model.StatusFailed {
			fields["fail_reason"] = reason
		}

		err := s.intentRepo.Transition(ctx, intent.TrackID, intent.Status, terminal, fields)
		if err == nil {
			s.logger.InfoContext(ctx, "intent settled",
				"track_id", intent.TrackID,
				"from", intent.Status,
				"to", terminal,
				"reason", reason,
			)
			intent.Status = terminal
			s.notifySettled(ctx, intent, terminal, reason)
			return nil
		}
		if !errors.Is(err, repository.ErrStaleState) {
			return err
		}

		current, readErr := s.intentRepo.FindByTrackID(ctx, intent.TrackID)
		if readErr != nil {
			return readErr
		}
		if current.Status == intent.Status {
			// No progress is possible; give up rather than spin.
			return nil
		}
		intent = current
	}
}

func (s *paymentServiceImpl) notifySettled(ctx context.Context, intent *model.PaymentIntent, terminal model.Status, reason string) {
	var err error
	switch terminal {
	case model.StatusExpired:
		err = s.notifier.PaymentExpired(ctx, intent)
	case model.StatusFailed:
		err = s.notifier.PaymentFailed(ctx, intent, reason)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "buyer notification failed",
			"track_id", intent.TrackID,
			"buyer_id", intent.BuyerID,
			"error", err,
		)
	}
}

func (s *paymentServiceImpl) ExpireStale(ctx context.Context) error {
	cutoff := time.Now().Add(-s.opts.InvoiceLifetime)
	expired, err := s.intentRepo.ExpireStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("expire stale intents: %w", err)
	}

	for _, intent := range expired {
		s.logger.InfoContext(ctx, "intent expired by sweep",
			"track_id", intent.TrackID,
			"buyer_id", intent.BuyerID,
		)
		s.notifySettled(ctx, intent, model.StatusExpired, "invoice expired")
	}

	return nil
}

func (s *paymentServiceImpl) Reconcile(ctx context.Context) error {
	cutoff := time.Now().Add(-s.opts.ReconcileAfter)
	stuck, err := s.intentRepo.FindStuck(ctx, cutoff, 50)
	if err != nil {
		return fmt.Errorf("find stuck intents: %w", err)
	}

	for _, intent := range stuck {
		status, err := s.oxapayClient.DescribeInvoice(ctx, intent.TrackID)
		if err != nil {
			s.logger.WarnContext(ctx, "describe invoice failed",
				"track_id", intent.TrackID,
				"error", err,
			)
			continue
		}
		// Status-only report; amounts were validated at invoice creation
		// and any later paying webhook revalidates its own claim.
		if err := s.applyProcessorStatus(ctx, intent, status.Status, decimal.Zero, ""); err != nil {
			s.logger.WarnContext(ctx, "reconcile transition failed",
				"track_id", intent.TrackID,
				"error", err,
			)
		}
	}

	// Crash-resume path: an intent that reached confirmed but whose process
	// died before the fulfillment commit is re-dispatched here.
	confirmed, err := s.intentRepo.FindByStatus(ctx, model.StatusConfirmed, 50)
	if err != nil {
		return fmt.Errorf("find undelivered intents: %w", err)
	}
	for _, intent := range confirmed {
		if _, err := s.fulfillment.Deliver(ctx, intent); err != nil {
			s.logger.ErrorContext(ctx, "redelivery failed",
				"track_id", intent.TrackID,
				"error", err,
			)
		}
	}

	return nil
}

// mapStatus translates the processor's status vocabulary into the lifecycle
// target state. Unknown strings are reported unmapped so a new processor
// status can never corrupt an intent.
func (s *paymentServiceImpl) mapStatus(procStatus string) (model.Status, bool) {
	switch strings.ToLower(procStatus) {
	case "waiting":
		return model.StatusPending, true
	case "confirming":
		return model.StatusPaid, true
	case "paid":
		if s.opts.ConfirmOnPaid {
			return model.StatusConfirmed, true
		}
		return model.StatusPaid, true
	case "confirmed":
		return model.StatusConfirmed, true
	case "expired":
		return model.StatusExpired, true
	case "failed", "canceled", "cancelled":
		return model.StatusFailed, true
	}
	return "", false
}

func hasAmount(amount decimal.Decimal, currency string) bool {
	return !amount.IsZero() || currency != ""
}

// displayStatus is the coarse view buyers see; internal states collapse to
// their user-meaningful neighbors.
func displayStatus(status model.Status) string {
	switch status {
	case model.StatusCreated:
		return string(model.StatusPending)
	case model.StatusConfirmed:
		return string(model.StatusPaid)
	}
	return string(status)
}
