package handler

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"crypto-content-gate/internal/dto"
	"crypto-content-gate/internal/repository"
	"crypto-content-gate/internal/service"

	"github.com/labstack/echo/v4"
)

// signatureHeader carries the hex HMAC-SHA512 of the raw request body,
// keyed with the shared webhook secret.
const signatureHeader = "HMAC"

type WebhookHandler struct {
	paymentService service.PaymentService
	webhookSecret  string
}

func NewWebhookHandler(paymentService service.PaymentService, webhookSecret string) *WebhookHandler {
	return &WebhookHandler{
		paymentService: paymentService,
		webhookSecret:  webhookSecret,
	}
}

// HandleWebhook is the public processor callback. Unauthenticated requests
// never reach the payment service. Anything the service recognizes answers
// 200, replays included, so the processor's redelivery stops.
func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	if !h.verifySignature(body, c.Request().Header.Get(signatureHeader)) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook signature")
	}

	var event dto.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid webhook payload")
	}
	if event.TrackID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing trackId")
	}

	err = h.paymentService.HandleWebhook(ctx, &event)
	if errors.Is(err, repository.ErrNotFound) {
		// Not ours (or a different deployment's); acknowledge so the
		// processor stops retrying.
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	if h.webhookSecret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha512.New, []byte(h.webhookSecret))
	mac.Write(body)
	expected := mac.Sum(nil)

	received, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	return hmac.Equal(expected, received)
}
