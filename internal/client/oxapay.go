package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"crypto-content-gate/internal/config"

	"github.com/shopspring/decimal"
)

var (
	// ErrProcessorUnavailable covers network failures, timeouts and 5xx
	// answers. Safe to retry with backoff at the invoice-creation call site.
	ErrProcessorUnavailable = errors.New("payment processor unavailable")

	// ErrInvalidRequest covers 4xx answers and API error envelopes. Retrying
	// the same request will not help.
	ErrInvalidRequest = errors.New("payment processor rejected request")
)

type OxapayClient interface {
	CreateInvoice(ctx context.Context, req *CreateInvoiceRequest) (*CreateInvoiceResponse, error)
	DescribeInvoice(ctx context.Context, trackID string) (*InvoiceStatus, error)
}

type CreateInvoiceRequest struct {
	Amount      decimal.Decimal
	Currency    string
	OrderID     string
	Description string
	LifetimeMin int
}

type CreateInvoiceResponse struct {
	TrackID   string
	PayURL    string
	ExpiredAt int64
}

type InvoiceStatus struct {
	TrackID string
	Status  string
}

type oxapayClientImpl struct {
	httpClient  *http.Client
	baseApiURL  string
	merchantKey string
	callbackURL string
	returnURL   string
}

type oxapayEnvelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Type    string `json:"type"`
		Key     string `json:"key"`
		Message string `json:"message"`
	} `json:"error"`
}

type oxapayInvoiceData struct {
	TrackID   string `json:"track_id"`
	PayURL    string `json:"payment_url"`
	ExpiredAt int64  `json:"expired_at"`
	Status    string `json:"status"`
}

func NewOxapayClient(oxapayCfg *config.Oxapay, baseURL string) OxapayClient {
	return &oxapayClientImpl{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseApiURL:  oxapayCfg.BaseApiURL,
		merchantKey: oxapayCfg.MerchantKey,
		callbackURL: baseURL + "/webhook",
		returnURL:   baseURL,
	}
}

func (c *oxapayClientImpl) CreateInvoice(ctx context.Context, req *CreateInvoiceRequest) (*CreateInvoiceResponse, error) {
	payload := map[string]interface{}{
		"amount":              req.Amount.InexactFloat64(),
		"currency":            req.Currency,
		"lifetime":            req.LifetimeMin,
		"fee_paid_by_payer":   1,
		"under_paid_coverage": 2.5,
		"mixed_payment":       true,
		"auto_withdrawal":     false,
		"callback_url":        c.callbackURL,
		"return_url":          c.returnURL,
		"order_id":            req.OrderID,
		"description":         req.Description,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal req payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseApiURL+"/payment/invoice",
		bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	httpReq.Header.Set("merchant_api_key", c.merchantKey)
	httpReq.Header.Set("Content-Type", "application/json")

	envelope, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	var data oxapayInvoiceData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("decode invoice data: %w", err)
	}
	if data.TrackID == "" || data.PayURL == "" {
		return nil, fmt.Errorf("%w: invoice response missing track_id or payment_url", ErrInvalidRequest)
	}

	return &CreateInvoiceResponse{
		TrackID:   data.TrackID,
		PayURL:    data.PayURL,
		ExpiredAt: data.ExpiredAt,
	}, nil
}

func (c *oxapayClientImpl) DescribeInvoice(ctx context.Context, trackID string) (*InvoiceStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/payment/%s", c.baseApiURL, trackID),
		nil)
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	httpReq.Header.Set("merchant_api_key", c.merchantKey)

	envelope, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	var data oxapayInvoiceData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("decode invoice data: %w", err)
	}

	return &InvoiceStatus{
		TrackID: trackID,
		Status:  data.Status,
	}, nil
}

func (c *oxapayClientImpl) do(req *http.Request) (*oxapayEnvelope, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrProcessorUnavailable, resp.StatusCode, string(b))
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrInvalidRequest, resp.StatusCode, string(b))
	}

	var envelope oxapayEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode processor response: %w", err)
	}

	if envelope.Status != http.StatusOK {
		msg := envelope.Error.Message
		if msg == "" {
			msg = envelope.Message
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
	}

	return &envelope, nil
}
