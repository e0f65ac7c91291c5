package dto

import (
	"github.com/shopspring/decimal"
)

// WebhookEvent is the normalized processor notification handed to the
// payment service after authentication at the HTTP boundary.
type WebhookEvent struct {
	TrackID  string          `json:"trackId"`
	OrderID  string          `json:"orderId"`
	Status   string          `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type PurchaseRequest struct {
	BuyerID   int64  `json:"buyer_id"`
	PackageID string `json:"package_id"`
}

type PurchaseResponse struct {
	TrackID string `json:"track_id"`
	PayURL  string `json:"pay_url"`
	// ExpiresInMin mirrors the invoice lifetime so the chat layer can show
	// "invoice expires in N minutes".
	ExpiresInMin int `json:"expires_in_min"`
}

type PurchaseStatusResponse struct {
	TrackID string `json:"track_id"`
	Status  string `json:"status"`
}

type PurchaseHistoryItem struct {
	TrackID   string          `json:"track_id"`
	PackageID string          `json:"package_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
	CreatedAt string          `json:"created_at"`
}

type StatsResponse struct {
	TotalBuyers  int64            `json:"total_buyers"`
	TotalRevenue decimal.Decimal  `json:"total_revenue"`
	PackageSales map[string]int64 `json:"package_sales"`
	StatusCounts map[string]int64 `json:"status_counts"`
}
