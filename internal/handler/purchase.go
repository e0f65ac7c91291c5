package handler

import (
	"errors"
	"net/http"
	"strconv"

	"crypto-content-gate/internal/dto"
	"crypto-content-gate/internal/repository"
	"crypto-content-gate/internal/service"

	"github.com/labstack/echo/v4"
)

// PurchaseHandler is the surface the chat layer calls: request a purchase,
// poll its status, list a buyer's history. Buyer identity arrives as the
// chat platform's numeric user id.
type PurchaseHandler struct {
	paymentService service.PaymentService
}

func NewPurchaseHandler(paymentService service.PaymentService) *PurchaseHandler {
	return &PurchaseHandler{
		paymentService: paymentService,
	}
}

func (h *PurchaseHandler) RequestPurchase(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.PurchaseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if req.BuyerID == 0 || req.PackageID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "buyer_id and package_id are required")
	}

	result, err := h.paymentService.RequestPurchase(ctx, req.BuyerID, req.PackageID)
	if errors.Is(err, service.ErrPackageUnavailable) {
		return echo.NewHTTPError(http.StatusNotFound, "package unavailable")
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

func (h *PurchaseHandler) GetPurchaseStatus(c echo.Context) error {
	ctx := c.Request().Context()

	buyerID, err := buyerIDParam(c)
	if err != nil {
		return err
	}
	trackID := c.Param("trackID")

	result, err := h.paymentService.GetPurchaseStatus(ctx, buyerID, trackID)
	if errors.Is(err, repository.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "unknown payment")
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

func (h *PurchaseHandler) ListPurchases(c echo.Context) error {
	ctx := c.Request().Context()

	buyerID, err := buyerIDParam(c)
	if err != nil {
		return err
	}

	items, err := h.paymentService.ListPurchases(ctx, buyerID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, items)
}

func buyerIDParam(c echo.Context) (int64, error) {
	buyerID, err := strconv.ParseInt(c.Param("buyerID"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid buyer id")
	}
	return buyerID, nil
}
