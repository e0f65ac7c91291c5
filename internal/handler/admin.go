package handler

import (
	"net/http"

	"crypto-content-gate/internal/service"

	"github.com/labstack/echo/v4"
)

type AdminHandler struct {
	adminService service.AdminService
}

func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
	}
}

func (h *AdminHandler) GetStats(c echo.Context) error {
	ctx := c.Request().Context()

	stats, err := h.adminService.Stats(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, stats)
}

func (h *AdminHandler) ReloadCatalog(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.adminService.ReloadCatalog(ctx); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "catalog reload failed: "+err.Error())
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "reloaded"})
}
