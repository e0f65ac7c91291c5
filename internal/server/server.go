package server

import (
	"crypto-content-gate/internal/handler"
	"crypto-content-gate/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Server struct {
	echo            *echo.Echo
	webhookHandler  *handler.WebhookHandler
	purchaseHandler *handler.PurchaseHandler
	adminHandler    *handler.AdminHandler
}

func NewServer(paymentService service.PaymentService, adminService service.AdminService, webhookSecret string) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &Server{
		echo:            e,
		webhookHandler:  handler.NewWebhookHandler(paymentService, webhookSecret),
		purchaseHandler: handler.NewPurchaseHandler(paymentService),
		adminHandler:    handler.NewAdminHandler(adminService),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// -------- processor callback --------
	s.echo.POST("/webhook", s.webhookHandler.HandleWebhook)

	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	// -------- chat layer collaborator --------
	api.POST("/purchases", s.purchaseHandler.RequestPurchase)
	api.GET("/buyers/:buyerID/purchases", s.purchaseHandler.ListPurchases)
	api.GET("/buyers/:buyerID/purchases/:trackID", s.purchaseHandler.GetPurchaseStatus)

	// -------- admin layer collaborator --------
	admin := api.Group("/admin")
	admin.GET("/stats", s.adminHandler.GetStats)
	admin.POST("/catalog/reload", s.adminHandler.ReloadCatalog)
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown() error {
	return s.echo.Close()
}
