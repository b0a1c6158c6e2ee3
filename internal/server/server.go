package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/handlers"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/metrics"
)

type Server struct {
	config   *config.Config
	router   *gin.Engine
	handlers *handlers.Handlers
	http     *http.Server
	logger   *zap.Logger
}

func NewServer(cfg *config.Config, h *handlers.Handlers, logger *zap.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.Middleware())

	s := &Server{
		config:   cfg,
		router:   router,
		handlers: h,
		logger:   logger.Named("server"),
	}

	s.setupRoutes()

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.Health)
	s.router.GET("/ready", s.handlers.Ready)
	s.router.GET("/live", s.handlers.Live)
	s.router.GET("/version", s.handlers.Version)
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/checkout", s.handlers.Checkout)

		v1.GET("/orders", s.handlers.ListOrders)
		v1.GET("/orders/:id", s.handlers.GetOrder)
		v1.POST("/orders/:id/dispatch", s.handlers.DispatchOrder)
		v1.POST("/orders/:id/deliver", s.handlers.DeliverOrder)
		v1.POST("/orders/:id/cancel", s.handlers.CancelOrder)
		v1.POST("/orders/:id/items", s.handlers.AddOrderItem)
		v1.DELETE("/orders/:id/items/:product_id", s.handlers.RemoveOrderItem)
		v1.GET("/orders/:id/payment", s.handlers.GetOrderPayment)
		v1.GET("/orders/:id/invoice", s.handlers.GetInvoice)
		v1.POST("/orders/:id/invoice/resend", s.handlers.ResendInvoice)
		v1.GET("/orders/:id/receipt", s.handlers.GetReceipt)
		v1.POST("/orders/:id/receipt/resend", s.handlers.ResendReceipt)

		v1.GET("/payments/:id", s.handlers.GetPayment)
		v1.POST("/payments/:id/refund", s.handlers.RefundPayment)

		v1.GET("/users/:user_id/orders", s.handlers.GetUserOrders)
	}
}

func (s *Server) Run() error {
	s.logger.Info("starting server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
