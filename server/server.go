// Package server exposes the two webhook surfaces: the messaging platform's
// verification handshake plus event intake, and the payment provider's
// callbacks. Webhook POSTs are always acknowledged with 200 so upstream
// platforms never retry-storm over internal failures.
package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/orderfunnel/pkg/bot"
	"github.com/example/orderfunnel/pkg/config"
)

// Verifier checks payment webhook signatures.
type Verifier interface {
	VerifySignature(body []byte, signature string) bool
}

type Server struct {
	config     *config.Config
	logger     *zap.Logger
	dispatcher *bot.Dispatcher
	verifier   Verifier
	router     *gin.Engine
}

func NewServer(cfg *config.Config, logger *zap.Logger, dispatcher *bot.Dispatcher, verifier Verifier) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger))

	return &Server{
		config:     cfg,
		logger:     logger,
		dispatcher: dispatcher,
		verifier:   verifier,
		router:     router,
	}
}

func (s *Server) SetupRoutes() {
	// Health check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	s.router.GET("/webhook", s.verifyWebhook)
	s.router.POST("/webhook", s.receiveMessages)
	s.router.POST("/webhook/payment", s.receivePayment)
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.logger.Info("Webhook server starting", zap.String("address", addr))
	return s.router.Run(addr)
}

// Router is exposed for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// verifyWebhook answers the platform's subscription handshake: echo the
// challenge iff mode is "subscribe" and the token matches.
func (s *Server) verifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == s.config.WhatsApp.VerifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	c.String(http.StatusForbidden, "forbidden")
}

func (s *Server) receiveMessages(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	events, err := bot.ParseWebhook(body)
	if err != nil {
		s.logger.Warn("unparseable messaging webhook", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	ctx := c.Request.Context()
	for i := range events {
		s.dispatcher.Handle(ctx, &events[i])
	}
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

func (s *Server) receivePayment(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	if sig := c.GetHeader("X-Razorpay-Signature"); sig != "" {
		if !s.verifier.VerifySignature(body, sig) {
			s.logger.Warn("payment webhook signature mismatch")
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad signature"})
			return
		}
	}

	event, err := bot.ParsePaymentWebhook(body)
	if err != nil {
		s.logger.Warn("unparseable payment webhook", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	s.dispatcher.Handle(c.Request.Context(), &event)
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
