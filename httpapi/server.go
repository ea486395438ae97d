package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	glog "github.com/goliatone/go-logger/glog"
	paychain "github.com/goliatone/go-paychain"
	"github.com/goliatone/go-paychain/core"
	"github.com/goliatone/go-paychain/inbound"
)

const (
	DefaultAmountDecimals int32 = 6
	DefaultMaxBodyBytes   int64 = 1 << 20
)

// Server exposes the facade's commands and queries over HTTP.
type Server struct {
	facade         *paychain.Facade
	relay          *inbound.Dispatcher
	metrics        http.Handler
	logger         glog.Logger
	amountDecimals int32
	maxBodyBytes   int64
	signatureSkew  time.Duration
	nonces         core.ReplayLedger
	now            func() time.Time
	startedAt      time.Time
}

type Option func(*Server)

// WithRelayDispatcher enables POST /v1/relay/messages.
func WithRelayDispatcher(dispatcher *inbound.Dispatcher) Option {
	return func(s *Server) {
		s.relay = dispatcher
	}
}

// WithMetricsHandler mounts handler on GET /metrics.
func WithMetricsHandler(handler http.Handler) Option {
	return func(s *Server) {
		s.metrics = handler
	}
}

func WithLogger(logger glog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAmountDecimals sets the precision used for amount_display fields.
func WithAmountDecimals(decimals int32) Option {
	return func(s *Server) {
		if decimals >= 0 {
			s.amountDecimals = decimals
		}
	}
}

func WithMaxBodyBytes(limit int64) Option {
	return func(s *Server) {
		if limit > 0 {
			s.maxBodyBytes = limit
		}
	}
}

// WithSignatureSkew bounds how far a signed request's timestamp may drift
// from the server clock.
func WithSignatureSkew(skew time.Duration) Option {
	return func(s *Server) {
		if skew > 0 {
			s.signatureSkew = skew
		}
	}
}

// WithRequestNonces stores consumed request nonces in ledger. Replicas that
// share a ledger refuse each other's replays.
func WithRequestNonces(ledger core.ReplayLedger) Option {
	return func(s *Server) {
		if ledger != nil {
			s.nonces = ledger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

func NewServer(facade *paychain.Facade, opts ...Option) (*Server, error) {
	if facade == nil {
		return nil, fmt.Errorf("httpapi: facade is required")
	}
	server := &Server{
		facade:         facade,
		logger:         glog.Ensure(nil),
		amountDecimals: DefaultAmountDecimals,
		maxBodyBytes:   DefaultMaxBodyBytes,
		signatureSkew:  DefaultSignatureSkew,
		now: func() time.Time {
			return time.Now().UTC()
		},
		startedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(server)
		}
	}
	if server.nonces == nil {
		server.nonces = core.NewMemoryReplayLedger(2 * server.signatureSkew)
	}
	return server, nil
}

// Handler builds a gin engine with every route registered.
func (s *Server) Handler() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())
	s.Register(engine)
	return engine
}

func (s *Server) Register(router gin.IRouter) {
	router.GET("/healthz", s.healthz)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics))
	}

	v1 := router.Group("/v1")
	v1.Use(s.limitBody())

	v1.GET("/deployment", s.getDeployment)
	v1.GET("/vault", s.getVault)
	v1.GET("/payments", s.listPayments)
	v1.GET("/payments/:id", s.getPayment)
	v1.GET("/requests/:id", s.getPaymentRequest)
	v1.GET("/settlements", s.listSettlements)

	signed := v1.Group("")
	signed.Use(s.requireSigner())

	signed.POST("/deployment", s.initialize)
	signed.PATCH("/deployment/fees", s.updateFeeSchedule)

	signed.POST("/payments", s.createPayment)
	signed.POST("/payments/:id/refund", s.processRefund)
	signed.POST("/payments/:id/transition", s.transitionPayment)

	signed.POST("/requests", s.createPaymentRequest)
	signed.POST("/requests/:id/pay", s.payRequest)

	signed.POST("/offramps", s.allowOfframp)
	signed.DELETE("/offramps", s.revokeOfframp)

	signed.POST("/swaps", s.swapTokens)
	signed.POST("/outbox/dispatch", s.dispatchLifecycle)

	// Relay deliveries carry their own capability and delivery signature.
	if s.relay != nil {
		v1.POST("/relay/messages", s.receiveRelay)
	}
}

// ListenAndServe runs the handler until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	s.logger.Info("http server listening", "addr", addr)

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startedAt := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(startedAt).Milliseconds(),
		)
	}
}

func (s *Server) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes)
		}
		c.Next()
	}
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}
