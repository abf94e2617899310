// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"

	"github.com/collabhq/collabpay/internal/balance"
	"github.com/collabhq/collabpay/internal/cache"
	"github.com/collabhq/collabpay/internal/config"
	"github.com/collabhq/collabpay/internal/contracts"
	"github.com/collabhq/collabpay/internal/health"
	"github.com/collabhq/collabpay/internal/logging"
	"github.com/collabhq/collabpay/internal/metrics"
	"github.com/collabhq/collabpay/internal/money"
	"github.com/collabhq/collabpay/internal/notify"
	"github.com/collabhq/collabpay/internal/payments"
	"github.com/collabhq/collabpay/internal/ratelimit"
	"github.com/collabhq/collabpay/internal/security"
	"github.com/collabhq/collabpay/internal/subscriptions"
	"github.com/collabhq/collabpay/internal/validation"
	"github.com/collabhq/collabpay/internal/webhooks"
	"github.com/collabhq/collabpay/internal/withdrawals"
)

// fundingTimeout is how long a contract may wait for the brand's money
// before the sweeper cancels it.
const fundingTimeout = 24 * time.Hour

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg           *config.Config
	ledger        *balance.Ledger
	payments      *payments.Service
	withdrawals   *withdrawals.Service
	contracts     *contracts.Service
	contractTimer *contracts.Timer
	subscriptions *subscriptions.Service
	webhookGate   *webhooks.Gate
	dispatcher    *webhooks.Dispatcher
	healthChecks  *health.Registry
	rateLimiter   *ratelimit.Limiter
	redisCache    *cache.Redis // nil unless REDIS_URL is set
	db            *sql.DB      // nil if using in-memory
	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger
	cancelRunCtx  context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:          cfg,
		logger:       logging.New(cfg.LogLevel, "json"),
		healthChecks: health.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		balanceStore      balance.Store
		paymentStore      payments.Store
		withdrawalStore   withdrawals.Store
		contractStore     contracts.Store
		subscriptionStore subscriptions.Store
		webhookStore      webhooks.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		balanceStore = balance.NewPostgresStore(db)
		paymentStore = payments.NewPostgresStore(db)
		withdrawalStore = withdrawals.NewPostgresStore(db)
		contractStore = contracts.NewPostgresStore(db)
		subscriptionStore = subscriptions.NewPostgresStore(db)
		webhookStore = webhooks.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		s.healthChecks.Register("database", health.Ping("database", db.PingContext))
	} else {
		balanceStore = balance.NewMemoryStore()
		paymentStore = payments.NewMemoryStore()
		withdrawalStore = withdrawals.NewMemoryStore()
		contractStore = contracts.NewMemoryStore()
		subscriptionStore = subscriptions.NewMemoryStore()
		webhookStore = webhooks.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	s.ledger = balance.New(balanceStore)

	// Notification emitter (nil when NOTIFY_URL is unset; services tolerate that)
	notifier := notify.NewEmitter(cfg.NotifyURL, cfg.NotifySecret, s.logger)
	if notifier != nil {
		s.logger.Info("notifications enabled", "url", cfg.NotifyURL)
	}

	// Stripe client, shared by settlement and the payout channels
	var stripeAPI *client.API
	if cfg.StripeSecretKey != "" {
		stripeAPI = &client.API{}
		stripeAPI.Init(cfg.StripeSecretKey, nil)
	}

	// Payment lifecycle engine
	var settlement payments.SettlementProvider
	if cfg.StripeSecretKey != "" {
		settlement = payments.NewStripeSettlement(cfg.StripeSecretKey)
		s.logger.Info("stripe settlement enabled")
	} else {
		settlement = payments.NoopSettlement{}
		s.logger.Warn("stripe key not set, using no-op settlement")
	}
	s.payments = payments.NewService(paymentStore, s.ledger, settlement, cfg.PlatformFeePct).
		WithNotifier(notifier)

	// Withdrawal engine and payout channels
	minW, ok := money.Parse(cfg.MinWithdrawal)
	if !ok {
		return nil, fmt.Errorf("invalid MIN_WITHDRAWAL %q", cfg.MinWithdrawal)
	}
	maxW, ok := money.Parse(cfg.MaxWithdrawal)
	if !ok {
		return nil, fmt.Errorf("invalid MAX_WITHDRAWAL %q", cfg.MaxWithdrawal)
	}

	channels := withdrawals.NewRegistry()
	if stripeAPI != nil {
		channels.Register(withdrawals.NewBankTransfer(stripeAPI, "usd", minW, maxW))
		channels.Register(withdrawals.NewInstantPayout(stripeAPI, "usd", minW, maxW, 1.0, money.Cents(50)))
	}
	if cfg.MobileMoneyURL != "" {
		channels.Register(withdrawals.NewMobileMoney(
			cfg.MobileMoneyURL, cfg.MobileMoneyAPIKey, minW, maxW, 2.0, money.Cents(0)))
		s.logger.Info("mobile money payouts enabled")
	}
	s.withdrawals = withdrawals.NewService(withdrawalStore, s.ledger, channels, cfg.PlatformFeePct).
		WithSourceResolver(s.payments).
		WithNotifier(notifier)
	s.logger.Info("withdrawal engine enabled", "methods", channels.Methods())

	// Contract workflow driving the payment engine
	s.contracts = contracts.NewService(contractStore, &paymentEngineAdapter{s.payments}, cfg.PlatformFeePct)
	s.contractTimer = contracts.NewTimer(s.contracts, fundingTimeout, s.logger)
	s.withdrawals.WithCompletionHook(s.contracts.MarkWithdrawnForCreator)

	// Reconciliation cross-checks the ledger against payment and
	// withdrawal records
	s.ledger.WithActivitySource(&activityAdapter{payments: s.payments, withdrawals: s.withdrawals})

	// Subscription projection
	s.subscriptions = subscriptions.NewService(subscriptionStore)

	// Webhook idempotency gate, with a shared Redis cache when configured
	var dupCache cache.Cache
	if cfg.RedisURL != "" {
		r, err := cache.NewRedis(ctx, cfg.RedisURL, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.redisCache = r
		dupCache = r
		s.healthChecks.Register("redis", health.Ping("redis", r.Ping))
		s.logger.Info("redis webhook dedup cache enabled")
	} else {
		dupCache = cache.NewMemory()
	}
	s.webhookGate = webhooks.NewGate(webhookStore, dupCache)
	s.dispatcher = webhooks.NewDispatcher()
	s.registerWebhookHandlers()

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for development - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	s.rateLimiter = ratelimit.New(ratelimit.DefaultConfig())
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// adminAuthMiddleware guards operator routes with the X-Admin-Secret header.
// Without a configured secret, admin routes only work in development.
func (s *Server) adminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminSecret == "" {
			if s.cfg.IsDevelopment() {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   "admin_disabled",
				"message": "Admin API is not configured",
			})
			return
		}
		if c.GetHeader("X-Admin-Secret") != s.cfg.AdminSecret {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid admin secret",
			})
			return
		}
		c.Next()
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// API info
	s.router.GET("/", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")
	// Validate :id URL params on all v1 routes (no-op when param absent)
	v1.Use(validation.IDParamMiddleware())

	balanceHandler := balance.NewHandler(s.ledger)
	balanceHandler.RegisterRoutes(v1)

	paymentHandler := payments.NewHandler(s.payments)
	paymentHandler.RegisterRoutes(v1)

	withdrawalHandler := withdrawals.NewHandler(s.withdrawals)
	withdrawalHandler.RegisterRoutes(v1)

	contractHandler := contracts.NewHandler(s.contracts)
	contractHandler.RegisterRoutes(v1)

	subscriptionHandler := subscriptions.NewHandler(s.subscriptions)
	subscriptionHandler.RegisterRoutes(v1)

	// Provider webhook ingestion
	webhookHandler := webhooks.NewHandler(s.webhookGate, s.dispatcher, s.cfg.StripeWebhookSecret)
	webhookHandler.RegisterRoutes(v1)

	// Operator routes
	admin := v1.Group("/admin")
	admin.Use(s.adminAuthMiddleware())
	balanceHandler.RegisterAdminRoutes(admin)
	paymentHandler.RegisterAdminRoutes(admin)
	webhookHandler.RegisterAdminRoutes(admin)
}

// -----------------------------------------------------------------------------
// Webhook event wiring
// -----------------------------------------------------------------------------

// registerWebhookHandlers maps provider event types onto domain operations.
// Handlers return nil for events that reference unknown records: those will
// never succeed on redelivery, so retrying is pointless.
func (s *Server) registerWebhookHandlers() {
	s.dispatcher.On("payment_intent.succeeded", s.onFundingSucceeded)
	s.dispatcher.On("charge.refunded", s.onChargeRefunded)
	s.dispatcher.On("customer.subscription.created", s.onSubscriptionSync)
	s.dispatcher.On("customer.subscription.updated", s.onSubscriptionSync)
	s.dispatcher.On("customer.subscription.deleted", s.onSubscriptionDeleted)
	s.dispatcher.On("invoice.paid", s.onInvoicePaid)
	s.dispatcher.On("invoice.payment_failed", s.onInvoicePaymentFailed)

	// Terminal money-movement events need an operator's eyes, not a state
	// change: disputes and payout outcomes resolve in the provider dashboard.
	s.dispatcher.On("charge.dispute.created", s.onOperatorAlert)
	s.dispatcher.On("transfer.failed", s.onOperatorAlert)
	s.dispatcher.On("payout.failed", s.onOperatorAlert)
	s.dispatcher.On("payout.paid", s.onOperatorInfo)
}

func (s *Server) onOperatorAlert(ctx context.Context, event stripe.Event) error {
	logging.L(ctx).Warn("provider event requires operator attention",
		"type", event.Type, "event_id", event.ID)
	return nil
}

func (s *Server) onOperatorInfo(ctx context.Context, event stripe.Event) error {
	logging.L(ctx).Info("provider payout settled", "event_id", event.ID)
	return nil
}

func (s *Server) onFundingSucceeded(ctx context.Context, event stripe.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return fmt.Errorf("parse payment intent: %w", err)
	}

	contractID := pi.Metadata["contract_id"]
	if contractID == "" {
		// Not a contract funding charge (e.g. a subscription invoice payment).
		logging.L(ctx).Debug("payment intent without contract metadata", "intent", pi.ID)
		return nil
	}

	_, err := s.contracts.HandleFundingCompleted(ctx, contractID, pi.ID)
	if errors.Is(err, contracts.ErrContractNotFound) {
		logging.L(ctx).Warn("funding event for unknown contract",
			"contract_id", contractID, "intent", pi.ID)
		return nil
	}
	return err
}

func (s *Server) onChargeRefunded(ctx context.Context, event stripe.Event) error {
	var ch stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
		return fmt.Errorf("parse charge: %w", err)
	}

	contractID := ch.Metadata["contract_id"]
	if contractID == "" {
		return nil
	}

	list, err := s.payments.ListByContract(ctx, contractID)
	if err != nil {
		return err
	}
	for _, p := range list {
		if p.IsTerminal() {
			continue
		}
		if _, err := s.payments.Refund(ctx, p.ID); err != nil {
			// Already-refunded or mid-transition payments are fine to skip;
			// the refund is recorded provider-side either way.
			logging.L(ctx).Warn("refund from webhook skipped",
				"payment_id", p.ID, "contract_id", contractID, "error", err)
		}
	}
	return nil
}

func (s *Server) onSubscriptionSync(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("parse subscription: %w", err)
	}

	_, err := s.subscriptions.Sync(ctx, subscriptions.SyncInput{
		ProviderSubRef:   sub.ID,
		BrandID:          sub.Metadata["brand_id"],
		Plan:             subscriptionPlan(&sub),
		Status:           subscriptionStatus(sub.Status),
		CurrentPeriodEnd: time.Unix(sub.CurrentPeriodEnd, 0),
	})
	return err
}

func (s *Server) onSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("parse subscription: %w", err)
	}

	_, err := s.subscriptions.Sync(ctx, subscriptions.SyncInput{
		ProviderSubRef:   sub.ID,
		BrandID:          sub.Metadata["brand_id"],
		Plan:             subscriptionPlan(&sub),
		Status:           subscriptions.StatusCanceled,
		CurrentPeriodEnd: time.Unix(sub.CurrentPeriodEnd, 0),
	})
	return err
}

func (s *Server) onInvoicePaid(ctx context.Context, event stripe.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return fmt.Errorf("parse invoice: %w", err)
	}
	// Invoiced contract funding carries the contract in metadata, same as
	// a direct payment intent.
	if contractID := inv.Metadata["contract_id"]; contractID != "" {
		_, err := s.contracts.HandleFundingCompleted(ctx, contractID, inv.ID)
		if errors.Is(err, contracts.ErrContractNotFound) {
			logging.L(ctx).Warn("invoice for unknown contract", "contract_id", contractID, "invoice", inv.ID)
			return nil
		}
		return err
	}

	if inv.Subscription == nil || inv.Subscription.ID == "" {
		return nil // one-off invoice, nothing to project
	}

	_, err := s.subscriptions.SyncInvoicePaid(ctx, inv.Subscription.ID, inv.ID, time.Unix(inv.PeriodEnd, 0))
	return err
}

func (s *Server) onInvoicePaymentFailed(ctx context.Context, event stripe.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return fmt.Errorf("parse invoice: %w", err)
	}
	if inv.Subscription == nil || inv.Subscription.ID == "" {
		return nil
	}

	_, err := s.subscriptions.MarkPaymentFailed(ctx, inv.Subscription.ID, inv.ID)
	if errors.Is(err, subscriptions.ErrSubscriptionNotFound) {
		logging.L(ctx).Warn("payment failure for unknown subscription", "sub", inv.Subscription.ID)
		return nil
	}
	return err
}

func subscriptionStatus(st stripe.SubscriptionStatus) subscriptions.Status {
	switch st {
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return subscriptions.StatusPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return subscriptions.StatusCanceled
	default:
		return subscriptions.StatusActive
	}
}

func subscriptionPlan(sub *stripe.Subscription) string {
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		return sub.Items.Data[0].Price.ID
	}
	return ""
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, checks := s.healthChecks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "CollabPay",
		"description": "Escrow ledger and payment lifecycle for brand-creator collaborations",
		"version":     "0.1.0",
		"currency":    "USD",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start funding-timeout sweeper
	go s.contractTimer.Start(runCtx)

	// Export DB pool stats
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop funding-timeout sweeper
	if s.contractTimer != nil {
		s.contractTimer.Stop()
		s.logger.Info("contract timer stopped")
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Close the Redis dedup cache
	if s.redisCache != nil {
		if err := s.redisCache.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// -----------------------------------------------------------------------------
// Adapters
// -----------------------------------------------------------------------------

// paymentEngineAdapter exposes payments.Service to the contract workflow.
type paymentEngineAdapter struct {
	svc *payments.Service
}

func (a *paymentEngineAdapter) CreatePayment(ctx context.Context, contractID, brandID, creatorID string, gross money.Cents, fundingRef string) (string, error) {
	p, err := a.svc.Create(ctx, payments.CreateRequest{
		ContractID:  contractID,
		BrandID:     brandID,
		CreatorID:   creatorID,
		Gross:       gross,
		ProviderRef: fundingRef,
	})
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

func (a *paymentEngineAdapter) ReleasePayment(ctx context.Context, paymentID string) (bool, error) {
	p, err := a.svc.Release(ctx, paymentID)
	if err != nil {
		return false, err
	}
	return p.Status == payments.StatusCompleted, nil
}

// activityAdapter feeds payment and withdrawal history to balance
// reconciliation.
type activityAdapter struct {
	payments    *payments.Service
	withdrawals *withdrawals.Service
}

// Reconciliation folds full history; the bound only guards against a
// pathological creator.
const reconcileHistoryLimit = 10000

func (a *activityAdapter) CreatorActivity(ctx context.Context, creatorID string) ([]balance.PaymentRecord, []balance.WithdrawalRecord, error) {
	pays, err := a.payments.ListByCreator(ctx, creatorID, reconcileHistoryLimit)
	if err != nil {
		return nil, nil, err
	}
	wds, err := a.withdrawals.ListByCreator(ctx, creatorID, reconcileHistoryLimit)
	if err != nil {
		return nil, nil, err
	}

	precs := make([]balance.PaymentRecord, 0, len(pays))
	for _, p := range pays {
		precs = append(precs, balance.PaymentRecord{Net: p.Net, Status: string(p.Status)})
	}
	wrecs := make([]balance.WithdrawalRecord, 0, len(wds))
	for _, w := range wds {
		wrecs = append(wrecs, balance.WithdrawalRecord{Gross: w.Gross, Status: string(w.Status)})
	}
	return precs, wrecs, nil
}
