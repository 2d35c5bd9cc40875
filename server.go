package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/hims_backend/config"
	"bitbucket.org/mmdatafocus/hims_backend/middlewares"
	"bitbucket.org/mmdatafocus/hims_backend/models"
	"bitbucket.org/mmdatafocus/hims_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("hims-backend")

// RateLimiter throttles requests per client IP using a Redis counter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func readyzHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		dbReady := false
		if db := config.GetDB(); db != nil {
			if sqlDB, err := db.DB(); err == nil && sqlDB.PingContext(c.Request.Context()) == nil {
				dbReady = true
			}
		}
		// Redis is an optimization (locks, report cache); the service runs
		// without it, so it never fails readiness.
		redisReady := config.GetRedisDB() != nil

		status := http.StatusOK
		if !dbReady {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"database": dbReady, "redis": redisReady})
	}
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until the DB is ready, app endpoints return 503.
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(func(c *gin.Context) {
		// Always allow probes.
		if c.Request.URL.Path == "/healthz" || c.Request.URL.Path == "/readyz" {
			c.Next()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "starting up"})
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/readyz", readyzHandler())

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "X-Correlation-Id")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", "X-Correlation-Id")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.SessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/api/auth/login", loginHandler())

	api := r.Group("/api", middlewares.RequireUser())
	{
		api.POST("/items", createItemHandler())
		api.GET("/items", listItemHandler())
		api.GET("/items/:id", getItemHandler())
		api.PUT("/items/:id", updateItemHandler())
		api.PUT("/items/:id/active", toggleItemActiveHandler())
		api.POST("/items/import", importItemsHandler())

		api.POST("/suppliers", createSupplierHandler())
		api.GET("/suppliers", listSupplierHandler())
		api.GET("/suppliers/:id", getSupplierHandler())
		api.PUT("/suppliers/:id", updateSupplierHandler())
		api.PUT("/suppliers/:id/active", toggleSupplierActiveHandler())

		api.POST("/locations", createLocationHandler())
		api.GET("/locations", listLocationHandler())
		api.GET("/locations/:id", getLocationHandler())
		api.PUT("/locations/:id", updateLocationHandler())

		api.POST("/purchase-orders", createPurchaseOrderHandler())
		api.GET("/purchase-orders", listPurchaseOrderHandler())
		api.GET("/purchase-orders/:id", getPurchaseOrderHandler())
		api.PUT("/purchase-orders/:id", updatePurchaseOrderHandler())
		api.POST("/purchase-orders/:id/status", changePurchaseOrderStatusHandler())

		api.POST("/grns", createGrnHandler())
		api.POST("/grns/from-po/:poId", createGrnFromPurchaseOrderHandler())
		api.GET("/grns", listGrnHandler())
		api.GET("/grns/:id", getGrnHandler())
		api.PUT("/grns/:id", updateGrnHandler())
		api.POST("/grns/:id/post", postGrnHandler())
		api.POST("/grns/:id/cancel", cancelGrnHandler())

		api.POST("/dispenses", createDispenseHandler())
		api.GET("/dispenses", listDispenseHandler())
		api.GET("/dispenses/:id", getDispenseHandler())

		api.POST("/stock-adjustments", createStockAdjustmentHandler())
		api.GET("/stock-adjustments", listStockAdjustmentHandler())
		api.GET("/stock-adjustments/:id", getStockAdjustmentHandler())

		api.GET("/item-batches", listItemBatchHandler())
		api.GET("/item-batches/fefo-preview", previewFefoAllocationHandler())
		api.GET("/stock-transactions", listStockTransactionHandler())

		api.POST("/return-notes", createReturnNoteHandler())
		api.GET("/return-notes", listReturnNoteHandler())
		api.GET("/return-notes/:id", getReturnNoteHandler())
		api.POST("/return-notes/:id/post", postReturnNoteHandler())
		api.POST("/return-notes/:id/cancel", cancelReturnNoteHandler())

		api.GET("/supplier-invoices", listSupplierInvoiceHandler())
		api.GET("/supplier-invoices/outstanding", supplierOutstandingHandler())
		api.GET("/supplier-invoices/:id", getSupplierInvoiceHandler())
		api.POST("/supplier-invoices/:id/cancel", cancelSupplierInvoiceHandler())

		api.POST("/supplier-payments", createSupplierPaymentHandler())
		api.GET("/supplier-payments", listSupplierPaymentHandler())
		api.GET("/supplier-payments/:id", getSupplierPaymentHandler())
		api.POST("/supplier-payments/:id/allocate", allocatePaymentHandler())
		api.POST("/supplier-payments/:id/auto-allocate", autoAllocatePaymentHandler())

		api.GET("/reports/stock-on-hand", stockOnHandReportHandler())
		api.GET("/reports/grn-register", grnRegisterReportHandler())
		api.GET("/reports/supplier-outstanding", supplierOutstandingReportHandler())
	}

	// Ops tooling (admin only).
	ops := r.Group("/internal/ops", middlewares.RequireUser(), middlewares.RequireAdmin())
	{
		ops.GET("/ledger-check", ledgerCheckHandler())
		ops.POST("/users", createUserHandler())
		ops.PUT("/users/:id/password", resetUserPasswordHandler())
	}

	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Periodic ledger drift check (off unless an interval is configured).
	monitorCtx, cancelMonitor := context.WithCancel(context.Background())
	defer cancelMonitor()
	if v := strings.TrimSpace(os.Getenv("LEDGER_CHECK_INTERVAL_MINUTES")); v != "" {
		if mins, err := strconv.Atoi(v); err == nil && mins > 0 {
			go workflow.NewLedgerMonitor(logger, time.Duration(mins)*time.Minute).Run(monitorCtx)
		}
	}

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelMonitor()

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP() // Assuming IP-based rate limiting

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
