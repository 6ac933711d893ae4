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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aidenhsy/cron-schedules/config"
	"github.com/aidenhsy/cron-schedules/models"
	"github.com/aidenhsy/cron-schedules/ordersync"
	"github.com/aidenhsy/cron-schedules/utils"
	"github.com/aidenhsy/cron-schedules/workflow"
)

const defaultPort = "8080"

// Define a struct to represent the rate limiter.
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

// parseWindow validates optional ?start_date/&end_date before any store I/O.
// Both absent means unbounded; one without the other is a validation error.
func parseWindow(c *gin.Context) (*workflow.ScanOptions, error) {
	startDate := strings.TrimSpace(c.Query("start_date"))
	endDate := strings.TrimSpace(c.Query("end_date"))
	if startDate == "" && endDate == "" {
		return nil, nil
	}
	if startDate == "" || endDate == "" {
		return nil, fmt.Errorf("%w: start_date and end_date must both be set", utils.ErrorValidation)
	}
	from, to, err := utils.ValidateDateRange(startDate, endDate)
	if err != nil {
		return nil, err
	}
	return &workflow.ScanOptions{From: &from, To: &to}, nil
}

func scanOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		opts, err := parseWindow(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		batchSize := 0
		if v := strings.TrimSpace(c.Query("batch_size")); v != "" {
			if n, perr := strconv.Atoi(v); perr == nil && n > 0 {
				batchSize = n
			}
		}

		ctx := utils.SetTriggeredByInContext(c.Request.Context(), "api")
		report, err := workflow.ScanOrders(ctx, batchSize, opts)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "partial_report": report})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// lastScanReportHandler serves the cached report of the most recent completed
// scan without touching the stores.
func lastScanReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var report workflow.ScanReport
		found, err := config.GetRedisObject(workflow.LastScanReportKey, &report)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "no scan has completed yet"})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func clearLastScanReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := config.RemoveRedisKey(workflow.LastScanReportKey); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func checkMissingOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := workflow.CheckMissingOrders(c.Request.Context(), 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

type syncDeliveryQtyRequest struct {
	ClientOrderIds []string `json:"client_order_ids" binding:"required,min=1,dive,required"`
}

func syncDeliveryQtyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req syncDeliveryQtyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			var validationErrors validator.ValidationErrors
			if errors.As(err, &validationErrors) {
				c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "client_order_ids is required"})
			return
		}

		ctx := utils.SetTriggeredByInContext(c.Request.Context(), "api")
		result, err := workflow.SyncDeliveryQty(ctx, req.ClientOrderIds)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func syncSupplierItemsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := workflow.SyncSupplierItems(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "partial_report": report})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func wacMissingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := workflow.ProcessMissingWacEntries(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "partial_report": report})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func wacRecalculateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		shopStr := strings.TrimSpace(c.Query("shop_id"))
		itemStr := strings.TrimSpace(c.Query("supplier_item_id"))

		// No scope = rebuild everything.
		if shopStr == "" && itemStr == "" {
			rebuilt, err := workflow.RecalculateAllWac(c.Request.Context())
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "chains_rebuilt": rebuilt})
				return
			}
			c.JSON(http.StatusOK, gin.H{"chains_rebuilt": rebuilt})
			return
		}

		shopId, err1 := strconv.ParseUint(shopStr, 10, 32)
		itemId, err2 := strconv.ParseUint(itemStr, 10, 32)
		if err1 != nil || err2 != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "shop_id and supplier_item_id must both be positive integers"})
			return
		}
		if err := workflow.RecalculateWac(c.Request.Context(), uint(shopId), uint(itemId)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"shop_id": shopId, "supplier_item_id": itemId, "chains_rebuilt": 1})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
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
	// Until the stores are ready, app endpoints return 503.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness.
		if config.GetOrderDB() == nil || config.GetProcurementDB() == nil ||
			config.GetBasicDB() == nil || config.GetWacDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

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
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
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

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/pubsub/order-delivered", ordersync.PushHandler())
	r.GET("/checks/orders", scanOrdersHandler())
	r.GET("/checks/orders/last", lastScanReportHandler())
	r.DELETE("/checks/orders/last", clearLastScanReportHandler())
	r.GET("/checks/orders/missing", checkMissingOrdersHandler())
	r.POST("/sync/delivery-qty", syncDeliveryQtyHandler())
	r.GET("/sync/inventory/supplier-items", syncSupplierItemsHandler())
	r.GET("/sync/inventory/wac/missing", wacMissingHandler())
	r.GET("/sync/inventory/wac/recalculate", wacRecalculateHandler())
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
	config.ConnectDatabasesWithRetry()
	config.ConnectRedisWithRetry()

	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateDatabase(); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Error("migration failed: " + err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Broker topology, then background jobs.
	if err := ordersync.EnsureTopology(sigCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "pubsub"}).Warn("pubsub topology not ready: " + err.Error())
	}

	jobsCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	go RunBackgroundJobs(jobsCtx)

	logger.WithFields(logrus.Fields{
		"port": port,
	}).Info("http server ready")
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

	// Stop background jobs first so they don't start new work while draining.
	cancelJobs()

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
