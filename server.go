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

	"bitbucket.org/milpaydata/lesaudit_backend/config"
	"bitbucket.org/milpaydata/lesaudit_backend/middlewares"
	"bitbucket.org/milpaydata/lesaudit_backend/models"
	"bitbucket.org/milpaydata/lesaudit_backend/models/reports"
	"bitbucket.org/milpaydata/lesaudit_backend/utils"
	"bitbucket.org/milpaydata/lesaudit_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("lesaudit-backend")

// RateLimiter is a redis fixed-window burst limiter on the shared client. It
// protects the compute endpoint from per-keystroke call storms; the save quota
// is separate and enforced by the atomic DB counter.
type RateLimiter struct {
	limit  int64
	window time.Duration
}

func NewRateLimiter(limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{limit: limit, window: window}
}

func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := "burst:" + c.ClientIP()

	// Counter returns 0 until redis is connected; limiter trouble must not
	// take the API down.
	count, err := config.GetRedisCounter(c.Request.Context(), key)
	if err != nil || count == 0 {
		c.Next()
		return
	}
	if count == 1 {
		// First hit in the window owns the expiry.
		_ = config.ExpireRedisKey(c.Request.Context(), key, rl.window)
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func lifecycleDeps() workflow.Deps {
	db := config.GetDB()
	return workflow.Deps{
		DB:           db,
		Logger:       config.GetLogger(),
		Rates:        &models.GormRateSource{DB: db},
		Entitlements: &models.GormEntitlementStore{DB: db},
	}
}

// tierFor resolves the caller's tier. Staff identity comes from the token;
// everything else is re-read from the entitlement store per request and
// fail-closed to free.
func tierFor(c *gin.Context) models.SubscriptionTier {
	ctx := c.Request.Context()
	if isStaff, _ := utils.GetIsStaffFromContext(ctx); isStaff {
		return models.TierStaff
	}
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return models.TierFree
	}
	deps := lifecycleDeps()
	return deps.Entitlements.GetTier(ctx, userId)
}

func httpStatusForError(err error) int {
	var transient *utils.TransientStoreError
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrorQuotaExceeded):
		return http.StatusPaymentRequired
	case errors.Is(err, utils.ErrorInvalidStatus):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrIdempotencyInProgress):
		return http.StatusConflict
	case errors.Is(err, utils.ErrorInvalidInput), errors.Is(err, utils.ErrorInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, utils.ErrorUnauthorized):
		return http.StatusUnauthorized
	case errors.As(err, &transient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortBindError(c *gin.Context, err error) {
	var verr validator.ValidationErrors
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(verr)})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
}

func abortWithError(c *gin.Context, err error) {
	status := httpStatusForError(err)
	if status == http.StatusInternalServerError {
		config.LogError(config.GetLogger(), "server.go", c.FullPath(), "unhandled", nil, err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

type auditComputeRequest struct {
	Month     int                       `json:"month" binding:"required,min=1,max=12"`
	Year      int                       `json:"year" binding:"required,min=2000,max=2100"`
	Profile   models.ProfileSnapshot    `json:"profile" binding:"required"`
	LineItems []models.RawLineItemInput `json:"lineItems"`
}

type lineItemsRequest struct {
	LineItems []models.RawLineItemInput `json:"lineItems" binding:"required"`
}

// computeHandler is idempotent and side-effect-free: it persists nothing and
// never touches quota. The result is masked server-side before it leaves.
func computeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "audit.compute")
		defer span.End()

		var req auditComputeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortBindError(c, err)
			return
		}

		deps := lifecycleDeps()
		result, err := workflow.ComputeOnce(ctx, deps.Rates, req.Profile, req.Month, req.Year, req.LineItems, tierFor(c))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func createAuditHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req auditComputeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortBindError(c, err)
			return
		}
		userId, _ := utils.GetUserIdFromContext(c.Request.Context())

		audit, err := workflow.CreateDraftAudit(c.Request.Context(), lifecycleDeps(), userId, req.Month, req.Year, req.Profile, req.LineItems)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": audit.ID, "status": audit.Status, "lineItemCount": len(audit.LineItems)})
	}
}

func getAuditHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		view, audit, err := workflow.AuditView(c.Request.Context(), lifecycleDeps(), c.Param("id"), tierFor(c))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":     audit.ID,
			"month":  audit.Month,
			"year":   audit.Year,
			"status": audit.Status,
			"result": view,
		})
	}
}

func replaceLineItemsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req lineItemsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortBindError(c, err)
			return
		}
		audit, err := workflow.ReplaceLineItems(c.Request.Context(), lifecycleDeps(), c.Param("id"), req.LineItems)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": audit.ID, "status": audit.Status, "lineItemCount": len(audit.LineItems)})
	}
}

func recomputeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "audit.recompute")
		defer span.End()

		deps := lifecycleDeps()
		audit, err := workflow.RecomputeAudit(ctx, deps, c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}

		policy := config.DefaultMaskingPolicy()
		var waterfall []reports.WaterfallRow
		if audit.Expected != nil {
			waterfall = reports.BuildWaterfall(audit.Expected, audit.LineItems)
		}
		view := workflow.Mask(workflow.FullView(audit.Flags, waterfall, policy), tierFor(c), policy)
		c.JSON(http.StatusOK, gin.H{"id": audit.ID, "status": audit.Status, "result": view})
	}
}

func saveAuditHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId, _ := utils.GetUserIdFromContext(c.Request.Context())
		idemToken := c.GetHeader("Idempotency-Key")

		audit, err := workflow.SaveAudit(c.Request.Context(), lifecycleDeps(), userId, c.Param("id"), idemToken)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": audit.ID, "status": audit.Status})
	}
}

func cloneAuditHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clone, err := workflow.CloneAudit(c.Request.Context(), lifecycleDeps(), c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": clone.ID, "status": clone.Status, "clonedFromId": clone.ClonedFromId, "lineItemCount": len(clone.LineItems)})
	}
}

func deleteAuditHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := workflow.DeleteAudit(c.Request.Context(), lifecycleDeps(), c.Param("id")); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// exportAuditHandler streams the full waterfall workbook. The waterfall is
// gated data: free tier gets a 403 here, the same decision Mask makes for the
// JSON view.
func exportAuditHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tier := tierFor(c)
		if !tier.Unmasked() {
			c.JSON(http.StatusForbidden, gin.H{"error": "exporting the full breakdown requires a premium subscription"})
			return
		}

		deps := lifecycleDeps()
		view, audit, err := workflow.AuditView(c.Request.Context(), deps, c.Param("id"), tier)
		if err != nil {
			abortWithError(c, err)
			return
		}

		f, err := reports.BuildWaterfallWorkbook(audit, view.Waterfall)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="pay-audit-%02d-%d.xlsx"`, audit.Month, audit.Year))
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		if err := f.Write(c.Writer); err != nil {
			config.LogError(config.GetLogger(), "server.go", "exportAuditHandler", "streaming workbook", nil, err)
		}
	}
}

func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		for _, ginErr := range c.Errors {
			config.LogError(logger, "server.go", c.FullPath(), "gin", nil, ginErr.Err)
		}
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
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
	// Until DB/Redis are ready, we return 503 for app endpoints.
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
		if config.GetDB() == nil {
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
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "Idempotency-Key")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Optional burst limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
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
		rateLimiter := NewRateLimiter(limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/api/v1", middlewares.RequireAuth())
	api.POST("/audits/compute", computeHandler())
	api.POST("/audits", createAuditHandler())
	api.GET("/audits/:id", getAuditHandler())
	api.PUT("/audits/:id/line-items", replaceLineItemsHandler())
	api.POST("/audits/:id/recompute", recomputeHandler())
	api.POST("/audits/:id/save", saveAuditHandler())
	api.POST("/audits/:id/clone", cloneAuditHandler())
	api.DELETE("/audits/:id", deleteAuditHandler())
	api.GET("/audits/:id/export", exportAuditHandler())

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
		if err := models.MigrateDatabase(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Error("migration failed: " + err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<minInt(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	log.Println("Server started successfully on port " + port)

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

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

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
