// Package api wires together all HTTP routes for the manuscript vault.
//
// Route grouping:
//   - Reader routes (/api/v1/...) are unauthenticated. Access is gated by book
//     passwords and signed download tokens, and the password endpoints carry a
//     stricter per-IP rate limit than the rest of the public surface.
//   - Staff routes (/api/v1/admin/...) always require a staff bearer token and
//     the appropriate scope. Successful mutations are written to audit_logs.
//   - /health and /ready are health check endpoints; Prometheus metrics are served on
//     their own port by cmd/server, not by this router.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/grendelpress/manuscript-vault/internal/api/admin"
	"github.com/grendelpress/manuscript-vault/internal/api/reader"
	"github.com/grendelpress/manuscript-vault/internal/audit"
	"github.com/grendelpress/manuscript-vault/internal/auth"
	"github.com/grendelpress/manuscript-vault/internal/clock"
	"github.com/grendelpress/manuscript-vault/internal/config"
	"github.com/grendelpress/manuscript-vault/internal/db/repositories"
	"github.com/grendelpress/manuscript-vault/internal/jobs"
	"github.com/grendelpress/manuscript-vault/internal/middleware"
	"github.com/grendelpress/manuscript-vault/internal/notify"
	"github.com/grendelpress/manuscript-vault/internal/services"
	"github.com/grendelpress/manuscript-vault/internal/storage"
	"github.com/grendelpress/manuscript-vault/internal/watermark"
)

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) starts them once
// the listener is up and calls Shutdown() when the process receives a
// termination signal.
type BackgroundServices struct {
	reminder     *jobs.AccessExpiryReminder
	shipper      audit.Shipper
	rateLimiters []middleware.Limiter
	cancel       context.CancelFunc
}

// Start launches the background jobs.
func (bg *BackgroundServices) Start(ctx context.Context) {
	ctx, bg.cancel = context.WithCancel(ctx)
	if bg.reminder != nil {
		go bg.reminder.Start(ctx)
	}
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.cancel != nil {
		bg.cancel()
		if bg.reminder != nil {
			bg.reminder.Stop()
		}
	}
	for _, l := range bg.rateLimiters {
		if s, ok := l.(interface{ Stop() }); ok {
			s.Stop()
		}
	}
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Error("failed to close audit shipper", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router. rdb is optional; when nil the
// rate limiters keep their counters in process memory.
func NewRouter(cfg *config.Config, db *sqlx.DB, buckets *storage.Buckets, rdb *redis.Client) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()
	now := clock.Clock(clock.System)

	// Repositories
	bookRepo := repositories.NewBookRepository(db)
	credentialRepo := repositories.NewCredentialRepository(db)
	requestRepo := repositories.NewAccessRequestRepository(db)
	signupRepo := repositories.NewSignupRepository(db)
	downloadRepo := repositories.NewDownloadRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	// Collaborators
	notifier := notify.New(&cfg.Notifications)
	shipper, err := audit.NewMultiShipper(cfg.Audit.Shippers)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize audit shippers: %w", err)
	}
	codec, err := auth.NewDownloadTokenCodec(cfg.DownloadToken.Secret, cfg.DownloadToken.Issuer, cfg.DownloadToken.TTL, now)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize download tokens: %w", err)
	}
	staffTokens := auth.NewStaffTokenValidator(cfg.StaffAuth.JWTSecret, cfg.StaffAuth.Issuer, now)
	masters := storage.NewMasterCache(buckets.Masters, cfg.Cache.Masters.Size, cfg.Cache.Masters.TTL)
	maxMasterSize := int64(cfg.Storage.MaxMasterSizeMB) * 1024 * 1024

	// Services
	verifier := services.NewVerificationService(bookRepo, credentialRepo, requestRepo, now)
	requestService := services.NewAccessRequestService(bookRepo, requestRepo, notifier, shipper, &cfg.Access, now)
	signupService := services.NewSignupService(bookRepo, requestRepo, signupRepo, verifier, codec, cfg.Server.GetPublicURL(), now)
	downloadService := services.NewDownloadService(codec, bookRepo, signupRepo, downloadRepo, masters, watermark.NewRenderer(), shipper, now)
	passwordService := services.NewPasswordService(bookRepo, credentialRepo, shipper, cfg.Access.BcryptCost, now)
	bookService := services.NewBookService(bookRepo, buckets, masters, shipper, maxMasterSize, now)

	bg := &BackgroundServices{
		reminder: jobs.NewAccessExpiryReminder(requestRepo, notifier, &cfg.Access, now),
		shipper:  shipper,
	}

	// Rate limiters; with Redis configured the counters are shared across replicas
	rateLimit := func(prefix string, rlc middleware.RateLimitConfig) gin.HandlerFunc {
		if !cfg.Security.RateLimiting.Enabled {
			return func(c *gin.Context) { c.Next() }
		}
		limiter := middleware.NewLimiter(rdb, prefix, rlc)
		bg.rateLimiters = append(bg.rateLimiters, limiter)
		return middleware.RateLimitMiddleware(limiter)
	}
	generalLimit := rateLimit("general", middleware.RateLimitConfigFrom(&cfg.Security.RateLimiting))
	passwordLimit := rateLimit("password", middleware.PasswordRateLimitConfig(cfg.Security.RateLimiting.PasswordAttemptsPerMinute))
	uploadLimit := rateLimit("upload", middleware.UploadRateLimitConfig())

	// A typed nil would make the middleware think it has a writer
	var auditWriter middleware.AuditWriter
	if cfg.Audit.Enabled {
		auditWriter = auditRepo
	}

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLoggerMiddleware("/health", "/ready"))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	router.GET("/health", healthCheckHandler(db.DB))
	router.GET("/ready", readinessHandler(db.DB, buckets))

	// Covers are served by the API only for local storage with ServeDirectly;
	// the URL shape matches LocalStorage.GetURL.
	if cfg.Storage.DefaultBackend == "local" && cfg.Storage.Local.ServeDirectly {
		router.GET("/files/"+cfg.Storage.Buckets.Covers+"/*key",
			middleware.SecurityHeadersMiddleware(middleware.CoverSecurityHeadersConfig()),
			reader.ServeCoverHandler(buckets.Covers))
	}

	readerHandlers := reader.NewHandlers(requestService, verifier, signupService, downloadService, bookService)
	requestHandlers := admin.NewRequestHandlers(requestService)
	passwordHandlers := admin.NewPasswordHandlers(passwordService)
	downloadHandlers := admin.NewDownloadHandlers(downloadService)
	signupHandlers := admin.NewSignupHandlers(signupService)
	bookHandlers := admin.NewBookHandlers(bookService, maxMasterSize)
	auditHandlers := admin.NewAuditLogHandlers(auditRepo)

	apiV1 := router.Group("/api/v1")
	{
		// Reader endpoints
		publicGroup := apiV1.Group("")
		publicGroup.Use(generalLimit)
		{
			publicGroup.GET("/books/:slug", readerHandlers.GetBookHandler())
			publicGroup.POST("/access-requests", readerHandlers.SubmitAccessRequestHandler())
		}

		// Password-checking endpoints get the stricter limit
		passwordGroup := apiV1.Group("")
		passwordGroup.Use(passwordLimit)
		{
			passwordGroup.POST("/verify-password", readerHandlers.VerifyPasswordHandler())
			passwordGroup.POST("/signup", readerHandlers.SignupHandler())
		}

		downloadGroup := apiV1.Group("")
		downloadGroup.Use(generalLimit)
		downloadGroup.Use(middleware.SecurityHeadersMiddleware(middleware.DownloadSecurityHeadersConfig()))
		{
			downloadGroup.GET("/download", readerHandlers.DownloadHandler())
		}

		// Staff endpoints
		adminGroup := apiV1.Group("/admin")
		adminGroup.Use(middleware.StaffAuth(staffTokens))
		adminGroup.Use(generalLimit)
		adminGroup.Use(middleware.AuditMiddleware(auditWriter))
		{
			requestsGroup := adminGroup.Group("/access-requests")
			{
				requestsGroup.GET("", middleware.RequireScope(auth.ScopeRequestsRead), requestHandlers.ListRequestsHandler())
				requestsGroup.GET("/pending-count", middleware.RequireScope(auth.ScopeRequestsRead), requestHandlers.PendingCountHandler())
				requestsGroup.POST("/:id/resolve", middleware.RequireScope(auth.ScopeRequestsResolve), requestHandlers.ResolveRequestHandler())
			}

			adminGroup.GET("/books",
				middleware.RequireAnyScope(auth.ScopeBooksManage, auth.ScopePasswordsManage, auth.ScopeRequestsRead, auth.ScopeDownloadsRead),
				bookHandlers.ListBooksHandler())
			adminGroup.PUT("/books/:id/masters/:format",
				middleware.RequireScope(auth.ScopeBooksManage),
				uploadLimit, // Stricter rate limit for uploads
				bookHandlers.UploadMasterHandler())
			adminGroup.PUT("/books/:id/cover",
				middleware.RequireScope(auth.ScopeBooksManage),
				uploadLimit,
				bookHandlers.UploadCoverHandler())

			adminGroup.GET("/books/:id/passwords", middleware.RequireScope(auth.ScopePasswordsManage), passwordHandlers.ListPasswordsHandler())
			adminGroup.POST("/books/:id/passwords", middleware.RequireScope(auth.ScopePasswordsManage), passwordHandlers.CreatePasswordHandler())
			adminGroup.PUT("/passwords/:id", middleware.RequireScope(auth.ScopePasswordsManage), passwordHandlers.UpdatePasswordHandler())
			adminGroup.POST("/passwords/:id/deactivate", middleware.RequireScope(auth.ScopePasswordsManage), passwordHandlers.DeactivatePasswordHandler())

			adminGroup.GET("/books/:id/downloads", middleware.RequireScope(auth.ScopeDownloadsRead), downloadHandlers.ListDownloadsHandler())
			adminGroup.GET("/downloads/trace/:wmid", middleware.RequireScope(auth.ScopeDownloadsRead), downloadHandlers.TraceHandler())
			adminGroup.GET("/books/:id/signups/export", middleware.RequireScope(auth.ScopeDownloadsRead), signupHandlers.ExportSignupsHandler())

			adminGroup.GET("/audit-logs", middleware.RequireScope(auth.ScopeAuditRead), auditHandlers.ListAuditLogsHandler())
		}
	}

	return router, bg, nil
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessCheckKey is never written; Exists on it exercises credentials and
// connectivity without creating state.
const readinessCheckKey = ".readiness-check"

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the database and both storage buckets.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness check (/health), this also checks the storage buckets so
// that a readiness gate fails when downloads or uploads would error.
func readinessHandler(db *sql.DB, buckets *storage.Buckets) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		checks := gin.H{}

		if err := db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		for name, bucket := range map[string]storage.Storage{"masters": buckets.Masters, "covers": buckets.Covers} {
			if _, err := bucket.Exists(ctx, readinessCheckKey); err != nil {
				slog.WarnContext(ctx, "storage readiness check failed", "bucket", name, "error", err)
				checks["storage_"+name] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "storage backend not ready",
				})
				return
			}
			checks["storage_"+name] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// CORSMiddleware handles CORS for the reader site and the staff dashboard. Only
// configured origins are echoed back; the download response headers the reader
// site reads are exposed explicitly.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := "GET, POST, PUT, OPTIONS"
	if len(cfg.Security.CORS.AllowedMethods) > 0 {
		methods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID")
			c.Header("Access-Control-Expose-Headers", "Content-Disposition, X-Watermark-ID, X-Request-ID")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
