package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/dhawalhost/authgate/internal/authz"
	"github.com/dhawalhost/authgate/internal/directory"
	"github.com/dhawalhost/authgate/internal/policy"
	"github.com/dhawalhost/authgate/pkg/database"
	"github.com/dhawalhost/authgate/pkg/logger"
	"github.com/dhawalhost/authgate/pkg/middleware"
	"github.com/dhawalhost/authgate/pkg/observability"
)

const serviceName = "authgate"

func main() {
	level := zapcore.InfoLevel
	if lvl := os.Getenv("AUTHGATE_LOG_LEVEL"); lvl != "" {
		if err := level.Set(lvl); err != nil {
			level = zapcore.InfoLevel
		}
	}
	log, err := logger.New(level)
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName:    serviceName,
		ServiceVersion: envOr("AUTHGATE_VERSION", "dev"),
		Environment:    envOr("AUTHGATE_ENV", "development"),
	}, log)
	if err != nil {
		log.Fatal("failed to initialize tracing", zap.Error(err))
	}

	db, err := database.NewConnection(database.Config{
		Host:     envOr("DB_HOST", "localhost"),
		Port:     envIntOr("DB_PORT", 5432),
		User:     envOr("DB_USER", "authgate"),
		Password: envOr("DB_PASSWORD", "authgate"),
		DBName:   envOr("DB_NAME", "authgate"),
		SSLMode:  envOr("DB_SSLMODE", "disable"),
	})
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	rootOrg := envOr("AUTHGATE_ROOT_ORG", "ROOT")
	tx := database.NewTransactor(db)

	policySvc := policy.NewService(policy.NewStore(db), tx)
	directorySvc := directory.NewService(directory.NewStore(db), tx)
	authzSvc := authz.NewService(authz.NewStore(db), rootOrg)

	metrics := observability.NewMetrics()
	guard := authz.NewGuard(authzSvc, log)

	gin.SetMode(envOr("GIN_MODE", gin.ReleaseMode))
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.PrometheusMiddleware(metrics))
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.RateLimitMiddleware(
		rate.Limit(envIntOr("AUTHGATE_RATE_LIMIT", 100)),
		envIntOr("AUTHGATE_RATE_BURST", 200),
	))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{envOr("AUTHGATE_CORS_ORIGIN", "*")},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowHeaders:     []string{"Content-Type", middleware.DefaultUserHeader, middleware.DefaultOrgHeader},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(observability.PrometheusHandler()))

	api := router.Group("/")
	api.Use(middleware.Identity(middleware.IdentityConfig{}))
	authz.NewHTTPHandler(authzSvc, metrics, log).RegisterRoutes(api, guard)
	policy.NewHTTPHandler(policySvc, log).RegisterRoutes(api, guard)
	directory.NewHTTPHandler(directorySvc, log).RegisterRoutes(api, guard)

	srv := &http.Server{
		Addr:              envOr("AUTHGATE_ADDR", ":8080"),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr), zap.String("root_org", rootOrg))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error("tracer shutdown failed", zap.Error(err))
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
