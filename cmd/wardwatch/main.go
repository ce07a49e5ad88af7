package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"wardwatch/internal/handlers"
	"wardwatch/internal/manager"
	"wardwatch/internal/middleware"
	"wardwatch/internal/utils"
	"wardwatch/internal/version"
)

const (
	envPort      = "WARDWATCH_PORT"
	envDataDir   = "WARDWATCH_DATA_DIR"
	envUseTLS    = "WARDWATCH_USE_TLS"
	envTLSCert   = "WARDWATCH_TLS_CERT"
	envTLSKey    = "WARDWATCH_TLS_KEY"
	envLogLevel  = "WARDWATCH_LOG_LEVEL"
	envLogFormat = "WARDWATCH_LOG_FORMAT"
)

type App struct {
	tokens       *middleware.TokenService
	clients      *manager.ClientStore
	users        *manager.UserStore
	patients     *manager.PatientStore
	telemetry    *manager.Telemetry
	colourHub    *middleware.Hub
	detectionHub *middleware.Hub
	rateLimiter  *middleware.RateLimiter
	logger       *zap.Logger
}

func envBool(key string) bool {
	val := os.Getenv(key)
	if val == "" {
		return false
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return false
	}
	return parsed
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger, err := utils.NewLogger(envOr(envLogLevel, "info"), envOr(envLogFormat, "json"), "wardwatch")
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	dataDir := envOr(envDataDir, "data")
	app := &App{
		tokens:       middleware.NewTokenService(),
		clients:      manager.NewClientStore(filepath.Join(dataDir, "clients.json")),
		users:        manager.NewUserStore(filepath.Join(dataDir, "users.json")),
		patients:     manager.NewPatientStore(filepath.Join(dataDir, "patients.json")),
		telemetry:    manager.NewTelemetry(logger),
		colourHub:    middleware.NewHub(logger.Named("colour-hub")),
		detectionHub: middleware.NewHub(logger.Named("detection-hub")),
		rateLimiter:  middleware.NewRateLimiter(rate.Every(time.Minute/100), 10),
		logger:       logger,
	}

	if err := app.clients.Load(); err != nil {
		logger.Fatal("failed to load client store", zap.Error(err))
	}
	if err := app.users.Load(); err != nil {
		logger.Fatal("failed to load user store", zap.Error(err))
	}
	if err := app.patients.Load(); err != nil {
		logger.Fatal("failed to load patient directory", zap.Error(err))
	}
	if app.clients.IsEmpty() && app.users.IsEmpty() {
		logger.Warn("no credentials configured; use tools/credential_tool to add some")
	}

	app.telemetry.Start()

	r := setupRouter(app)

	srv := &http.Server{
		Addr:           ":" + envOr(envPort, "8000"),
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	tlsEnabled := envBool(envUseTLS)
	certPath, keyPath := os.Getenv(envTLSCert), os.Getenv(envTLSKey)
	if tlsEnabled && (certPath == "" || keyPath == "") {
		logger.Fatal("TLS enabled but cert or key not provided")
	}

	go func() {
		logger.Info("starting server",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", tlsEnabled),
			zap.String("version", version.String()),
		)
		var err error
		if tlsEnabled {
			err = srv.ListenAndServeTLS(certPath, keyPath)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	app.telemetry.Stop()
	app.rateLimiter.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
}

func setupRouter(app *App) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())

	authH := handlers.NewAuthHandlers(app.tokens, app.clients, app.users, app.logger)
	patientH := handlers.NewPatientHandlers(app.patients)
	liquidH := handlers.NewLiquidHandlers(app.colourHub, app.detectionHub, app.tokens, app.logger)
	healthH := handlers.NewHealthHandlers(app.telemetry)

	r.GET("/ping", healthH.Ping)
	r.GET("/health", healthH.Health)

	auth := r.Group("/auth")
	auth.Use(app.rateLimiter.Middleware())
	{
		auth.POST("/token", authH.IssueToken)
		auth.POST("/token-password", authH.IssuePasswordToken)
		auth.GET("/token-validate", app.tokens.RequireValid(), authH.ValidateToken)
	}

	patients := r.Group("/patients")
	patients.Use(app.tokens.RequireScope(middleware.ScopeRead))
	{
		patients.GET("/", patientH.List)
		patients.GET("/:room", patientH.ByRoom)
	}

	liquid := r.Group("/liquid")
	{
		liquid.POST("/colour", app.tokens.RequireScope(middleware.ScopeWrite), liquidH.PostColour)
		liquid.POST("/detected", app.tokens.RequireScope(middleware.ScopeWrite), liquidH.PostDetected)
		// Subscribe endpoints carry the token as a query parameter; the
		// handler enforces it before completing the upgrade.
		liquid.GET("/colour/subscribe", liquidH.SubscribeColour)
		liquid.GET("/detected/subscribe", liquidH.SubscribeDetected)
	}

	return r
}
