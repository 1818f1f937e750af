package api

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kubestellar/aks-console/pkg/api/handlers"
	"github.com/kubestellar/aks-console/pkg/api/middleware"
	"github.com/kubestellar/aks-console/pkg/azure"
	apperrors "github.com/kubestellar/aks-console/pkg/errors"
	"github.com/kubestellar/aks-console/pkg/k8s"
	"github.com/kubestellar/aks-console/pkg/session"
)

// Config holds server configuration
type Config struct {
	Port          int
	DevMode       bool
	JWTSecret     string
	FrontendURL   string
	AuthRateLimit float64
	AuthRateBurst int
	// ClusterTimeout bounds each call to a cluster API server
	ClusterTimeout time.Duration
	EnvFile        string
	LogLevel       string
	LogFile        string
}

// Services are the domain components the routes are served from.
type Services struct {
	Store    *session.Store
	Defaults handlers.DefaultsSource
	Clusters handlers.ClusterService
	Costs    handlers.CostReporter
}

// Server represents the API server
type Server struct {
	app      *fiber.App
	config   Config
	services Services
	hub      *handlers.Hub
	logger   *zap.Logger
}

// NewServer creates a new API server
func NewServer(cfg Config, services Services, logger *zap.Logger) (*Server, error) {
	if services.Store == nil {
		return nil, errors.New("session store is required")
	}
	if services.Clusters == nil || services.Costs == nil {
		return nil, errors.New("cluster and cost services are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          errorHandler(logger),
		DisableStartupMessage: !cfg.DevMode,
	})

	hub := handlers.NewHub(cfg.JWTSecret, logger.Named("ws"))
	go hub.Run()

	server := &Server{
		app:      app,
		config:   cfg,
		services: services,
		hub:      hub,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server, nil
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New())

	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "15:04:05",
	}))

	if s.config.FrontendURL != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins:     s.config.FrontendURL,
			AllowMethods:     "GET,POST,OPTIONS",
			AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
			AllowCredentials: true,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	auth := handlers.NewAuthHandler(handlers.AuthConfig{
		JWTSecret: s.config.JWTSecret,
		Store:     s.services.Store,
		Defaults:  s.services.Defaults,
		Clusters:  s.services.Clusters,
		Hub:       s.hub,
		Logger:    s.logger.Named("auth"),
	})
	limit, burst := s.config.AuthRateLimit, s.config.AuthRateBurst
	if limit <= 0 {
		limit = 1
	}
	if burst <= 0 {
		burst = 5
	}
	s.app.Post("/api/auth", middleware.RateLimit(rate.Limit(limit), burst), auth.Authenticate)
	s.app.Post("/api/logout", auth.Logout)

	api := s.app.Group("/api", middleware.SessionAuth(s.config.JWTSecret, s.services.Store))

	clusters := handlers.NewClusterHandler(s.services.Clusters, s.logger.Named("clusters"))
	api.Get("/aks-health", clusters.ListClusters)
	api.Get("/cluster/:resourceGroup/:name", clusters.GetClusterDetail)
	api.Get("/cluster/:resourceGroup/:name/events", clusters.GetEvents)
	api.Get("/cluster/:resourceGroup/:name/pod/:namespace/:pod/logs", clusters.GetPodLogs)

	costs := handlers.NewCostHandler(s.services.Costs)
	api.Get("/costs", costs.GetCosts)

	s.app.Use("/ws", middleware.WebSocketUpgrade())
	s.app.Get("/ws", websocket.New(s.hub.HandleConnection))
}

// Start starts the server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.logger.Info("starting server", zap.String("addr", addr), zap.Bool("dev", s.config.DevMode))
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	s.hub.Close()
	return s.app.ShutdownWithTimeout(10 * time.Second)
}

var authorizationPattern = regexp.MustCompile(`AuthorizationFailed|does not have authorization|403`)

// fallbackRemedy is used when the denial carries no remedy of its own.
func fallbackRemedy(path string) azure.Remedy {
	if strings.HasPrefix(path, "/api/costs") {
		return azure.CostRemedy("")
	}
	return azure.ReaderRemedy("")
}

func isAuthorizationDenial(err error) bool {
	if apperrors.Is(err, apperrors.ErrCodeAuthorization) {
		return true
	}
	var se *apperrors.StructuredError
	if errors.As(err, &se) {
		return false
	}
	return authorizationPattern.MatchString(err.Error())
}

func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}

		if isAuthorizationDenial(err) {
			log.Warn("authorization denied", zap.String("path", c.Path()), zap.Error(err))
			body := fiber.Map{"error": "AuthorizationFailed", "message": err.Error()}
			for k, v := range fallbackRemedy(c.Path()).Context() {
				if found, ok := apperrors.Lookup(err, k); ok {
					v = found
				}
				body[k] = v
			}
			return c.Status(fiber.StatusForbidden).JSON(body)
		}

		var se *apperrors.StructuredError
		if !errors.As(err, &se) {
			log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
		}

		status := apperrors.HTTPStatus(se.Code)
		var fetchErr *k8s.FetchError
		if se.Code == apperrors.ErrCodeFetch && errors.As(err, &fetchErr) && fetchErr.Status >= 400 {
			status = fetchErr.Status
		}
		if status >= fiber.StatusInternalServerError {
			log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		}

		body := fiber.Map{"error": se.Message, "code": se.Code}
		if se.Cause != nil {
			body["detail"] = se.Cause.Error()
		}
		for k, v := range se.Context {
			if _, taken := body[k]; !taken {
				body[k] = v
			}
		}
		return c.Status(status).JSON(body)
	}
}

// LoadConfigFromEnv loads configuration from environment variables
func LoadConfigFromEnv() Config {
	port := 5000
	if p := os.Getenv("PORT"); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	limit := 1.0
	if v, err := strconv.ParseFloat(os.Getenv("AUTH_RATE_LIMIT"), 64); err == nil && v > 0 {
		limit = v
	}
	burst := 5
	if v, err := strconv.Atoi(os.Getenv("AUTH_RATE_BURST")); err == nil && v > 0 {
		burst = v
	}
	timeout := k8s.DefaultTimeout
	if v, err := time.ParseDuration(os.Getenv("CLUSTER_TIMEOUT")); err == nil && v > 0 {
		timeout = v
	}

	return Config{
		Port:           port,
		DevMode:        os.Getenv("DEV_MODE") == "true",
		JWTSecret:      getEnvOrDefault("JWT_SECRET", generateDefaultSecret()),
		FrontendURL:    getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
		AuthRateLimit:  limit,
		AuthRateBurst:  burst,
		ClusterTimeout: timeout,
		EnvFile:        getEnvOrDefault("ENV_FILE", ".env"),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:        os.Getenv("LOG_FILE"),
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func generateDefaultSecret() string {
	// Stable in dev so tokens survive restarts; set JWT_SECRET in production.
	return "dev-secret-aks-console"
}
