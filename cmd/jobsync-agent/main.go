package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/servifast/jobsync/internal/api"
	"github.com/servifast/jobsync/internal/auth"
	"github.com/servifast/jobsync/internal/config"
	"github.com/servifast/jobsync/internal/domain"
	"github.com/servifast/jobsync/internal/lifecycle"
	"github.com/servifast/jobsync/internal/ops"
	"github.com/servifast/jobsync/internal/scope"
	"github.com/servifast/jobsync/internal/store"
	"github.com/servifast/jobsync/internal/transport"
	"github.com/servifast/jobsync/shared/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("JOBSYNC_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/jobsync-agent/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting sync agent",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("role", cfg.Backend.Role),
	)

	token := auth.EnvSource{Var: cfg.Backend.TokenEnv}

	// Initialize the backend REST client
	client, err := api.NewClient(&api.Config{
		BaseURL: cfg.Backend.BaseURL,
		Token:   token,
		Timeout: cfg.Backend.RequestTimeout,
		Logger:  appLogger.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize backend client: %w", err)
	}

	// Initialize the dashboard channel
	channel, err := transport.NewChannel(transport.Config{
		URL:           cfg.Backend.WebsocketURL,
		Token:         token,
		Logger:        appLogger.Logger,
		PingInterval:  cfg.Websocket.PingInterval,
		ConfirmWindow: cfg.Websocket.ConfirmWindow,
		Retry: transport.RetryPolicy{
			MinDelay:    cfg.Websocket.Dashboard.MinDelay,
			MaxDelay:    cfg.Websocket.Dashboard.MaxDelay,
			MaxFailures: cfg.Websocket.Dashboard.MaxFailures,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize dashboard channel: %w", err)
	}

	role := domain.Role(cfg.Backend.Role)
	jobStore := store.NewDashboardStore()

	dashboard, err := scope.NewDashboard(scope.DashboardConfig{
		Backend:      client,
		Channel:      channel,
		Store:        jobStore,
		Role:         role,
		PollInterval: cfg.Poll.DashboardInterval,
		Logger:       appLogger.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize dashboard scope: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chats := scope.NewRegistry(ctx, chatFactory(cfg, client, token, appLogger.Logger), appLogger.Logger)

	go func() {
		if err := dashboard.Run(ctx); err != nil {
			appLogger.Error("Dashboard scope exited", slog.Any("error", err))
		}
	}()

	// Initialize router
	r := initRouter(cfg.App.Environment, &ops.Dependencies{
		Controller: lifecycle.NewController(client, jobStore, role, appLogger.Logger),
		Directory:  client,
		Store:      jobStore,
		Channel:    channel,
		Chats:      chats,
		Logger:     appLogger.Logger,
	})

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("Sync agent is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
	}

	// Stop the sync scopes after the HTTP surface is gone
	chats.CloseAll()
	cancel()
	channel.Close()
	jobStore.Close()

	appLogger.Info("Shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// chatFactory builds one chat scope per opened conversation, each with its
// own websocket channel against the chat endpoint.
func chatFactory(cfg *config.Config, client *api.Client, token auth.TokenSource, log *slog.Logger) scope.ChatFactory {
	return func(jobID int64, applicationID *int64) (*scope.Chat, error) {
		channel, err := transport.NewChannel(transport.Config{
			URL:           chatSocketURL(cfg.Backend.BaseURL, jobID, applicationID),
			Token:         token,
			Logger:        log,
			PingInterval:  cfg.Websocket.PingInterval,
			ConfirmWindow: cfg.Websocket.ConfirmWindow,
			Retry: transport.RetryPolicy{
				MinDelay:    cfg.Websocket.Chat.MinDelay,
				MaxDelay:    cfg.Websocket.Chat.MaxDelay,
				MaxFailures: cfg.Websocket.Chat.MaxFailures,
			},
		})
		if err != nil {
			return nil, err
		}

		return scope.NewChat(scope.ChatConfig{
			Backend:       client,
			Channel:       channel,
			Store:         store.NewChatStore(jobID, applicationID),
			JobID:         jobID,
			ApplicationID: applicationID,
			PollInterval:  cfg.Poll.ChatInterval,
			Logger:        log,
		})
	}
}

// chatSocketURL derives the chat websocket endpoint from the REST base URL.
// The application id scopes the socket to one conversation; without it the
// backend picks a conversation on its own.
func chatSocketURL(base string, jobID int64, applicationID *int64) string {
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	endpoint := fmt.Sprintf("%s/api/chat/ws/%d", strings.TrimRight(base, "/"), jobID)
	if applicationID != nil {
		endpoint += fmt.Sprintf("?application_id=%d", *applicationID)
	}
	return endpoint
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, deps *ops.Dependencies) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return ops.SetupRouter(deps)
}
