package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/musikai/musikd/internal/repositories"
	"github.com/musikai/musikd/internal/server"
	"github.com/musikai/musikd/internal/services"
	"github.com/musikai/musikd/internal/shared"
	"github.com/musikai/musikd/internal/tasks"
)

const shutdownTimeout = 10 * time.Second

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config *shared.Config
	logger *log.Logger
	output io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *shared.Config
	Logger *log.Logger
	Output io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config: opts.Config,
		logger: opts.Logger,
		output: opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Serve starts the HTTP API and blocks until SIGINT/SIGTERM.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.config
	if err := config.Validate(); err != nil {
		return err
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if err := repositories.Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	sessionRepo := repositories.NewSessionRepository(db)
	accessRepo := repositories.NewAccessRequestRepository(db)

	sessions := server.NewSessionManager(config, sessionRepo, r.logger)
	enumerator := services.NewYouTubeService(config.Credentials.YouTube.APIKey, nil, "")
	recommender := services.NewGroqService(config.Credentials.Groq.APIKey, config.Credentials.Groq.Model, nil, "")

	var notifier services.Notifier
	if config.Credentials.Resend.APIKey != "" {
		notifier = services.NewResendService(
			config.Credentials.Resend.APIKey,
			config.Credentials.Resend.FromEmail,
			config.Credentials.Resend.AdminEmail,
			nil, "")
	} else {
		r.logger.Warn("resend api key not set, signup notifications disabled")
	}

	engine := tasks.NewEngine(enumerator, recommender, tasks.Options{
		Threshold:          config.Matcher.Threshold,
		Workers:            config.Matcher.Workers,
		RateLimit:          config.Matcher.RateLimit,
		MaxRecommendations: config.Recommendations.MaxResults,
	}, r.logger)

	router := server.NewBasicRouter()
	router.Use(
		server.RecoveryMiddleware(r.logger),
		server.LoggingMiddleware(r.logger),
		server.CORSMiddleware(config.Server.FrontendURL),
	)
	router.Handler(server.NewOAuthHandler(sessions, config.Server.FrontendURL, r.logger))
	router.Handler(server.NewConversionAPI(sessions, engine, notifier, accessRepo, r.logger))

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		r.logger.Info("server listening", "addr", addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	r.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	return nil
}

// SetupDatabase initializes the database file and applies migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	config := r.config
	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		}
	}
	if loaded, err := shared.LoadConfig(configPath); err == nil {
		config = loaded
	}

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if err := repositories.Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	return nil
}
