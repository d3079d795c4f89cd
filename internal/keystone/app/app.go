package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/internal/keystone/events"
	"github.com/aussiebroadwan/keystone/internal/keystone/graphql"
	httpapi "github.com/aussiebroadwan/keystone/internal/keystone/http"
	"github.com/aussiebroadwan/keystone/internal/keystone/mail"
	"github.com/aussiebroadwan/keystone/internal/keystone/metrics"
	"github.com/aussiebroadwan/keystone/internal/keystone/service"
	"github.com/aussiebroadwan/keystone/internal/keystone/session"
	"github.com/aussiebroadwan/keystone/internal/keystone/store/drivers/sqlstore"
	"github.com/aussiebroadwan/keystone/internal/keystone/transport"
	"github.com/aussiebroadwan/keystone/pkg/cryptox"
	"github.com/aussiebroadwan/keystone/pkg/jwtx"
	"github.com/aussiebroadwan/keystone/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

// BuildVersion is overridden at build time via -ldflags "-X ...app.BuildVersion=...".
var BuildVersion = "v0.1.0"

// Application encapsulates the keystone service with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger
	clock  clockwork.Clock

	// Core dependencies
	db       *sqlstore.Store
	codec    *jwtx.Codec
	sessions *session.Authenticator
	metrics  *metrics.Metrics

	// Side channels
	hub       *events.Hub
	publisher events.Publisher
	mailer    *mail.Dispatcher
	amqp      *mail.AMQPSender // Optional: only with MAIL_DRIVER=amqp

	// Services
	authService         *service.AuthService
	userService         *service.UserService
	analyticsService    *service.AnalyticsService
	bootstrapService    *service.BootstrapService
	housekeepingService *service.HousekeepingService
	recorder            *service.RequestRecorder
	activity            *service.ActivityTracker

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := slogx.New(slogx.Config{
		Service: "keystone",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		File:    cfg.LogFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	app := &Application{
		cfg:     cfg,
		logger:  logger,
		clock:   clockwork.NewRealClock(),
		metrics: metrics.New(),
		hub:     events.NewHub(),
	}

	// Initialize database first; everything else reads from it
	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.codec, err = InitCodec(cfg, app.clock, logger)
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}

	if err := app.initSideChannels(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	if err := app.initServices(); err != nil {
		app.closeSideChannels()
		_ = app.db.Close()
		return nil, err
	}
	if err := app.initHTTP(); err != nil {
		app.closeSideChannels()
		_ = app.db.Close()
		return nil, err
	}

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.recorder.Start()
	app.housekeepingService.Start()

	app.logger.Info("keystone starting", "port", app.cfg.Port, "version", BuildVersion, "database", app.db.Driver())

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		// Perform graceful shutdown
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down keystone...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server. Hijacked WebSocket connections are not
	// tracked by Shutdown; closing the hub ends their subscriptions.
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Drain background writers before the database goes away
	app.recorder.Stop()
	app.housekeepingService.Stop()
	app.activity.Wait()
	app.closeSideChannels()

	// Close database connection
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("keystone stopped")
	return nil
}

// initDatabase opens the configured driver and applies migrations
func (app *Application) initDatabase() error {
	driver := sqlstore.Driver(app.cfg.DatabaseDriver)
	dsn := app.cfg.DatabaseURL
	if driver == sqlstore.DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sqlstore.Open(context.Background(), driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", driver)
	return nil
}

// sqliteDSN turns a bare file path into a DSN with WAL and a busy timeout.
func sqliteDSN(path string) string {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
}

// initSideChannels wires mail delivery and event publishing.
func (app *Application) initSideChannels() error {
	var sender mail.Sender = mail.LogSender{Logger: app.logger}
	if app.cfg.MailDriver == "amqp" {
		s, err := mail.DialAMQP(app.cfg.AMQPURL, app.cfg.MailQueue)
		if err != nil {
			return fmt.Errorf("failed to connect mail queue: %w", err)
		}
		app.amqp = s
		sender = s
		app.logger.Info("mail delivery via amqp", "queue", app.cfg.MailQueue)
	}
	app.mailer = mail.NewDispatcher(sender, app.logger)

	pubs := events.Multi{app.hub}
	if app.cfg.KafkaBrokers != "" {
		pubs = append(pubs, events.NewKafkaPublisher(app.cfg.KafkaBrokers, app.cfg.KafkaTopic))
		app.logger.Info("auth events published to kafka", "topic", app.cfg.KafkaTopic)
	}
	app.publisher = pubs
	return nil
}

func (app *Application) closeSideChannels() {
	if app.mailer != nil {
		app.mailer.Close()
	}
	if app.amqp != nil {
		if err := app.amqp.Close(); err != nil {
			app.logger.Error("error closing mail queue", "error", err)
		}
	}
	if app.publisher != nil {
		if err := app.publisher.Close(); err != nil {
			app.logger.Error("error closing event publishers", "error", err)
		}
	}
}

// initServices initializes all business logic services
func (app *Application) initServices() error {
	pepper := app.cfg.PasswordPepper
	if pepper == "" {
		p, err := cryptox.LoadOrGeneratePepper(app.cfg.PepperFile)
		if err != nil {
			return fmt.Errorf("failed to load pepper: %w", err)
		}
		pepper = p
	}
	hasher := cryptox.NewHasher(pepper)

	renewals := service.RenewalEvents(app.publisher, app.clock, app.logger)
	sessions, err := session.NewAuthenticator(session.Config{
		Codec:           app.codec,
		Users:           app.db.Users(),
		Clock:           app.clock,
		RevocationCheck: app.cfg.RevocationCheck,
		OnOutcome: func(t domain.Transport, o session.Outcome) {
			app.metrics.ObserveAuth(t, o)
			renewals(t, o)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize authenticator: %w", err)
	}
	app.sessions = sessions

	renderer, err := mail.NewRenderer(app.cfg.MailFrom, app.cfg.PublicBaseURL)
	if err != nil {
		return fmt.Errorf("failed to load mail templates: %w", err)
	}

	app.authService = &service.AuthService{
		Store:           app.db,
		Sessions:        sessions,
		Hasher:          hasher,
		Clock:           app.clock,
		Events:          app.publisher,
		Mailer:          app.mailer,
		Mail:            renderer,
		MaxFailedLogins: app.cfg.MaxFailedLogins,
	}
	app.userService = &service.UserService{
		Store:  app.db,
		Clock:  app.clock,
		Events: app.publisher,
	}
	app.bootstrapService = &service.BootstrapService{
		Store:  app.db,
		Hasher: hasher,
		Clock:  app.clock,
		Token:  app.cfg.BootstrapToken,
	}

	app.recorder = service.NewRequestRecorder(app.db, app.logger, service.RecorderOptions{
		Clock:  app.clock,
		OnDrop: app.metrics.RequestLogDropped,
	})
	app.analyticsService = &service.AnalyticsService{
		Store:    app.db,
		Clock:    app.clock,
		Runtime:  app.metrics,
		Live:     app.hub,
		Recorder: app.recorder,
	}
	app.activity = service.NewActivityTracker(app.db.Users(), app.clock, 0)

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.AnalyticsRetention,
	)

	if app.cfg.BootstrapToken != "" {
		app.logger.Info("bootstrap endpoint enabled")
	}
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() error {
	adapter := transport.NewHTTPAdapter(app.sessions, transport.CookieConfig{
		Domain: app.cfg.CookieDomain,
		Secure: app.cfg.CookieSecure,
		Clock:  app.clock,
	}, app.activity)

	router := httpapi.NewRouter(
		adapter,
		app.codec,
		BuildVersion,
		app.db,
		app.clock,
		app.logger,
	)

	// Wire services to router
	router.AuthService = app.authService
	router.UserService = app.userService
	router.AnalyticsService = app.analyticsService
	router.BootstrapService = app.bootstrapService
	router.Recorder = app.recorder
	router.Metrics = app.metrics

	schema, err := graphql.NewSchema(&graphql.Resolver{
		Auth:     app.authService,
		Users:    app.userService,
		Sessions: app.sessions,
		Hub:      app.hub,
	})
	if err != nil {
		return fmt.Errorf("failed to load graphql schema: %w", err)
	}
	router.GraphQL = schema
	router.WSAdapter = transport.NewWSAdapter(app.sessions, app.activity)
	router.WSOptions = graphql.WSOptions{
		OriginPatterns:     app.cfg.WSOrigins,
		InsecureSkipVerify: app.cfg.IsDev(),
	}
	router.Limits = app.cfg.RateLimits
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
	return nil
}
