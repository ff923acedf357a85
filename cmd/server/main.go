// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	_ "unilog-service/docs"
	"unilog-service/internal/config"
	"unilog-service/internal/database"
	"unilog-service/internal/driver"
	"unilog-service/internal/handler"
	"unilog-service/internal/publisher"
	"unilog-service/internal/repository"
	"unilog-service/internal/routes"
	"unilog-service/internal/service"
	"unilog-service/internal/setup"
	"unilog-service/internal/utils"
)

const (
	operationRetention = 30 * 24 * time.Hour
	cleanupInterval    = time.Hour
	shutdownTimeout    = 30 * time.Second
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB

	// background work stops when ctx is cancelled
	ctx    context.Context
	cancel context.CancelFunc

	// Services
	deviceService      *service.DeviceService
	acquisitionService *service.AcquisitionService
	operationService   *service.OperationService
	sessionService     *service.SessionService
	discoveryService   *service.DiscoveryService

	// Repositories
	deviceRepo    repository.DeviceRepository
	sessionRepo   repository.SessionRepository
	operationRepo repository.OperationRepository

	// Driver registry
	driverRegistry *driver.Registry

	// Event fan-out
	eventBus  *handler.EventBus
	mqtt      *publisher.MQTTPublisher
	wsHandler *handler.WebSocketHandler
}

// @title UniLog Service API
// @version 1.0.0
// @description Register UniLog and UniLog2 data loggers, stream live measurements, download logger memory and manage stored sessions

// @host localhost:8084
// @BasePath /api/v1
func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer utils.LogPanic(app.logger)

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "unilog-service")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	app := &Application{
		config: cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initializeStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initializeDriverRegistry(); err != nil {
		return nil, fmt.Errorf("failed to initialize driver registry: %w", err)
	}

	if err := app.initializeEvents(); err != nil {
		return nil, fmt.Errorf("failed to initialize event publishing: %w", err)
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initializeServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return app, nil
}

// initializeStorage opens postgres and runs migrations, or falls back to
// the in-memory store
func (app *Application) initializeStorage() error {
	if !app.config.UsePostgres() {
		store := repository.NewMemoryStore()
		app.deviceRepo = store.Devices()
		app.sessionRepo = store.Sessions()
		app.operationRepo = store.Operations()
		app.logger.Info("Using in-memory storage")
		return nil
	}

	db, err := database.NewConnection(&app.config.Database, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	migrator := database.NewMigrator(db, app.logger, &app.config.Database)
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	app.deviceRepo = repository.NewDeviceRepository(db, app.logger)
	app.sessionRepo = repository.NewSessionRepository(db, app.logger)
	app.operationRepo = repository.NewOperationRepository(db, app.logger)

	app.logger.Info("Database initialized successfully")
	return nil
}

// initializeDriverRegistry sets up the logger driver registry
func (app *Application) initializeDriverRegistry() error {
	app.driverRegistry = driver.NewRegistry(app.logger)
	driver.RegisterDefaultDrivers(app.driverRegistry, app.logger)

	app.logger.Info("Driver registry initialized successfully",
		zap.Int("registered_drivers", len(app.driverRegistry.ListDrivers())),
	)
	return nil
}

// initializeEvents creates the event bus and the optional MQTT publisher
func (app *Application) initializeEvents() error {
	app.eventBus = handler.NewEventBus(app.config.Acquisition.SampleBuffer, app.logger)

	if !app.config.MQTT.Enabled {
		return nil
	}
	mqtt, err := publisher.NewMQTTPublisher(&app.config.MQTT, app.logger)
	if err != nil {
		return err
	}
	app.mqtt = mqtt
	app.logger.Info("MQTT publisher connected", zap.String("broker", app.config.MQTT.Broker))
	return nil
}

// sink returns the event sink shared by the services
func (app *Application) sink() service.EventSink {
	if app.mqtt == nil {
		return app.eventBus
	}
	return service.MultiSink{app.eventBus, app.mqtt}
}

// initializeServices creates service instances
func (app *Application) initializeServices() error {
	drivers := service.NewRegistryProvider(app.driverRegistry, &app.config.Acquisition, app.logger)
	locks := service.NewPortLocks()
	sink := app.sink()

	files, err := setup.NewFileStore(afero.NewOsFs(), app.config.Storage.ConfigDir, app.logger)
	if err != nil {
		return fmt.Errorf("failed to open configuration file store: %w", err)
	}

	app.deviceService = service.NewDeviceService(
		app.deviceRepo,
		drivers,
		locks,
		app.config,
		app.logger,
	)

	app.acquisitionService = service.NewAcquisitionService(
		app.deviceRepo,
		app.sessionRepo,
		app.operationRepo,
		drivers,
		locks,
		sink,
		app.config,
		app.logger,
	)

	app.operationService = service.NewOperationService(
		app.deviceRepo,
		app.sessionRepo,
		app.operationRepo,
		drivers,
		locks,
		files,
		sink,
		app.config,
		app.logger,
	)

	app.sessionService = service.NewSessionService(
		app.sessionRepo,
		app.deviceRepo,
		service.CalculationParams(&app.config.Calculation),
		app.logger,
	)

	app.discoveryService = service.NewDiscoveryService(
		app.deviceRepo,
		app.deviceService,
		drivers,
		locks,
		app.config,
		app.logger,
	)

	app.logger.Info("Services initialized successfully")
	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() error {
	app.wsHandler = handler.NewWebSocketHandler(
		app.deviceService,
		app.acquisitionService,
		app.eventBus,
		app.config.Server.AllowedOrigins,
		app.config.Acquisition.SampleBuffer,
		app.logger,
	)

	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.database,
		routes.Services{
			Devices:     app.deviceService,
			Acquisition: app.acquisitionService,
			Operations:  app.operationService,
			Sessions:    app.sessionService,
			Discovery:   app.discoveryService,
		},
		app.wsHandler,
	)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      routerManager.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
	)
	return nil
}

// startBackgroundServices starts background services
func (app *Application) startBackgroundServices() {
	go app.eventBus.Start(app.ctx)
	go app.wsHandler.Run(app.ctx)
	if app.mqtt != nil {
		app.mqtt.Start(app.ctx)
	}
	go app.startCleanupService()

	app.logger.Info("Background services started")
}

// startCleanupService removes old operation records every hour
func (app *Application) startCleanupService() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	app.logger.Info("Cleanup service started", zap.Duration("retention", operationRetention))

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(app.ctx, 10*time.Minute)
			deleted, err := app.operationRepo.DeleteOldOperations(ctx, time.Now().Add(-operationRetention))
			cancel()
			if err != nil {
				app.logger.Error("Failed to cleanup old operations", zap.Error(err))
			} else if deleted > 0 {
				app.logger.Info("Cleaned up old operations", zap.Int64("deleted", deleted))
			}
		case <-app.ctx.Done():
			return
		}
	}
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown finalizes running live sessions, then stops the server and
// closes storage
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "unilog-service")
	serviceLogger.LogServiceStop("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.acquisitionService.Shutdown(ctx); err != nil {
		app.logger.Error("Live acquisition shutdown error", zap.Error(err))
	}

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	app.cancel()
	if app.mqtt != nil {
		app.mqtt.Close()
	}

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		} else {
			app.logger.Info("Database connection closed")
		}
	}

	app.logger.Info("Application shutdown completed")
	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

// Start serves HTTP until a shutdown signal arrives
func (app *Application) Start() error {
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	app.startBackgroundServices()
	app.waitForShutdown()

	return nil
}
