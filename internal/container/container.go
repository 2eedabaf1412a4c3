// Package container wires the trip expense server: storage, security,
// services, the HTTP adapter and background workers, with ordered
// initialization and reverse-order teardown.
package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/trip-expense/internal/application/port"
	"github.com/garyjia/trip-expense/internal/application/service"
	"github.com/garyjia/trip-expense/internal/config"
	"github.com/garyjia/trip-expense/internal/infrastructure/metrics"
	"github.com/garyjia/trip-expense/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/trip-expense/internal/infrastructure/storage"
	"github.com/garyjia/trip-expense/internal/infrastructure/worker"
	httpiface "github.com/garyjia/trip-expense/internal/interfaces/http"
	"github.com/garyjia/trip-expense/pkg/database"
)

// Container manages all application dependencies and lifecycle.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure - Data
	db           *database.DB
	txManager    *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - Storage and security
	photos   *storage.LocalPhotoStorage
	security *SecurityBundle
	metrics  *metrics.Metrics

	// Application
	services *ServiceBundle
	server   *httpiface.Server

	// Workers
	workers *worker.Manager

	// Lifecycle
	mu     sync.RWMutex
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Trip     port.TripRepository
	Employee port.EmployeeRepository
	Expense  port.ExpenseRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Trip   service.TripService
	Review service.ReviewService
	Auth   service.AuthService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components in dependency order:
// 1. Database and repositories
// 2. Photo storage
// 3. Security (hasher, capability matrix, token issuer)
// 4. Metrics and application services
// 5. HTTP adapter
// 6. Workers
//
// The HTTP server itself is started by the caller through Server().
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	var runCtx context.Context
	runCtx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	steps := []struct {
		name string
		fn   func() error
	}{
		{"database", c.initDatabase},
		{"storage", c.initStorage},
		{"security", c.initSecurity},
		{"services", c.initServices},
		{"server", c.initServer},
		{"workers", func() error { return c.initWorkers(runCtx) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			c.releaseLocked()
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		c.logger.Info("Component initialized", zap.String("component", step.name))
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	errs := c.releaseLocked()

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// releaseLocked tears down whatever Start managed to build
func (c *Container) releaseLocked() []error {
	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
		c.workers = nil
	}

	if c.server != nil {
		if err := c.server.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop server: %w", err))
		}
		c.server = nil
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		c.db = nil
	}
	return errs
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, healthy bool, msg string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: msg}
		if !healthy {
			status.Overall = false
		}
	}

	switch {
	case c.db == nil:
		set("database", false, "not initialized")
	default:
		if err := c.db.Ping(); err != nil {
			set("database", false, fmt.Sprintf("ping failed: %v", err))
		} else if version, err := c.db.SchemaVersion(); err != nil {
			set("database", false, err.Error())
		} else {
			set("database", true, fmt.Sprintf("schema version %d", version))
		}
	}

	if c.workers == nil {
		set("workers", false, "not initialized")
	} else {
		set("workers", c.workers.IsRunning(), fmt.Sprintf("worker count: %d", c.workers.Count()))
	}

	set("services", c.services != nil, "")
	return status
}

func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.db = bundle.DB
	c.txManager = bundle.TransactionMgr

	repos, err := ProvideRepositories(c.db.DB, c.logger)
	if err != nil {
		return err
	}
	c.repositories = repos
	return nil
}

func (c *Container) initStorage() error {
	photos, err := ProvideStorage(&c.config.Storage, c.logger)
	if err != nil {
		return err
	}
	c.photos = photos
	return nil
}

func (c *Container) initSecurity() error {
	bundle, err := ProvideSecurity(&c.config.Auth, c.logger)
	if err != nil {
		return err
	}
	c.security = bundle
	return nil
}

func (c *Container) initServices() error {
	c.metrics = metrics.New()

	services, err := ProvideServices(&ServiceDeps{
		Repos:     c.repositories,
		TxManager: c.txManager,
		Photos:    c.photos,
		Security:  c.security,
		Metrics:   c.metrics,
		NodeID:    c.config.Server.NodeID,
		Logger:    c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services
	return nil
}

func (c *Container) initServer() error {
	server, err := ProvideServer(&c.config.Server, c.services, c.metrics, c.logger)
	if err != nil {
		return err
	}
	c.server = server
	return nil
}

func (c *Container) initWorkers(ctx context.Context) error {
	workers, err := ProvideWorkers(c.repositories, c.photos, c.logger)
	if err != nil {
		return err
	}
	c.workers = workers
	return c.workers.StartAll(ctx)
}

// Server returns the HTTP adapter; call Start on it to serve.
func (c *Container) Server() *httpiface.Server {
	return c.server
}

// zapLoggerAdapter adapts zap.Logger to the key/value Logger interfaces
// of the service and HTTP packages.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
