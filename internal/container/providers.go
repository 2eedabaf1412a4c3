package container

import (
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/garyjia/trip-expense/internal/application/service"
	"github.com/garyjia/trip-expense/internal/config"
	"github.com/garyjia/trip-expense/internal/domain/access"
	"github.com/garyjia/trip-expense/internal/infrastructure/idgen"
	"github.com/garyjia/trip-expense/internal/infrastructure/metrics"
	"github.com/garyjia/trip-expense/internal/infrastructure/persistence/migrations"
	"github.com/garyjia/trip-expense/internal/infrastructure/persistence/repository"
	"github.com/garyjia/trip-expense/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/trip-expense/internal/infrastructure/security"
	"github.com/garyjia/trip-expense/internal/infrastructure/storage"
	"github.com/garyjia/trip-expense/internal/infrastructure/worker"
	httpiface "github.com/garyjia/trip-expense/internal/interfaces/http"
	"github.com/garyjia/trip-expense/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// SecurityBundle holds credential and capability components.
type SecurityBundle struct {
	Hasher     *security.BcryptHasher
	Authorizer *access.Authorizer
	Issuer     *access.TokenIssuer
	// AdminHash is the bcrypt hash of the configured auditor password
	AdminHash string
}

// ProvideDatabase opens the SQLite store and applies the embedded migrations.
func ProvideDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(db, logger)
	if _, err := migrator.RunMigrations(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(db *sqlx.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Trip:     repository.NewTripRepository(db, logger),
		Employee: repository.NewEmployeeRepository(db, logger),
		Expense:  repository.NewExpenseRepository(db, logger),
	}, nil
}

// ProvideStorage creates the receipt photo store, making sure its directory exists.
func ProvideStorage(cfg *config.StorageConfig, logger *zap.Logger) (*storage.LocalPhotoStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config is required")
	}
	if err := os.MkdirAll(cfg.PhotoDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create photo directory: %w", err)
	}
	return storage.NewLocalPhotoStorage(cfg.PhotoDir, logger), nil
}

// ProvideSecurity builds the password hasher, the capability matrix and the
// token issuer, hashing the configured auditor password once.
func ProvideSecurity(cfg *config.AuthConfig, logger *zap.Logger) (*SecurityBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("auth config is required")
	}

	authorizer, err := access.NewAuthorizer()
	if err != nil {
		return nil, err
	}

	hasher := security.NewBcryptHasher(cfg.BcryptCost)
	bundle := &SecurityBundle{
		Hasher:     hasher,
		Authorizer: authorizer,
		Issuer:     access.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL, nil),
	}

	if cfg.AdminPassword == "" {
		logger.Warn("No admin password configured, auditor login is disabled")
		return bundle, nil
	}
	bundle.AdminHash, err = hasher.Hash(cfg.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}
	return bundle, nil
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Repos     *RepositoryBundle
	TxManager *sqlite.DB
	Photos    *storage.LocalPhotoStorage
	Security  *SecurityBundle
	Metrics   *metrics.Metrics
	NodeID    int64
	Logger    *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Security == nil {
		return nil, fmt.Errorf("security bundle is required")
	}

	ids, err := idgen.NewSnowflakeGenerator(deps.NodeID)
	if err != nil {
		return nil, err
	}

	logger := &zapLoggerAdapter{logger: deps.Logger}

	return &ServiceBundle{
		Trip: service.NewTripService(
			deps.Repos.Trip,
			deps.Repos.Employee,
			deps.Repos.Expense,
			deps.Photos,
			ids,
			deps.Security.Hasher,
			deps.Security.Authorizer,
			deps.TxManager,
			deps.Metrics,
			logger,
		),
		Review: service.NewReviewService(
			deps.Repos.Trip,
			deps.Repos.Employee,
			deps.Repos.Expense,
			deps.Photos,
			deps.Security.Authorizer,
			deps.TxManager,
			deps.Metrics,
			logger,
		),
		Auth: service.NewAuthService(
			deps.Repos.Trip,
			deps.Security.Hasher,
			deps.Security.Issuer,
			deps.Security.AdminHash,
			logger,
		),
	}, nil
}

// ProvideServer creates the HTTP adapter over the services.
func ProvideServer(cfg *config.ServerConfig, services *ServiceBundle, m *metrics.Metrics, logger *zap.Logger) (*httpiface.Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server config is required")
	}
	if services == nil {
		return nil, fmt.Errorf("services are required")
	}

	return httpiface.NewServer(
		httpiface.ServerConfig{
			Host:         cfg.Host,
			Port:         cfg.Port,
			ExecPath:     cfg.ExecPath,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		httpiface.Services{
			Trip:    services.Trip,
			Review:  services.Review,
			Auth:    services.Auth,
			Metrics: m,
		},
		&zapLoggerAdapter{logger: logger},
	), nil
}

// ProvideWorkers registers the server's background workers.
func ProvideWorkers(repos *RepositoryBundle, photos *storage.LocalPhotoStorage, logger *zap.Logger) (*worker.Manager, error) {
	if repos == nil || photos == nil {
		return nil, fmt.Errorf("repositories and photo storage are required")
	}

	manager := worker.NewManager(logger)
	manager.Register(worker.NewPhotoSweeper(repos.Expense, photos, worker.PhotoSweeperConfig{
		Interval: time.Hour,
		Grace:    10 * time.Minute,
	}, logger))
	return manager, nil
}
