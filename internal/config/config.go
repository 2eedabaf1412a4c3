package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Client   ClientConfig   `mapstructure:"client"`
	Export   ExportConfig   `mapstructure:"export"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ExecPath     string        `mapstructure:"exec_path"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// NodeID seeds the snowflake generator for expense ids
	NodeID int64 `mapstructure:"node_id"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StorageConfig holds receipt photo storage configuration
type StorageConfig struct {
	PhotoDir string `mapstructure:"photo_dir"`
}

// AuthConfig holds reviewer credentials and token settings
type AuthConfig struct {
	// AdminPassword is hashed at startup; empty disables auditor login
	AdminPassword string        `mapstructure:"admin_password"`
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	BcryptCost    int           `mapstructure:"bcrypt_cost"`
}

// ClientConfig holds sync client configuration
type ClientConfig struct {
	ServerURL    string        `mapstructure:"server_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// UserName identifies this device's member on uploads
	UserName string `mapstructure:"user_name"`
	// StatePath is where tripctl keeps the local trip draft
	StatePath string `mapstructure:"state_path"`
	// PhotoDir holds receipt photos not yet uploaded
	PhotoDir string `mapstructure:"photo_dir"`
}

// ExportConfig holds reimbursement spreadsheet settings
type ExportConfig struct {
	OutputDir   string `mapstructure:"output_dir"`
	CompanyName string `mapstructure:"company_name"`
	FontName    string `mapstructure:"font_name"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads the server configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	cfg, err := load(configPath, false)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadClient loads the client configuration. A missing file is not an
// error; defaults and environment variables still apply.
func LoadClient(configPath string) (*Config, error) {
	cfg, err := load(configPath, true)
	if err != nil {
		return nil, err
	}

	if err := cfg.ValidateClient(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadDotEnv reads .env beside the config file, then in the working
// directory. Variables already set in the environment win.
func loadDotEnv(configPath string) {
	for _, p := range []string{filepath.Join(filepath.Dir(configPath), ".env"), ".env"} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

func load(configPath string, optional bool) (*Config, error) {
	loadDotEnv(configPath)

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TRIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if !optional || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Override with environment variables
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.exec_path", "/api/exec")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.node_id", 1)

	// Database defaults
	v.SetDefault("database.path", "data/trips.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Storage defaults
	v.SetDefault("storage.photo_dir", "data/photos")

	// Auth defaults
	v.SetDefault("auth.token_ttl", 12*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 0)

	// Client defaults
	v.SetDefault("client.server_url", "http://localhost:8080/api/exec")
	v.SetDefault("client.timeout", 30*time.Second)
	v.SetDefault("client.poll_interval", time.Minute)
	v.SetDefault("client.state_path", "trip-draft.json")
	v.SetDefault("client.photo_dir", "trip-photos")

	// Export defaults
	v.SetDefault("export.output_dir", "exports")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	// Sensitive credentials from environment
	_ = v.BindEnv("auth.admin_password", "TRIP_ADMIN_PASSWORD")
	_ = v.BindEnv("auth.jwt_secret", "TRIP_JWT_SECRET")
	_ = v.BindEnv("client.server_url", "TRIP_SERVER_URL")
	_ = v.BindEnv("client.user_name", "TRIP_USER_NAME")
}

// Validate validates the server configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.ExecPath, "/") {
		return fmt.Errorf("server.exec_path must start with /")
	}
	if c.Server.NodeID < 0 || c.Server.NodeID > 1023 {
		return fmt.Errorf("server.node_id must be within 0..1023")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Storage.PhotoDir == "" {
		return fmt.Errorf("storage.photo_dir is required")
	}

	// Validate auth secrets
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (TRIP_JWT_SECRET)")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 bytes")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}

	return nil
}

// ValidateClient validates the sync client configuration
func (c *Config) ValidateClient() error {
	if c.Client.ServerURL == "" {
		return fmt.Errorf("client.server_url is required")
	}
	if c.Client.Timeout <= 0 {
		return fmt.Errorf("client.timeout must be positive")
	}
	if c.Client.PollInterval <= 0 {
		return fmt.Errorf("client.poll_interval must be positive")
	}
	return nil
}
