package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pendergraft/deployer/internal/chains"
)

// ProjectFiles is the search order for the project config file
var ProjectFiles = []string{"deploy.toml", "deploy.yaml", "deploy.yml"}

// Config holds all configuration for a deployment run
type Config struct {
	Network  NetworkConfig  `toml:"network" yaml:"network"`
	Deploy   DeployConfig   `toml:"deploy" yaml:"deploy"`
	Output   OutputConfig   `toml:"output" yaml:"output"`
	Storage  StorageConfig  `toml:"storage" yaml:"storage"`
	Logging  LoggingConfig  `toml:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `toml:"metrics" yaml:"metrics"`
	Registry RegistryConfig `toml:"registry" yaml:"registry"`
}

// NetworkConfig describes the target chain
type NetworkConfig struct {
	Name        string `toml:"name" yaml:"name" validate:"required"`
	ChainID     int64  `toml:"chain_id" yaml:"chain_id" validate:"gt=0"`
	RPCURL      string `toml:"rpc_url" yaml:"rpc_url" validate:"required,url"`
	Symbol      string `toml:"symbol" yaml:"symbol" validate:"required"`
	ExplorerURL string `toml:"explorer_url" yaml:"explorer_url" validate:"omitempty,url"`
	FaucetURL   string `toml:"faucet_url" yaml:"faucet_url" validate:"omitempty,url"`
}

// DeployConfig holds pipeline settings
type DeployConfig struct {
	ContractName string `toml:"contract" yaml:"contract" validate:"required"`
	ArtifactsDir string `toml:"artifacts_dir" yaml:"artifacts_dir" validate:"required"`
	// Builder forces "hardhat" or "foundry"; empty auto-detects.
	Builder string `toml:"builder" yaml:"builder" validate:"omitempty,oneof=hardhat foundry"`

	// PrivateKey is only read from the environment.
	PrivateKey string `toml:"-" yaml:"-"`

	// MinBalance is in ether, e.g. "0.01".
	MinBalance    string   `toml:"min_balance" yaml:"min_balance" validate:"required,numeric"`
	GasMultiplier float64  `toml:"gas_multiplier" yaml:"gas_multiplier" validate:"gte=1,lte=10"`
	ReadBacks     []string `toml:"read_backs" yaml:"read_backs" validate:"dive,required"`
	VerifyRuntime bool     `toml:"verify_runtime" yaml:"verify_runtime"`

	// ConfirmationTimeout of zero waits until the receipt exists.
	ConfirmationTimeout time.Duration `toml:"confirmation_timeout" yaml:"confirmation_timeout" validate:"gte=0"`
	PollInterval        time.Duration `toml:"poll_interval" yaml:"poll_interval" validate:"gt=0"`
}

// OutputConfig holds report file settings
type OutputConfig struct {
	Path string `toml:"path" yaml:"path" validate:"required"`
}

// StorageConfig holds history store configuration
type StorageConfig struct {
	Type     string         `toml:"type" yaml:"type" validate:"oneof=none sqlite postgres"` // "none", "sqlite" or "postgres"
	Postgres PostgresConfig `toml:"postgres" yaml:"postgres"`
	SQLite   SQLiteConfig   `toml:"sqlite" yaml:"sqlite"`
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string `toml:"url" yaml:"url"`
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string `toml:"path" yaml:"path"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `toml:"format" yaml:"format" validate:"oneof=text json"` // "text" or "json"
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled        bool   `toml:"enabled" yaml:"enabled"`
	PushgatewayURL string `toml:"pushgateway_url" yaml:"pushgateway_url" validate:"omitempty,url"`
}

// RegistryConfig holds the optional contract registry endpoint
type RegistryConfig struct {
	URL    string `toml:"url" yaml:"url" validate:"omitempty,url"`
	APIKey string `toml:"-" yaml:"-"`
}

// Default returns the Core Testnet configuration.
func Default() *Config {
	return &Config{
		Network: NetworkConfig{
			Name:        "Core Testnet",
			ChainID:     1114,
			RPCURL:      "https://rpc.test2.btcs.network",
			Symbol:      "CORE",
			ExplorerURL: "https://scan.test2.btcs.network",
			FaucetURL:   "https://scan.test2.btcs.network/faucet",
		},
		Deploy: DeployConfig{
			ContractName:  "DisasterResponseMining",
			ArtifactsDir:  ".",
			MinBalance:    "0.01",
			GasMultiplier: 1.20,
			ReadBacks:     []string{"owner", "nextDisasterZoneId", "nextProofId", "minStakeAmount"},
			VerifyRuntime: true,
			PollInterval:  2 * time.Second,
		},
		Output: OutputConfig{
			Path: "deployment-info.json",
		},
		Storage: StorageConfig{
			Type: "sqlite",
			SQLite: SQLiteConfig{
				Path: "./data/deployments.db",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadOptions controls where Load looks for configuration.
type LoadOptions struct {
	// ConfigFile is an explicit project file; empty searches ProjectFiles.
	ConfigFile string
	// EnvFile is loaded into the environment when present.
	EnvFile string
}

// Load builds the configuration from defaults, the project file, the .env
// file and environment variables, in increasing precedence. It returns the
// project file path that was used, if any. Call Validate once CLI flags
// have been applied.
func Load(opts LoadOptions) (*Config, string, error) {
	cfg := Default()

	path, err := loadProjectFile(cfg, opts.ConfigFile)
	if err != nil {
		return nil, path, err
	}

	if opts.EnvFile != "" {
		// godotenv never overrides variables already set
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, path, fmt.Errorf("loading %s: %w", opts.EnvFile, err)
		}
	}

	applyEnv(cfg)
	return cfg, path, nil
}

func loadProjectFile(cfg *Config, explicit string) (string, error) {
	if explicit != "" {
		return explicit, decodeFile(explicit, cfg)
	}
	for _, name := range ProjectFiles {
		if _, err := os.Stat(name); err == nil {
			return name, decodeFile(name, cfg)
		}
	}
	return "", nil
}

// decodeFile overlays a TOML or YAML file onto cfg; keys absent from the
// file keep their current values.
func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing YAML %s: %w", path, err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("parsing TOML %s: %w", path, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Network.Name = getEnv("NETWORK_NAME", cfg.Network.Name)
	cfg.Network.ChainID = getEnvInt64("CHAIN_ID", cfg.Network.ChainID)
	cfg.Network.RPCURL = getEnv("RPC_URL", cfg.Network.RPCURL)
	cfg.Network.Symbol = getEnv("NETWORK_SYMBOL", cfg.Network.Symbol)
	cfg.Network.ExplorerURL = getEnv("EXPLORER_URL", cfg.Network.ExplorerURL)
	cfg.Network.FaucetURL = getEnv("FAUCET_URL", cfg.Network.FaucetURL)

	cfg.Deploy.ContractName = getEnv("CONTRACT_NAME", cfg.Deploy.ContractName)
	cfg.Deploy.ArtifactsDir = getEnv("ARTIFACTS_DIR", cfg.Deploy.ArtifactsDir)
	cfg.Deploy.PrivateKey = getEnv("PRIVATE_KEY", cfg.Deploy.PrivateKey)
	cfg.Deploy.MinBalance = getEnv("MIN_BALANCE", cfg.Deploy.MinBalance)
	cfg.Deploy.GasMultiplier = getEnvFloat("GAS_MULTIPLIER", cfg.Deploy.GasMultiplier)
	cfg.Deploy.ReadBacks = getEnvStringSlice("READ_BACKS", cfg.Deploy.ReadBacks)
	cfg.Deploy.ConfirmationTimeout = getEnvDuration("CONFIRMATION_TIMEOUT", cfg.Deploy.ConfirmationTimeout)
	cfg.Deploy.PollInterval = getEnvDuration("POLL_INTERVAL", cfg.Deploy.PollInterval)

	cfg.Output.Path = getEnv("OUTPUT_PATH", cfg.Output.Path)

	storageType := os.Getenv("STORAGE_TYPE")
	cfg.Storage.Type = getEnv("STORAGE_TYPE", cfg.Storage.Type)
	cfg.Storage.SQLite.Path = getEnv("SQLITE_PATH", cfg.Storage.SQLite.Path)
	cfg.Storage.Postgres.URL = getEnv("DATABASE_URL", cfg.Storage.Postgres.URL)

	// If DATABASE_URL is set, default to postgres
	if storageType == "" && cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.Metrics.Enabled = getEnvBool("METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.PushgatewayURL = getEnv("METRICS_PUSHGATEWAY_URL", cfg.Metrics.PushgatewayURL)

	cfg.Registry.URL = getEnv("REGISTRY_URL", cfg.Registry.URL)
	cfg.Registry.APIKey = getEnv("REGISTRY_API_KEY", cfg.Registry.APIKey)
}

// Validate checks the struct tags and the cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := c.MinBalanceWei(); err != nil {
		return fmt.Errorf("invalid configuration: min_balance: %w", err)
	}
	switch c.Storage.Type {
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return errors.New("invalid configuration: storage.sqlite.path is required")
		}
	case "postgres":
		if c.Storage.Postgres.URL == "" {
			return errors.New("invalid configuration: storage.postgres.url is required (DATABASE_URL)")
		}
	}
	return nil
}

// MinBalanceWei returns the preflight threshold in wei.
func (c *Config) MinBalanceWei() (*big.Int, error) {
	wei, err := chains.ParseEther(c.Deploy.MinBalance)
	if err != nil {
		return nil, err
	}
	if wei.Sign() < 0 {
		return nil, fmt.Errorf("must not be negative, got %s", c.Deploy.MinBalance)
	}
	return wei, nil
}

// FailedOutputPath is where the forensic record of a failed deployment goes.
func (c *Config) FailedOutputPath() string {
	return FailedPath(c.Output.Path)
}

// FailedPath derives "<base>.failed.json" from an output path.
func FailedPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".failed.json"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
