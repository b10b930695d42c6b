package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PANTRY_"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

type StorageConfig struct {
	Driver      string `yaml:"driver"`
	FilePath    string `yaml:"file_path"`
	RedisAddr   string `yaml:"redis_addr"`
	MySQLDSN    string `yaml:"mysql_dsn"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type Config struct {
	HTTPAddr       string        `yaml:"http_addr"`
	GRPCAddr       string        `yaml:"grpc_addr"`
	Storage        StorageConfig `yaml:"storage"`
	ExpiringWindow time.Duration `yaml:"expiring_window"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	SaveInterval   time.Duration `yaml:"save_interval"`
	LogLevel       string        `yaml:"log_level"`
}

func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		GRPCAddr: ":50051",
		Storage: StorageConfig{
			Driver:   DriverFile,
			FilePath: "pantry.json",
		},
		ExpiringWindow: 72 * time.Hour,
		IdempotencyTTL: 24 * time.Hour,
		SaveInterval:   500 * time.Millisecond,
		LogLevel:       "info",
	}
}

// Load resolves the configuration from, in increasing precedence: defaults,
// the YAML file named by -config or PANTRY_CONFIG, .env plus the process
// environment, and command line flags.
func Load(args []string) (Config, error) {
	cfg := Default()

	set := flag.NewFlagSet("pantry", flag.ContinueOnError)
	set.SetOutput(io.Discard)

	var (
		path     string
		override = Default()
	)
	set.StringVar(&path, "config", "", "Path to a YAML configuration file.")
	set.StringVar(&override.HTTPAddr, "http-addr", override.HTTPAddr, "HTTP listen address.")
	set.StringVar(&override.GRPCAddr, "grpc-addr", override.GRPCAddr, "gRPC listen address.")
	set.StringVar(&override.Storage.Driver, "storage", override.Storage.Driver, "Storage driver: memory, file, redis, mysql or postgres.")
	set.StringVar(&override.Storage.FilePath, "file-path", override.Storage.FilePath, "Snapshot file for the file driver.")
	set.StringVar(&override.Storage.RedisAddr, "redis-addr", override.Storage.RedisAddr, "Redis address; also enables request idempotency.")
	set.StringVar(&override.Storage.MySQLDSN, "mysql-dsn", override.Storage.MySQLDSN, "MySQL DSN for the mysql driver.")
	set.StringVar(&override.Storage.PostgresDSN, "postgres-dsn", override.Storage.PostgresDSN, "Postgres DSN for the postgres driver.")
	set.DurationVar(&override.ExpiringWindow, "expiring-window", override.ExpiringWindow, "How far ahead a product counts as expiring soon.")
	set.DurationVar(&override.IdempotencyTTL, "idempotency-ttl", override.IdempotencyTTL, "Lifetime of a recorded request key.")
	set.DurationVar(&override.SaveInterval, "save-interval", override.SaveInterval, "Minimum pause between two saves.")
	set.StringVar(&override.LogLevel, "log-level", override.LogLevel, "Log level: debug, info, warn or error.")

	if err := set.Parse(args); err != nil {
		return Config{}, err
	}

	env, err := environment(".env")
	if err != nil {
		return Config{}, err
	}

	if path == "" {
		path = env[envPrefix+"CONFIG"]
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(env); err != nil {
		return Config{}, err
	}

	set.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http-addr":
			cfg.HTTPAddr = override.HTTPAddr
		case "grpc-addr":
			cfg.GRPCAddr = override.GRPCAddr
		case "storage":
			cfg.Storage.Driver = override.Storage.Driver
		case "file-path":
			cfg.Storage.FilePath = override.Storage.FilePath
		case "redis-addr":
			cfg.Storage.RedisAddr = override.Storage.RedisAddr
		case "mysql-dsn":
			cfg.Storage.MySQLDSN = override.Storage.MySQLDSN
		case "postgres-dsn":
			cfg.Storage.PostgresDSN = override.Storage.PostgresDSN
		case "expiring-window":
			cfg.ExpiringWindow = override.ExpiringWindow
		case "idempotency-ttl":
			cfg.IdempotencyTTL = override.IdempotencyTTL
		case "save-interval":
			cfg.SaveInterval = override.SaveInterval
		case "log-level":
			cfg.LogLevel = override.LogLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// environment merges the dotenv file, if any, with the process environment.
// Process variables win.
func environment(dotenv string) (map[string]string, error) {
	env, err := godotenv.Read(dotenv)
	if errors.Is(err, fs.ErrNotExist) {
		env = make(map[string]string)
	} else if err != nil {
		return nil, fmt.Errorf("read %s: %w", dotenv, err)
	}

	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env, nil
}

func (c *Config) applyEnv(env map[string]string) error {
	if port := env["PORT"]; port != "" {
		c.HTTPAddr = ":" + port
	}

	texts := map[string]*string{
		"HTTP_ADDR":      &c.HTTPAddr,
		"GRPC_ADDR":      &c.GRPCAddr,
		"STORAGE_DRIVER": &c.Storage.Driver,
		"FILE_PATH":      &c.Storage.FilePath,
		"REDIS_ADDR":     &c.Storage.RedisAddr,
		"MYSQL_DSN":      &c.Storage.MySQLDSN,
		"POSTGRES_DSN":   &c.Storage.PostgresDSN,
		"LOG_LEVEL":      &c.LogLevel,
	}
	for name, dst := range texts {
		if v, ok := env[envPrefix+name]; ok && v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"EXPIRING_WINDOW": &c.ExpiringWindow,
		"IDEMPOTENCY_TTL": &c.IdempotencyTTL,
		"SAVE_INTERVAL":   &c.SaveInterval,
	}
	for name, dst := range durations {
		v, ok := env[envPrefix+name]
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = d
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error

	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http address is required"))
	}
	if c.GRPCAddr == "" {
		errs = append(errs, errors.New("grpc address is required"))
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverFile:
		if c.Storage.FilePath == "" {
			errs = append(errs, errors.New("file driver needs a file path"))
		}
	case DriverRedis:
		if c.Storage.RedisAddr == "" {
			errs = append(errs, errors.New("redis driver needs a redis address"))
		}
	case DriverMySQL:
		if c.Storage.MySQLDSN == "" {
			errs = append(errs, errors.New("mysql driver needs a dsn"))
		}
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres driver needs a dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	if c.ExpiringWindow <= 0 {
		errs = append(errs, errors.New("expiring window must be positive"))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("idempotency ttl must be positive"))
	}
	if c.SaveInterval < 0 {
		errs = append(errs, errors.New("save interval must not be negative"))
	}
	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}

	return errors.Join(errs...)
}

// Logger builds the production zap logger at the configured level.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = level
	return zc.Build()
}
