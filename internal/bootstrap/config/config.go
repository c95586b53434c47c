package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"qubeless/internal/bootstrap/logging"
	"qubeless/internal/errs"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Storage  StorageConfig  `mapstructure:"storage"`
	SCM      SCMConfig      `mapstructure:"scm"`
	HTTP     HTTPConfig     `mapstructure:"http"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// QueueConfig tunes the worker pool and the job retry policy.
type QueueConfig struct {
	Workers      int           `mapstructure:"workers"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BaseDelay    time.Duration `mapstructure:"base_delay"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
}

type ExecutorConfig struct {
	DockerHost       string        `mapstructure:"docker_host"`
	DefaultTimeout   time.Duration `mapstructure:"default_timeout"`
	MemoryLimitBytes int64         `mapstructure:"memory_limit_bytes"`
	CPULimit         float64       `mapstructure:"cpu_limit"`
	WorkDir          string        `mapstructure:"work_dir"`
}

type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Secure    bool   `mapstructure:"secure"`
}

type SCMConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
	BaseURL string `mapstructure:"base_url"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("QB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			// Keep default and env-backed config when no file is provided.
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.Int("queue_workers", cfg.Queue.Workers),
	)

	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if cfg.Queue.Workers < 1 {
		return fmt.Errorf("queue.workers must be >= 1, got %d", cfg.Queue.Workers)
	}
	if cfg.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue.max_attempts must be >= 1, got %d", cfg.Queue.MaxAttempts)
	}
	if cfg.Queue.BaseDelay <= 0 {
		return errors.New("queue.base_delay must be positive")
	}
	if cfg.Executor.DefaultTimeout <= 0 {
		return errors.New("executor.default_timeout must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "qubeless")
	v.SetDefault("app.env", "local")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".qubeless/state/qubeless.sqlite")
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.base_delay", "30s")
	v.SetDefault("queue.poll_interval", "2s")
	v.SetDefault("queue.stale_after", "30m")
	v.SetDefault("executor.docker_host", "")
	v.SetDefault("executor.default_timeout", "15m")
	v.SetDefault("executor.memory_limit_bytes", 0)
	v.SetDefault("executor.cpu_limit", 0)
	v.SetDefault("executor.work_dir", ".qubeless/work")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.bucket", "qubeless-artifacts")
	v.SetDefault("storage.secure", false)
	v.SetDefault("scm.enabled", false)
	v.SetDefault("http.addr", ":8080")
}
