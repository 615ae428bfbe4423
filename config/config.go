package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/tejiriaustin/fimtracker/logger"
)

const EnvPrefix = "FIM"

type Config struct {
	ConfigPath              string
	Roots                   []string      `mapstructure:"roots" validate:"required,min=1,dive,required"`
	DatabasePath            string        `mapstructure:"database_path" validate:"required"`
	Port                    string        `mapstructure:"port"`
	ExcludePatterns         []string      `mapstructure:"exclude_patterns"`
	QueueSize               int           `mapstructure:"queue_size" validate:"gt=0"`
	Workers                 int           `mapstructure:"workers" validate:"gt=0"`
	RenameGrace             time.Duration `mapstructure:"rename_grace" validate:"gte=0"`
	RenameHashPolicy        string        `mapstructure:"rename_hash_policy" validate:"oneof=carry recompute"`
	SuppressUnchangedModify bool          `mapstructure:"suppress_unchanged_modify"`
	IndexCacheSize          int           `mapstructure:"index_cache_size" validate:"gt=0"`
	PidFilePath             string        `mapstructure:"pid_file_path"`
	LogLevel                string        `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	DevMode                 bool          `mapstructure:"dev_mode"`
	mutex                   sync.RWMutex
}

var (
	appConfig     = &Config{}
	configRWMutex sync.RWMutex
)

func GetConfig() *Config {
	configRWMutex.RLock()
	defer configRWMutex.RUnlock()
	return appConfig
}

func defaultPidFile() string {
	return filepath.Join(os.TempDir(), "fimtracker.pid")
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database_path", "fimtracker.sqlite")
	v.SetDefault("port", ":8080")
	v.SetDefault("exclude_patterns", []string{})
	v.SetDefault("queue_size", 4096)
	v.SetDefault("workers", 4)
	v.SetDefault("rename_grace", "250ms")
	v.SetDefault("rename_hash_policy", "carry")
	v.SetDefault("suppress_unchanged_modify", false)
	v.SetDefault("index_cache_size", 65536)
	v.SetDefault("pid_file_path", defaultPidFile())
	v.SetDefault("log_level", "info")
	v.SetDefault("dev_mode", false)
}

// Read points v at the configuration file and reads it, with defaults and
// environment overrides applied. An empty path searches the usual
// locations; a missing file there is not an error.
func Read(v *viper.Viper, path string) error {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// roots has no default, so it is only visible to Unmarshal once bound.
	_ = v.BindEnv("roots")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.fimtracker")
		v.AddConfigPath("/etc/fimtracker")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// Load reads configuration into a new, validated Config.
func Load(v *viper.Viper, path string, validate *validator.Validate) (*Config, error) {
	if err := Read(v, path); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	return cfg, nil
}

// InitConfig loads the global configuration through the global viper
// instance. Invalid configuration terminates the process.
func InitConfig(validate *validator.Validate, log func() *logger.Logger, path *string) func() {
	return func() {
		cfg, err := Load(viper.GetViper(), *path, validate)
		if err != nil {
			log().Errorw("Invalid config", "error", err)
			os.Exit(1)
		}
		if cfg.ConfigPath == "" {
			log().Warn("No config file found. Using defaults.")
		}

		configRWMutex.Lock()
		defer configRWMutex.Unlock()
		appConfig = cfg
	}
}

func (c *Config) WritePidFile(pid int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.PidFilePath == "" {
		c.PidFilePath = defaultPidFile()
	}

	if err := os.WriteFile(c.PidFilePath, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

var ErrNotRunning = errors.New("daemon not running")

func (c *Config) ReadPidFile() (int, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.PidFilePath == "" {
		return 0, fmt.Errorf("PID file path not set")
	}

	content, err := os.ReadFile(c.PidFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotRunning
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}
	return pid, nil
}

func (c *Config) RemovePidFile() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.PidFilePath == "" {
		return nil
	}

	err := os.Remove(c.PidFilePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}
