// Package config loads daemon and CLI settings from an optional file and
// LEXIS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const EnvPrefix = "LEXIS"

type Config struct {
	Listen          string        `mapstructure:"listen" validate:"required,loopback"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	Log             LogConfig     `mapstructure:"log"`
	DataDir         string        `mapstructure:"data_dir" validate:"required"`
	CacheDir        string        `mapstructure:"cache_dir" validate:"required"`
	Search          SearchConfig  `mapstructure:"search"`
	Catalog         CatalogConfig `mapstructure:"catalog"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

type SearchConfig struct {
	DefaultLimit int `mapstructure:"default_limit" validate:"min=1"`
	MaxLimit     int `mapstructure:"max_limit" validate:"min=1,gtefield=DefaultLimit"`
	Workers      int `mapstructure:"workers" validate:"min=1"`
	Parallelism  int `mapstructure:"parallelism" validate:"min=1"`
}

type CatalogConfig struct {
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" validate:"gt=0"`
	// Sources are loaded by the daemon at startup.
	Sources []string `mapstructure:"sources"`
}

func Default() Config {
	return Config{
		Listen:          "127.0.0.1:8013",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Log: LogConfig{
			Level: "info",
		},
		DataDir:  userDir(os.UserConfigDir, ".config"),
		CacheDir: filepath.Join(userDir(os.UserCacheDir, ".cache"), "catalogs"),
		Search: SearchConfig{
			DefaultLimit: 100,
			MaxLimit:     10000,
			Workers:      2,
			Parallelism:  4,
		},
		Catalog: CatalogConfig{
			FetchTimeout: 30 * time.Second,
		},
	}
}

func userDir(base func() (string, error), fallback string) string {
	dir, err := base()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, fallback)
	}
	return filepath.Join(dir, "lexis")
}

// Load merges, lowest first: defaults, the file at path (if any) and the
// environment. The result is validated.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.CacheDir = expandHome(cfg.CacheDir)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("listen", d.Listen)
	v.SetDefault("read_timeout", d.ReadTimeout)
	v.SetDefault("write_timeout", d.WriteTimeout)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("search.default_limit", d.Search.DefaultLimit)
	v.SetDefault("search.max_limit", d.Search.MaxLimit)
	v.SetDefault("search.workers", d.Search.Workers)
	v.SetDefault("search.parallelism", d.Search.Parallelism)
	v.SetDefault("catalog.fetch_timeout", d.Catalog.FetchTimeout)
	v.SetDefault("catalog.sources", append([]string{}, d.Catalog.Sources...))
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// Validate checks field ranges and that Listen is a loopback address.
func Validate(cfg Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.RegisterValidation("loopback", isLoopback); err != nil {
		return err
	}
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			switch fe.Tag() {
			case "loopback":
				return fmt.Errorf("invalid config: %s %q must be a loopback host:port", fe.Namespace(), fe.Value())
			case "required":
				return fmt.Errorf("invalid config: missing %s", fe.Namespace())
			default:
				return fmt.Errorf("invalid config: %s fails %s=%s", fe.Namespace(), fe.Tag(), fe.Param())
			}
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func isLoopback(fl validator.FieldLevel) bool {
	return IsLoopbackAddr(fl.Field().String())
}

// IsLoopbackAddr reports whether addr is host:port with a loopback host.
// Port 0 is allowed.
func IsLoopbackAddr(addr string) bool {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
