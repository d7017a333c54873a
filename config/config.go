package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// Environment variables read by Load.
const (
	EnvConfigFile   = "RAWGET_CONFIG"
	EnvMaxRedirects = "RAWGET_MAX_REDIRECTS"
	EnvLogLevel     = "RAWGET_LOG_LEVEL"
	EnvResolver     = "RAWGET_RESOLVER"
)

// Resolver modes of DialConf.
const (
	ResolverSystem = "system"
	ResolverDoT    = "dot"
	ResolverDoH    = "doh"
)

var (
	ErrUnknownResolver = errors.New("unknown resolver")
)

type ClientConf struct {
	MaxRedirects  int `ini:"max_redirects"`
	ChunkSize     int `ini:"chunk_size"`
	MaxHeaderSize int `ini:"max_header_size"`
}

type DialConf struct {
	Timeout  time.Duration `ini:"timeout"`
	Resolver string        `ini:"resolver"`
	CacheTTL time.Duration `ini:"cache_ttl"`
}

type LogConf struct {
	Level string `ini:"level"`
}

type Config struct {
	ClientConf `ini:"client"`
	DialConf   `ini:"dial"`
	LogConf    `ini:"log"`
}

// Default is used for any key a config file leaves out.
func Default() *Config {
	return &Config{
		ClientConf: ClientConf{
			MaxRedirects:  5,
			ChunkSize:     4096,
			MaxHeaderSize: 64 * 1024,
		},
		DialConf: DialConf{
			Timeout:  time.Minute,
			Resolver: ResolverSystem,
			CacheTTL: time.Hour,
		},
		LogConf: LogConf{
			Level: "warn",
		},
	}
}

// Load returns the defaults, overlaid with the INI file named by
// RAWGET_CONFIG if set, then with single-key environment overrides.
func Load() (*Config, error) {
	cfg := Default()
	if fileName := os.Getenv(EnvConfigFile); fileName != "" {
		if err := LoadIni(cfg, fileName); err != nil {
			return nil, err
		}
	}
	overrideFromEnvInt(&cfg.MaxRedirects, EnvMaxRedirects)
	overrideFromEnv(&cfg.Level, EnvLogLevel)
	overrideFromEnv(&cfg.Resolver, EnvResolver)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadIni maps the INI file onto cfg, keeping values of absent keys.
func LoadIni(cfg *Config, fileName string) error {
	iniFile, err := ini.Load(fileName)
	if err != nil {
		return fmt.Errorf("failed to load config file: %w", err)
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return fmt.Errorf("failed to map config file: %w", err)
	}
	return nil
}

func (cfg *Config) Validate() error {
	cfg.Resolver = strings.ToLower(strings.TrimSpace(cfg.Resolver))
	switch cfg.Resolver {
	case ResolverSystem, ResolverDoT, ResolverDoH:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownResolver, cfg.Resolver)
	}
	if cfg.MaxRedirects < 0 {
		cfg.MaxRedirects = 0
	}
	return nil
}

func overrideFromEnv(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}
