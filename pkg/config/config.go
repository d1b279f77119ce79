/*
Package config manages TOML config for SuggestServe services.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bastiangx/suggestserve/internal/utils"
	"github.com/bastiangx/suggestserve/pkg/item"
	"github.com/bastiangx/suggestserve/pkg/normalize"
	"github.com/bastiangx/suggestserve/pkg/suggest"
)

// Config holds the entire config structure
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Engine    EngineConfig    `toml:"engine"`
	Normalize normalize.Rules `toml:"normalize"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
	Store     StoreConfig     `toml:"store"`
	Log       LogConfig       `toml:"log"`
}

// ServerConfig has HTTP gateway options.
type ServerConfig struct {
	Addr           string   `toml:"addr"`
	ReadTimeout    Duration `toml:"read_timeout"`
	WriteTimeout   Duration `toml:"write_timeout"`
	IdleTimeout    Duration `toml:"idle_timeout"`
	MaxQueryRunes  int      `toml:"max_query_runes"`
	AdminToken     string   `toml:"admin_token"`
	ShutdownPeriod Duration `toml:"shutdown_period"`
}

// EngineConfig holds suggestion limits.
type EngineConfig struct {
	MinQueryLength int      `toml:"min_query_length"`
	MaxQueryLength int      `toml:"max_query_length"`
	DefaultLimit   int      `toml:"default_limit"`
	MaxLimit       int      `toml:"max_limit"`
	LookupTimeout  Duration `toml:"lookup_timeout"`
	CacheSize      int      `toml:"cache_size"`
	Languages      []string `toml:"languages"`
}

// RateLimitConfig holds gateway admission control options.
type RateLimitConfig struct {
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
	MaxInFlight       int      `toml:"max_in_flight"`
	ClientTTL         Duration `toml:"client_ttl"`
	MaxClients        int      `toml:"max_clients"`
	TrustClientID     bool     `toml:"trust_client_id"`
}

// StoreConfig selects and locates the item store.
type StoreConfig struct {
	Driver       string   `toml:"driver"`
	Path         string   `toml:"path"`
	SeedFile     string   `toml:"seed_file"`
	WatchSeed    bool     `toml:"watch_seed"`
	StoreTimeout Duration `toml:"store_timeout"`
}

// LogConfig holds logger options.
type LogConfig struct {
	Level     string `toml:"level"`
	Formatter string `toml:"formatter"`
}

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Duration is a time.Duration written as a string such as "250ms".
type Duration struct {
	time.Duration
}

// D wraps d.
func D(d time.Duration) Duration {
	return Duration{d}
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// GetConfigDir returns the config directory with fallback priority:
// 1. ~/.config/ (or XDG_CONFIG_HOME)
// 2. ~/Library/Application Support/ (macOS)
// 3. Current executable dir
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Errorf("Failed to get home directory: %v", err)
		execDir, execErr := utils.GetExecutableDir()
		if execErr != nil {
			return "", execErr
		}
		return execDir, nil
	}
	primaryPath := utils.ConfigDirFor(homeDir)
	if utils.WritableDir(primaryPath) {
		return primaryPath, nil
	}
	// Not conventional, fallback from ~/.config if not writable
	macOSPath := filepath.Join(homeDir, "Library", "Application Support", utils.AppDirName)
	if utils.WritableDir(macOSPath) {
		return macOSPath, nil
	}
	execDir, err := utils.GetExecutableDir()
	if err != nil {
		log.Errorf("Failed to get executable directory: %v", err)
		return "", err
	}
	return execDir, nil
}

// GetDefaultConfigPath returns the default path for config.toml
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from --config flag
// 2. Default path: [UserConfigDir]/suggestserve/config.toml
// 3. Builtin defaults
func LoadConfigWithPriority(customConfigPath string) (*Config, string, error) {
	var config *Config
	var err error

	if customConfigPath != "" {
		if _, statErr := os.Stat(customConfigPath); statErr == nil {
			config, err = LoadConfig(customConfigPath)
			if err != nil {
				log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customConfigPath, err)
			} else {
				log.Debugf("Loaded config from custom path: %s", customConfigPath)
				return config, customConfigPath, nil
			}
		} else {
			log.Warnf("Custom config file not found at %s: %v. Trying default path...", customConfigPath, statErr)
		}
	}
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), "", nil
	}

	config, err = InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at default path %s: %v. Using builtin defaults...", defaultPath, err)
		return DefaultConfig(), "", nil
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return config, defaultPath, nil
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	engine := suggest.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Addr:           "127.0.0.1:8080",
			ReadTimeout:    D(5 * time.Second),
			WriteTimeout:   D(10 * time.Second),
			IdleTimeout:    D(60 * time.Second),
			MaxQueryRunes:  256,
			ShutdownPeriod: D(10 * time.Second),
		},
		Engine: EngineConfig{
			MinQueryLength: engine.MinQueryLength,
			MaxQueryLength: engine.MaxQueryLength,
			DefaultLimit:   engine.DefaultLimit,
			MaxLimit:       engine.MaxLimit,
			LookupTimeout:  D(engine.LookupTimeout),
			CacheSize:      engine.CacheSize,
			Languages:      append([]string(nil), engine.Languages...),
		},
		Normalize: normalize.DefaultRules(),
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			MaxInFlight:       256,
			ClientTTL:         D(5 * time.Minute),
			MaxClients:        10000,
		},
		Store: StoreConfig{
			Driver:       DriverMemory,
			Path:         "suggestserve.db",
			StoreTimeout: D(30 * time.Second),
		},
		Log: LogConfig{
			Level:     "info",
			Formatter: "text",
		},
	}
}

// InitConfig loads config from file or creates default if missing
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)

	if err := utils.EnsureDir(configDir); err != nil {
		log.Warnf("Failed to create config directory %s: %v. Using built-in defaults...", configDir, err)
		return DefaultConfig(), nil
	}

	if !utils.FileExists(configPath) {
		config := DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using built-in defaults...", configPath, err)
			return DefaultConfig(), nil
		}
		log.Debugf("Created default config file at: %s", configPath)
		return config, nil
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		log.Warnf("Failed to load config from %s: %v. Using built-in defaults...", configPath, err)
		return DefaultConfig(), nil
	}
	return config, nil
}

// LoadConfig loads from a TOML file. Invalid values are reported as an error;
// a file that does not parse falls back to section-by-section recovery.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if err := utils.LoadTOMLFile(configPath, config); err != nil {
		config, err = tryPartialParse(configPath)
		if err != nil {
			return nil, err
		}
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return config, nil
}

// tryPartialParse attempts to parse a TOML file
func tryPartialParse(configPath string) (*Config, error) {
	config := DefaultConfig()

	tempConfig, err := utils.ParseTOMLWithRecovery(configPath)
	if err != nil {
		log.Warnf("Could not parse any valid configuration from %s: %v. Using all defaults.", configPath, err)
		return config, nil
	}

	if section, ok := utils.ExtractSection(tempConfig, "server"); ok {
		extractServerConfig(section, &config.Server)
	}
	if section, ok := utils.ExtractSection(tempConfig, "engine"); ok {
		extractEngineConfig(section, &config.Engine)
	}
	if section, ok := utils.ExtractSection(tempConfig, "normalize"); ok {
		extractNormalizeRules(section, &config.Normalize)
	}
	if section, ok := utils.ExtractSection(tempConfig, "ratelimit"); ok {
		extractRateLimitConfig(section, &config.RateLimit)
	}
	if section, ok := utils.ExtractSection(tempConfig, "store"); ok {
		extractStoreConfig(section, &config.Store)
	}
	if section, ok := utils.ExtractSection(tempConfig, "log"); ok {
		extractLogConfig(section, &config.Log)
	}
	return config, nil
}

func extractServerConfig(data map[string]any, server *ServerConfig) {
	if val, ok := utils.ExtractString(data, "addr"); ok {
		server.Addr = val
	}
	if val, ok := utils.ExtractDuration(data, "read_timeout"); ok {
		server.ReadTimeout = D(val)
	}
	if val, ok := utils.ExtractDuration(data, "write_timeout"); ok {
		server.WriteTimeout = D(val)
	}
	if val, ok := utils.ExtractDuration(data, "idle_timeout"); ok {
		server.IdleTimeout = D(val)
	}
	if val, ok := utils.ExtractInt64(data, "max_query_runes"); ok {
		server.MaxQueryRunes = val
	}
	if val, ok := utils.ExtractString(data, "admin_token"); ok {
		server.AdminToken = val
	}
	if val, ok := utils.ExtractDuration(data, "shutdown_period"); ok {
		server.ShutdownPeriod = D(val)
	}
}

func extractEngineConfig(data map[string]any, engine *EngineConfig) {
	if val, ok := utils.ExtractInt64(data, "min_query_length"); ok {
		engine.MinQueryLength = val
	}
	if val, ok := utils.ExtractInt64(data, "max_query_length"); ok {
		engine.MaxQueryLength = val
	}
	if val, ok := utils.ExtractInt64(data, "default_limit"); ok {
		engine.DefaultLimit = val
	}
	if val, ok := utils.ExtractInt64(data, "max_limit"); ok {
		engine.MaxLimit = val
	}
	if val, ok := utils.ExtractDuration(data, "lookup_timeout"); ok {
		engine.LookupTimeout = D(val)
	}
	if val, ok := utils.ExtractInt64(data, "cache_size"); ok {
		engine.CacheSize = val
	}
	if val, ok := utils.ExtractStrings(data, "languages"); ok {
		engine.Languages = val
	}
}

func extractNormalizeRules(data map[string]any, rules *normalize.Rules) {
	if val, ok := utils.ExtractBool(data, "fold_diacritics"); ok {
		rules.FoldDiacritics = val
	}
	if val, ok := utils.ExtractBool(data, "collapse_space"); ok {
		rules.CollapseSpace = val
	}
}

func extractRateLimitConfig(data map[string]any, rl *RateLimitConfig) {
	if val, ok := utils.ExtractFloat(data, "requests_per_second"); ok {
		rl.RequestsPerSecond = val
	}
	if val, ok := utils.ExtractInt64(data, "burst"); ok {
		rl.Burst = val
	}
	if val, ok := utils.ExtractInt64(data, "max_in_flight"); ok {
		rl.MaxInFlight = val
	}
	if val, ok := utils.ExtractDuration(data, "client_ttl"); ok {
		rl.ClientTTL = D(val)
	}
	if val, ok := utils.ExtractInt64(data, "max_clients"); ok {
		rl.MaxClients = val
	}
	if val, ok := utils.ExtractBool(data, "trust_client_id"); ok {
		rl.TrustClientID = val
	}
}

func extractStoreConfig(data map[string]any, st *StoreConfig) {
	if val, ok := utils.ExtractString(data, "driver"); ok {
		st.Driver = val
	}
	if val, ok := utils.ExtractString(data, "path"); ok {
		st.Path = val
	}
	if val, ok := utils.ExtractString(data, "seed_file"); ok {
		st.SeedFile = val
	}
	if val, ok := utils.ExtractBool(data, "watch_seed"); ok {
		st.WatchSeed = val
	}
	if val, ok := utils.ExtractDuration(data, "store_timeout"); ok {
		st.StoreTimeout = D(val)
	}
}

func extractLogConfig(data map[string]any, lc *LogConfig) {
	if val, ok := utils.ExtractString(data, "level"); ok {
		lc.Level = val
	}
	if val, ok := utils.ExtractString(data, "formatter"); ok {
		lc.Formatter = val
	}
}

// Validate rejects values the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	e := c.Engine
	if e.MinQueryLength < 1 {
		errs = append(errs, errors.New("engine.min_query_length must be at least 1"))
	}
	if e.MaxQueryLength < e.MinQueryLength {
		errs = append(errs, errors.New("engine.max_query_length must not be below min_query_length"))
	}
	if e.DefaultLimit < 1 {
		errs = append(errs, errors.New("engine.default_limit must be at least 1"))
	}
	if e.MaxLimit < e.DefaultLimit {
		errs = append(errs, errors.New("engine.max_limit must not be below default_limit"))
	}
	if e.LookupTimeout.Duration < 0 {
		errs = append(errs, errors.New("engine.lookup_timeout must not be negative"))
	}
	if len(e.Languages) == 0 {
		errs = append(errs, errors.New("engine.languages must not be empty"))
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 || c.RateLimit.MaxInFlight < 0 || c.RateLimit.MaxClients < 0 {
		errs = append(errs, errors.New("ratelimit values must not be negative"))
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst < 1 {
		errs = append(errs, errors.New("ratelimit.burst must be at least 1 when requests_per_second is set"))
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if c.Server.MaxQueryRunes < 0 {
		errs = append(errs, errors.New("server.max_query_runes must not be negative"))
	}
	return errors.Join(errs...)
}

// SuggestConfig converts the [engine] section into suggest limits.
func (c *Config) SuggestConfig() suggest.Config {
	return suggest.Config{
		MinQueryLength: c.Engine.MinQueryLength,
		MaxQueryLength: c.Engine.MaxQueryLength,
		DefaultLimit:   c.Engine.DefaultLimit,
		MaxLimit:       c.Engine.MaxLimit,
		LookupTimeout:  c.Engine.LookupTimeout.Duration,
		CacheSize:      c.Engine.CacheSize,
		Languages:      item.Languages(c.Engine.Languages),
	}
}

// RebuildConfigFile force creates a new config.toml at default
func RebuildConfigFile() error {
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		return err
	}
	configDir := filepath.Dir(defaultPath)
	if err := utils.EnsureDir(configDir); err != nil {
		return err
	}
	return utils.SaveTOMLFile(DefaultConfig(), defaultPath)
}

// GetActiveConfigPath returns the absolute path of loaded config file
func GetActiveConfigPath(configPath string) string {
	if configPath == "" {
		if defaultPath, err := GetDefaultConfigPath(); err == nil {
			return defaultPath
		}
		return "unknown"
	}
	return utils.GetAbsolutePath(configPath)
}

// SaveConfig saves into a TOML file
func SaveConfig(config *Config, configPath string) error {
	return utils.SaveTOMLFile(config, configPath)
}

// Update changes the engine limits and saves to file. c is left untouched
// when the result does not validate or cannot be saved.
func (c *Config) Update(configPath string, defaultLimit, maxLimit, minQuery *int, foldDiacritics *bool) error {
	next := *c
	if defaultLimit != nil {
		next.Engine.DefaultLimit = *defaultLimit
	}
	if maxLimit != nil {
		next.Engine.MaxLimit = *maxLimit
	}
	if minQuery != nil {
		next.Engine.MinQueryLength = *minQuery
	}
	if foldDiacritics != nil {
		next.Normalize.FoldDiacritics = *foldDiacritics
	}
	if err := next.Validate(); err != nil {
		return err
	}
	if err := SaveConfig(&next, configPath); err != nil {
		return err
	}
	*c = next
	return nil
}
