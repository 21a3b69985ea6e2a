package cfg

import (
	"cmp"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	ConfigFile string `long:"config" env:"CONFIG_FILE" description:"Optional YAML configuration file"`

	// Storage
	DBPath string `long:"db-path" env:"DB_PATH" default:"./feedloom.db" description:"SQLite database path"`

	// HTTP server
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	RedisAddr    string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for the response cache (optional)"`
	CacheTTL     int    `long:"cache-ttl" env:"CACHE_TTL" default:"30" description:"Response cache TTL in seconds"`

	// Background work
	WorkerCount     int `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of background workers"`
	RefreshInterval int `long:"refresh-interval" env:"REFRESH_INTERVAL" default:"1800" description:"Default feed refresh interval in seconds"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Feedloom/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// fileCfg mirrors rawCfg for the optional YAML file. File values replace
// built-in defaults; flags and environment variables still win.
type fileCfg struct {
	DBPath          string `yaml:"db_path"`
	Port            string `yaml:"port"`
	APIAccessKey    string `yaml:"api_key"`
	RedisAddr       string `yaml:"redis_addr"`
	CacheTTL        int    `yaml:"cache_ttl"`
	WorkerCount     int    `yaml:"worker_count"`
	RefreshInterval int    `yaml:"refresh_interval"`
	UserAgent       string `yaml:"user_agent"`
	Timezone        string `yaml:"timezone"`
	Debug           bool   `yaml:"debug"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:          raw.DBPath,
		Port:            raw.Port,
		APIAccessKey:    raw.APIAccessKey,
		RedisAddr:       raw.RedisAddr,
		CacheTTL:        raw.CacheTTL,
		WorkerCount:     raw.WorkerCount,
		RefreshInterval: raw.RefreshInterval,
		UserAgent:       raw.UserAgent,
		Timezone:        raw.Timezone,
		Debug:           raw.Debug,
		Version:         GetVersion(),
	}

	if raw.ConfigFile != "" {
		if err := applyConfigFile(cfg, &raw, raw.ConfigFile); err != nil {
			return nil, err
		}
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// applyConfigFile overlays YAML values onto fields still holding their
// built-in defaults. Explicit flags and environment variables keep
// precedence because a non-default current value is left alone.
func applyConfigFile(cfg *Cfg, raw *rawCfg, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var file fileCfg
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	overlayString(&cfg.DBPath, file.DBPath, "./feedloom.db")
	overlayString(&cfg.Port, file.Port, "8080")
	overlayString(&cfg.APIAccessKey, file.APIAccessKey, "")
	overlayString(&cfg.RedisAddr, file.RedisAddr, "")
	overlayInt(&cfg.CacheTTL, file.CacheTTL, 30)
	overlayInt(&cfg.WorkerCount, file.WorkerCount, 5)
	overlayInt(&cfg.RefreshInterval, file.RefreshInterval, 1800)
	overlayString(&cfg.UserAgent, file.UserAgent, "Feedloom/1.0")
	overlayString(&cfg.Timezone, file.Timezone, "UTC")
	if file.Debug && !raw.Debug {
		cfg.Debug = true
	}

	return nil
}

func overlayString(target *string, fileValue, defaultValue string) {
	if fileValue != "" && *target == defaultValue {
		*target = fileValue
	}
}

func overlayInt(target *int, fileValue, defaultValue int) {
	if fileValue != 0 && *target == defaultValue {
		*target = fileValue
	}
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
