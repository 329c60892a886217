package cfg

import (
	"cmp"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// External API
	APIURL         string `long:"api-url" env:"BIRDBRAIN_API_URL" default:"http://localhost:8787" description:"Base URL of the Birdbrain API"`
	RequestTimeout int    `long:"request-timeout" env:"REQUEST_TIMEOUT" default:"30" description:"Timeout for API requests in seconds"`
	UserAgent      string `long:"user-agent" env:"USER_AGENT" default:"Birdbrain Relay/1.0" description:"User agent string for API requests"`

	// Control server
	Port         string `long:"port" env:"PORT" default:"8788" description:"Control server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for the control API (optional, enables /api routes)"`
	ProxyURL     string `long:"proxy-upstream" env:"PROXY_UPSTREAM" description:"Site proxied under /proxy with capture enabled (optional)"`

	// Coordinator
	RefreshInterval int `long:"refresh-interval" env:"REFRESH_INTERVAL" default:"300" description:"Incomplete cache refresh interval in seconds"`
	WorkerCount     int `long:"worker-count" env:"WORKER_COUNT" default:"2" description:"Number of background refresh workers"`

	// Persistence
	Store     string `long:"store" env:"STORE" default:"sqlite" choice:"sqlite" choice:"redis" description:"Persistent store for the incomplete cache"`
	DBPath    string `long:"db-path" env:"DB_PATH" default:"./birdbrain.db" description:"SQLite database path"`
	RedisAddr string `long:"redis-addr" env:"REDIS_ADDR" default:"localhost:6379" description:"Redis address when --store=redis"`
	RedisDB   int    `long:"redis-db" env:"REDIS_DB" default:"0" description:"Redis database number"`

	// Browser tap
	Chrome    bool   `long:"chrome" env:"CHROME" description:"Observe a Chrome tab over the DevTools protocol"`
	ChromeURL string `long:"chrome-url" env:"CHROME_URL" description:"DevTools websocket URL of a running Chrome (launches one when empty)"`
	Headless  bool   `long:"headless" env:"HEADLESS" description:"Launch Chrome headless"`
	StartURL  string `long:"start-url" env:"START_URL" default:"https://x.com/i/bookmarks" description:"Page opened in the observed tab"`

	// Observability
	TraceEndpoint string `long:"trace-endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" description:"OTLP/HTTP endpoint for traces (optional)"`

	SettingsFile string `long:"settings" env:"SETTINGS_FILE" description:"YAML file with endpoint paths and notification texts (optional)"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs parses args and the environment. It returns nil, nil when help was requested.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	settings, err := LoadSettings(raw.SettingsFile)
	if err != nil {
		return nil, err
	}

	cfg := &Cfg{
		APIURL:          raw.APIURL,
		RequestTimeout:  raw.RequestTimeout,
		UserAgent:       raw.UserAgent,
		Port:            raw.Port,
		APIAccessKey:    raw.APIAccessKey,
		ProxyURL:        raw.ProxyURL,
		RefreshInterval: raw.RefreshInterval,
		WorkerCount:     raw.WorkerCount,
		Store:           raw.Store,
		DBPath:          raw.DBPath,
		RedisAddr:       raw.RedisAddr,
		RedisDB:         raw.RedisDB,
		Chrome:          raw.Chrome,
		ChromeURL:       raw.ChromeURL,
		Headless:        raw.Headless,
		StartURL:        raw.StartURL,
		TraceEndpoint:   raw.TraceEndpoint,
		SettingsFile:    raw.SettingsFile,
		Settings:        settings,
		Timezone:        raw.Timezone,
		Debug:           raw.Debug,
		Version:         GetVersion(),
	}

	if cfg.RefreshInterval <= 0 {
		return nil, fmt.Errorf("refresh interval must be positive, got %d", cfg.RefreshInterval)
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

func (c *Cfg) RefreshEvery() time.Duration {
	return time.Duration(c.RefreshInterval) * time.Second
}

func (c *Cfg) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
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
