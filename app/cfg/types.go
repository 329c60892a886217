package cfg

import (
	"github.com/lysyi3m/birdbrain-relay/app/apiclient"
	"github.com/lysyi3m/birdbrain-relay/app/relay"
)

type Cfg struct {
	// External API
	APIURL         string
	RequestTimeout int
	UserAgent      string

	// Control server
	Port         string
	APIAccessKey string
	ProxyURL     string

	// Coordinator
	RefreshInterval int
	WorkerCount     int

	// Persistence
	Store     string
	DBPath    string
	RedisAddr string
	RedisDB   int

	// Browser tap
	Chrome    bool
	ChromeURL string
	Headless  bool
	StartURL  string

	// Observability
	TraceEndpoint string

	SettingsFile string
	Settings     Settings

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}

// Settings is the optional YAML settings file.
type Settings struct {
	Endpoints     apiclient.Paths `yaml:"endpoints"`
	Notifications relay.Texts     `yaml:"notifications"`
}
