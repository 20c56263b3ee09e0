package config

import (
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Portal    PortalConfig
	Scrape    ScrapeConfig
	Storage   StorageConfig
	Jobs      JobsConfig
	Index     IndexConfig
	Log       LogConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Host     string
	Port     int
	APIToken string
}

// PortalConfig holds the vendor portal endpoints and account.
type PortalConfig struct {
	LoginURL      string
	BaseURL       string
	PODetailURL   string
	ItemDetailURL string
	Username      string
	Password      string
}

type ScrapeConfig struct {
	Headless       bool
	TimeoutSeconds int
	DownloadDir    string
	MessageLimit   int
}

func (c ScrapeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type StorageConfig struct {
	DataDir string
}

type JobsConfig struct {
	Capacity      int
	TTLMinutes    int
	MaxConcurrent int
}

func (c JobsConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

type IndexConfig struct {
	IntervalSeconds int
}

func (c IndexConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

type LogConfig struct {
	Level string
}

type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

const (
	secretService   = "bidfetch"
	passwordAccount = "portal_password"
	tokenAccount    = "api_token"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 4100,
		},
		Portal: PortalConfig{
			LoginURL:      "https://app.e-brandid.com/login/login.aspx",
			BaseURL:       "https://app.e-brandid.com/Bidnet/",
			PODetailURL:   "https://app.e-brandid.com/Bidnet/BidCustomer/PODetail.aspx",
			ItemDetailURL: "https://app.e-brandid.com/Bidnet/BidCustomer/ItemDetail.aspx",
		},
		Scrape: ScrapeConfig{
			Headless:       true,
			TimeoutSeconds: 30,
			DownloadDir:    defaultDownloadDir(),
			MessageLimit:   10,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Jobs: JobsConfig{
			Capacity:      200,
			TTLMinutes:    24 * 60,
			MaxConcurrent: 2,
		},
		Index: IndexConfig{
			IntervalSeconds: 60,
		},
		Log: LogConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "bidfetch",
		},
	}
}

// Load reads configuration from the JSON5 file backend at
// $XDG_CONFIG_HOME/bidfetch/config.json, then applies BIDFETCH_* environment
// overrides. The portal password comes from BIDFETCH_PORTAL_PASSWORD or the
// secrets file.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), secretReader{})
}

// keychain abstracts secret lookup for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Portal.Password == "" {
		if pw, err := kc.Get(secretService, passwordAccount); err == nil && pw != "" {
			cfg.Portal.Password = pw
		}
	}
	if cfg.Server.APIToken == "" {
		if tok, err := kc.Get(secretService, tokenAccount); err == nil && tok != "" {
			cfg.Server.APIToken = tok
		}
	}

	return cfg, nil
}

// secretReader reads from the secrets file.
type secretReader struct{}

func (secretReader) Get(service, account string) (string, error) {
	out, err := secretGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// DatabasePath returns the SQLite file inside the data dir.
func (c Config) DatabasePath() string {
	return filepath.Join(c.Storage.DataDir, "bidfetch.db")
}
