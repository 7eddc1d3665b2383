package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete runtime configuration for steward. Values are
// read from the environment with documented names; anything not set falls
// back to the defaults below.
type Config struct {
	ListenAddr string
	DataDir    string
	Workers    int

	// TaskRetention caps how many terminal task results are kept.
	TaskRetention int

	// BrokerURL and ResultBackend are accepted for compatibility with
	// external-queue deployments. The embedded bbolt queue keeps both
	// the pending queue and results under DataDir, so setting either
	// only produces a startup warning.
	BrokerURL     string
	ResultBackend string

	// ResetToken gates destructive endpoints. When empty those endpoints
	// answer 503.
	ResetToken string

	// CORSAllowOrigins is a comma-separated list or "*".
	CORSAllowOrigins []string

	// SitesFile optionally pre-seeds the session registry from a YAML
	// inventory.
	SitesFile string

	SMTP SMTPConfig

	// Per-operation timeouts. Defaults leave room for slow shared
	// hosts; see doc.go for the variable names.
	SSHConnectTimeout   time.Duration
	HTTPStatusTimeout   time.Duration
	PluginUpdateTimeout time.Duration
	DownloadWaitTimeout time.Duration
	SettleInterval      time.Duration

	LogLevel string
	LogJSON  bool
}

// SMTPConfig configures the completion reporter.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Pass     string
	From     string
	StartTLS bool
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("LISTEN_ADDR", ":8000")
	v.SetDefault("DATA_DIR", "/var/lib/steward")
	v.SetDefault("WORKERS", 4)
	v.SetDefault("TASK_RETENTION", 1000)
	v.SetDefault("BROKER_URL", "")
	v.SetDefault("RESULT_BACKEND", "")
	v.SetDefault("RESET_TOKEN", "")
	v.SetDefault("CORS_ALLOW_ORIGINS", "*")
	v.SetDefault("SITES_FILE", "")
	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", 25)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASS", "")
	v.SetDefault("SMTP_FROM", "no-reply@example.com")
	v.SetDefault("SMTP_STARTTLS", false)
	v.SetDefault("SSH_CONNECT_TIMEOUT", "30s")
	v.SetDefault("HTTP_STATUS_TIMEOUT", "30s")
	v.SetDefault("PLUGIN_UPDATE_TIMEOUT", "600s")
	v.SetDefault("DOWNLOAD_WAIT_TIMEOUT", "600s")
	v.SetDefault("SETTLE_INTERVAL", "1s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_JSON", true)

	v.AutomaticEnv()

	// Every knob is also readable under a STEWARD_ prefix; the prefixed
	// name wins when both are set.
	for _, key := range v.AllKeys() {
		name := strings.ToUpper(key)
		_ = v.BindEnv(key, "STEWARD_"+name, name)
	}

	cfg := &Config{
		ListenAddr:    v.GetString("LISTEN_ADDR"),
		DataDir:       v.GetString("DATA_DIR"),
		Workers:       v.GetInt("WORKERS"),
		TaskRetention: v.GetInt("TASK_RETENTION"),
		BrokerURL:     v.GetString("BROKER_URL"),
		ResultBackend: v.GetString("RESULT_BACKEND"),
		ResetToken:    v.GetString("RESET_TOKEN"),
		SitesFile:     v.GetString("SITES_FILE"),
		SMTP: SMTPConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetInt("SMTP_PORT"),
			User:     v.GetString("SMTP_USER"),
			Pass:     v.GetString("SMTP_PASS"),
			From:     v.GetString("SMTP_FROM"),
			StartTLS: v.GetBool("SMTP_STARTTLS"),
		},
		SSHConnectTimeout:   v.GetDuration("SSH_CONNECT_TIMEOUT"),
		HTTPStatusTimeout:   v.GetDuration("HTTP_STATUS_TIMEOUT"),
		PluginUpdateTimeout: v.GetDuration("PLUGIN_UPDATE_TIMEOUT"),
		DownloadWaitTimeout: v.GetDuration("DOWNLOAD_WAIT_TIMEOUT"),
		SettleInterval:      v.GetDuration("SETTLE_INTERVAL"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		LogJSON:             v.GetBool("LOG_JSON"),
	}

	cfg.CORSAllowOrigins = splitOrigins(v.GetString("CORS_ALLOW_ORIGINS"))

	// Never run with a degenerate worker pool.
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	return cfg, nil
}

func splitOrigins(raw string) []string {
	if raw == "" || raw == "*" {
		return []string{"*"}
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// ResetEnabled reports whether destructive endpoints are configured.
func (c *Config) ResetEnabled() bool {
	return c.ResetToken != ""
}

// ExternalQueueConfigured reports whether broker or result-backend
// endpoints were set. Steward runs on its embedded queue either way;
// callers use this to warn the operator.
func (c *Config) ExternalQueueConfigured() bool {
	return c.BrokerURL != "" || c.ResultBackend != ""
}
