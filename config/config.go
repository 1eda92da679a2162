package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/sandesh-mail/sandesh/helpers"
)

// NamespacePattern constrains the mail namespace: lowercase alphanumeric with
// hyphens, starting with a letter, 2-20 characters.
var NamespacePattern = regexp.MustCompile(`^[a-z][a-z0-9-]{1,19}$`)

// Config is the top-level configuration loaded from the TOML file.
type Config struct {
	// Namespace is the bootstrap mail namespace. Once the system settings
	// table holds a namespace, the stored value wins; this one seeds it.
	Namespace string `toml:"namespace"`

	Database DatabaseConfig `toml:"database"`
	Servers  ServersConfig  `toml:"servers"`
	Outbound OutboundConfig `toml:"outbound"`
	Logging  LoggingConfig  `toml:"logging"`
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string `toml:"host"`
	Port            string `toml:"port"`
	User            string `toml:"user"`
	Password        string `toml:"password"`
	Name            string `toml:"name"`
	TLSMode         bool   `toml:"tls"`
	LogQueries      bool   `toml:"log_queries"`
	MaxConns        int    `toml:"max_conns"`          // Maximum number of connections in the pool
	MinConns        int    `toml:"min_conns"`          // Minimum number of connections in the pool
	MaxConnLifetime string `toml:"max_conn_lifetime"`  // Maximum lifetime of a connection
	MaxConnIdleTime string `toml:"max_conn_idle_time"` // Maximum idle time before a connection is closed
}

// GetMaxConnLifetime parses the max connection lifetime duration.
func (d *DatabaseConfig) GetMaxConnLifetime() (time.Duration, error) {
	if d.MaxConnLifetime == "" {
		return time.Hour, nil
	}
	return helpers.ParseDuration(d.MaxConnLifetime)
}

// GetMaxConnIdleTime parses the max connection idle time duration.
func (d *DatabaseConfig) GetMaxConnIdleTime() (time.Duration, error) {
	if d.MaxConnIdleTime == "" {
		return 30 * time.Minute, nil
	}
	return helpers.ParseDuration(d.MaxConnIdleTime)
}

// ServersConfig groups the network listeners.
type ServersConfig struct {
	Debug   bool                `toml:"debug"` // Print protocol traffic to stdout
	SMTP    SMTPServerConfig    `toml:"smtp"`
	Metrics MetricsServerConfig `toml:"metrics"`
}

// SMTPServerConfig configures the inbound mail transfer listener.
type SMTPServerConfig struct {
	Start          bool   `toml:"start"`
	Addr           string `toml:"addr"`
	Hostname       string `toml:"hostname"`         // Advertised in the greeting banner
	MaxMessageSize string `toml:"max_message_size"` // Payload ceiling, e.g. "200k"
	MaxRecipients  int    `toml:"max_recipients"`   // Per-message envelope recipient cap (0 = unlimited)

	// Per-client throttle on MAIL commands, keyed by remote IP.
	MailRateLimit  int    `toml:"mail_rate_limit"`  // 0 disables the throttle
	MailRateWindow string `toml:"mail_rate_window"` // e.g. "1m"
}

// GetMaxMessageSize parses the configured payload ceiling in bytes.
func (s *SMTPServerConfig) GetMaxMessageSize() (int64, error) {
	if s.MaxMessageSize == "" {
		return 200 * 1024, nil
	}
	return helpers.ParseSize(s.MaxMessageSize)
}

// GetMailRateWindow parses the MAIL throttle window.
func (s *SMTPServerConfig) GetMailRateWindow() (time.Duration, error) {
	if s.MailRateWindow == "" {
		return time.Minute, nil
	}
	return helpers.ParseDuration(s.MailRateWindow)
}

// MetricsServerConfig configures the Prometheus metrics listener.
type MetricsServerConfig struct {
	Start bool   `toml:"start"`
	Addr  string `toml:"addr"`
}

// OutboundConfig configures the outbound SMTP transport.
type OutboundConfig struct {
	Addr     string `toml:"addr"`     // host:port of the relay accepting our mail
	Username string `toml:"username"` // Optional AUTH PLAIN credentials
	Password string `toml:"password"`

	TLS         bool `toml:"tls"`          // Connect with implicit TLS
	TLSStartTLS bool `toml:"tls_starttls"` // Upgrade with STARTTLS instead
	TLSVerify   bool `toml:"tls_verify"`   // Verify the relay certificate

	// Per-user throttle on the send path.
	SendRateLimit  int    `toml:"send_rate_limit"`
	SendRateWindow string `toml:"send_rate_window"`
}

// GetSendRateWindow parses the send throttle window.
func (o *OutboundConfig) GetSendRateWindow() (time.Duration, error) {
	if o.SendRateWindow == "" {
		return time.Minute, nil
	}
	return helpers.ParseDuration(o.SendRateWindow)
}

// LoggingConfig configures the logger output.
type LoggingConfig struct {
	Output string `toml:"output"` // "stdout", "stderr", "syslog" or a file path
	Format string `toml:"format"` // "console" or "json"
	Level  string `toml:"level"`  // "debug", "info", "warn", "error"
}

// NewDefaultConfig returns the application defaults used before the TOML file
// and command-line flags are applied.
func NewDefaultConfig() Config {
	return Config{
		Namespace: "sandesh",
		Database: DatabaseConfig{
			Host: "localhost",
			Port: "5432",
			User: "sandesh",
			Name: "sandesh_db",
		},
		Servers: ServersConfig{
			SMTP: SMTPServerConfig{
				Start:          true,
				Addr:           ":2525",
				Hostname:       "localhost",
				MaxMessageSize: "200k",
				MaxRecipients:  100,
				MailRateLimit:  60,
				MailRateWindow: "1m",
			},
			Metrics: MetricsServerConfig{
				Addr: ":9090",
			},
		},
		Outbound: OutboundConfig{
			Addr:           "localhost:2525",
			TLSVerify:      true,
			SendRateLimit:  20,
			SendRateWindow: "1m",
		},
		Logging: LoggingConfig{
			Output: "stderr",
			Format: "console",
			Level:  "info",
		},
	}
}

// Load reads the TOML file at path over the defaults. A missing file is not
// an error; the defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := NewDefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values which would fail at runtime.
func (c *Config) Validate() error {
	if !NamespacePattern.MatchString(c.Namespace) {
		return fmt.Errorf("invalid namespace %q: must match %s", c.Namespace, NamespacePattern.String())
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Servers.SMTP.Start && c.Servers.SMTP.Addr == "" {
		return fmt.Errorf("smtp listener enabled but no address configured")
	}
	if _, err := c.Servers.SMTP.GetMaxMessageSize(); err != nil {
		return fmt.Errorf("invalid smtp max_message_size: %w", err)
	}
	if _, err := c.Servers.SMTP.GetMailRateWindow(); err != nil {
		return fmt.Errorf("invalid smtp mail_rate_window: %w", err)
	}
	if _, err := c.Outbound.GetSendRateWindow(); err != nil {
		return fmt.Errorf("invalid outbound send_rate_window: %w", err)
	}
	if _, err := c.Database.GetMaxConnLifetime(); err != nil {
		return fmt.Errorf("invalid database max_conn_lifetime: %w", err)
	}
	if _, err := c.Database.GetMaxConnIdleTime(); err != nil {
		return fmt.Errorf("invalid database max_conn_idle_time: %w", err)
	}
	return nil
}
