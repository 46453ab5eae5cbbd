package telemetry

import (
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/archie/internal/config"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	Endpoint       string
	Protocol       string // ProtocolGRPC or ProtocolHTTP
	ServiceName    string
	ServiceVersion string
	Insecure       bool
	TLSSkipVerify  bool
	SamplingRate   float64
	MetricsEnabled bool
	// LogsEndpoint receives bridged log records over OTLP/HTTP.
	LogsEndpoint string
	ExportInterval config.Duration
	Shutdown       config.Duration
}

// NewDefaultConfig returns disabled telemetry with local collector defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:        false,
		Endpoint:       "localhost:4317",
		Protocol:       ProtocolGRPC,
		ServiceName:    "archie",
		ServiceVersion: "dev",
		Insecure:       true,
		SamplingRate:   1.0,
		MetricsEnabled: true,
		ExportInterval: config.Duration(15 * time.Second),
		Shutdown:       config.Duration(5 * time.Second),
	}
}

// FromSettings maps the user-facing telemetry section onto a Config.
func FromSettings(s config.TelemetryConfig, version string) *Config {
	cfg := NewDefaultConfig()
	cfg.Enabled = s.Enabled
	if s.Endpoint != "" {
		cfg.Endpoint = s.Endpoint
	}
	if s.Protocol != "" {
		cfg.Protocol = s.Protocol
	}
	if s.ServiceName != "" {
		cfg.ServiceName = s.ServiceName
	}
	if version != "" {
		cfg.ServiceVersion = version
	}
	cfg.Insecure = s.Insecure
	if s.SamplingRate > 0 {
		cfg.SamplingRate = s.SamplingRate
	}
	cfg.LogsEndpoint = s.LogsEndpoint
	return cfg
}

// logsEndpoint returns where log records go, or "" when log export is off.
func (c *Config) logsEndpoint() string {
	if c.LogsEndpoint != "" {
		return c.LogsEndpoint
	}
	if c.Protocol == ProtocolHTTP {
		return c.Endpoint
	}
	return ""
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when telemetry is enabled")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required when telemetry is enabled")
	}
	if c.Protocol != ProtocolGRPC && c.Protocol != ProtocolHTTP {
		return fmt.Errorf("protocol must be grpc or http/protobuf, got %q", c.Protocol)
	}
	if c.Insecure && !c.isLocalEndpoint() {
		return fmt.Errorf("insecure connections to remote endpoints are not allowed; use TLS or a local endpoint")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling rate must be between 0 and 1, got %f", c.SamplingRate)
	}
	if c.MetricsEnabled && c.ExportInterval.Duration() <= 0 {
		return fmt.Errorf("export interval must be positive when metrics enabled")
	}
	if c.Shutdown.Duration() <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

// isLocalEndpoint checks if the endpoint host is a loopback address.
func (c *Config) isLocalEndpoint() bool {
	host := stripScheme(c.Endpoint)
	if strings.HasPrefix(host, "[") {
		if idx := strings.Index(host, "]"); idx != -1 {
			host = host[1:idx]
		}
	} else if strings.Count(host, ":") == 1 {
		host = host[:strings.LastIndex(host, ":")]
	}
	return host == "localhost" || host == "::1" || strings.HasPrefix(host, "127.")
}
