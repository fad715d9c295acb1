package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PathEnv names the environment variable that points at the config file.
const PathEnv = "COLOREDLOG_CONFIG_PATH"

// DefaultPaths are tried in order when PathEnv is unset.
var DefaultPaths = []string{
	"coloredlog.yaml",
	"config/coloredlog.yaml",
	"/etc/coloredlog/coloredlog.yaml",
}

// Config is the demo server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Requests  RequestsConfig  `yaml:"requests"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Port        string `yaml:"port"`
	ServiceName string `yaml:"service_name"`
}

// LogConfig holds service logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// RequestsConfig configures the request logger.
type RequestsConfig struct {
	Exclusions    []string `yaml:"exclusions"`
	NoLogIP       bool     `yaml:"no_log_ip"`
	DisableColors bool     `yaml:"disable_colors"`
}

// TelemetryConfig holds tracing settings. Tracing is off when the endpoint is empty.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8080",
			ServiceName: "coloredlog-demo",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML config file and fills unset fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()

	return cfg, nil
}

// LoadFromEnv loads the file named by PathEnv, or the first existing default
// path. A missing file is not an error.
func LoadFromEnv() (*Config, error) {
	path := os.Getenv(PathEnv)
	if path == "" {
		for _, candidate := range DefaultPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path == "" {
		return Default(), nil
	}

	return Load(path)
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	for i, p := range c.Requests.Exclusions {
		if p == "" || p[0] != '/' {
			errs = append(errs, fmt.Errorf("requests.exclusions[%d] %q must start with /", i, p))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Server.Port == "" {
		c.Server.Port = def.Server.Port
	}
	if c.Server.ServiceName == "" {
		c.Server.ServiceName = def.Server.ServiceName
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}
