package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const FileName = "aeval.yml"

//go:embed default.yml
var defaultTemplate string

// Config models aeval.yml.
type Config struct {
	Fixtures struct {
		// Dir overlays catalog files on the embedded catalog; empty uses the
		// embedded copy only.
		Dir string `yaml:"dir"`
	} `yaml:"fixtures"`
	Simulation Simulation `yaml:"simulation"`
	Recommend  struct {
		UnknownIntent string `yaml:"unknown_intent"`
	} `yaml:"recommend"`
	Chat struct {
		RemoteURL string        `yaml:"remote_url"`
		Timeout   time.Duration `yaml:"timeout"`
	} `yaml:"chat"`
	Server    Server    `yaml:"server"`
	Webhooks  []Webhook `yaml:"webhooks"`
	Telemetry Telemetry `yaml:"telemetry"`
	Log       Log       `yaml:"log"`
}

// Simulation holds the artificial latencies of the mock inference steps.
type Simulation struct {
	Latency       time.Duration `yaml:"latency"`
	SubmitLatency time.Duration `yaml:"submit_latency"`
	ScanLatency   time.Duration `yaml:"scan_latency"`
}

type Server struct {
	Addr     string `yaml:"addr"`
	BasePath string `yaml:"base_path"`
	// SessionTTL drops chat and wizard sessions idle for longer.
	SessionTTL time.Duration `yaml:"session_ttl"`
	RateLimit  RateLimit     `yaml:"rate_limit"`
}

type RateLimit struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// Webhook receives state events as JSON POSTs. Events filters by type;
// empty means all.
type Webhook struct {
	URL     string        `yaml:"url"`
	Events  []string      `yaml:"events"`
	Secret  string        `yaml:"secret"`
	Timeout time.Duration `yaml:"timeout"`
	Enabled *bool         `yaml:"enabled"`
}

// Active reports whether the hook should receive deliveries.
func (w Webhook) Active() bool {
	return (w.Enabled == nil || *w.Enabled) && strings.TrimSpace(w.URL) != ""
}

type Telemetry struct {
	OTELEndpoint string `yaml:"otel_endpoint"`
	ServiceName  string `yaml:"service_name"`
	Insecure     bool   `yaml:"insecure"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Validate ensures the config is usable.
func (c *Config) Validate() error {
	switch c.Recommend.UnknownIntent {
	case "clarify", "fallback":
	default:
		return fmt.Errorf("config.recommend.unknown_intent must be 'clarify' or 'fallback', got %q", c.Recommend.UnknownIntent)
	}
	if c.Simulation.Latency < 0 || c.Simulation.SubmitLatency < 0 || c.Simulation.ScanLatency < 0 {
		return fmt.Errorf("config.simulation latencies must not be negative")
	}
	if c.Chat.RemoteURL != "" {
		u, err := url.Parse(c.Chat.RemoteURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config.chat.remote_url must be an absolute URL")
		}
	}
	if c.Chat.Timeout <= 0 {
		return fmt.Errorf("config.chat.timeout must be positive")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with '/'")
	}
	if c.Server.SessionTTL <= 0 {
		return fmt.Errorf("config.server.session_ttl must be positive")
	}
	if c.Server.RateLimit.Enabled && (c.Server.RateLimit.RPS <= 0 || c.Server.RateLimit.Burst <= 0) {
		return fmt.Errorf("config.server.rate_limit requires positive rps and burst when enabled")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		u, err := url.Parse(hook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config.webhooks[%d].url must be an http(s) URL", i)
		}
		if hook.Timeout < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout must not be negative", i)
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be one of debug, info, warn, error")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config.log.format must be 'json' or 'text'")
	}
	switch c.Log.Output {
	case "stdout", "stderr":
	default:
		return fmt.Errorf("config.log.output must be 'stdout' or 'stderr'")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg); err != nil {
		// the template is compiled in
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// Load reads the workspace config, falling back to Default when the file is
// absent. Values in the file override the defaults key by key.
func Load(workspace string) (*Config, error) {
	cfg, err := LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return Default(), nil
	}
	return cfg, nil
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses raw YAML over the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}
