package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/radgate/radgate/pkg/admission"
	"github.com/radgate/radgate/pkg/types"
)

// Log holds logging configuration.
type Log struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Server describes one UDP endpoint to bind.
type Server struct {
	Listen string           `yaml:"listen"`
	Rate   admission.Config `yaml:"rate"`
}

// Config is the full process configuration.
type Config struct {
	Log Log `yaml:"log"`

	// NodeID identifies this process in the handler pool. Defaults to the
	// hostname.
	NodeID string `yaml:"node_id"`

	// NatsURL enables clustering when set; empty runs single-node.
	NatsURL string `yaml:"nats_url"`

	// MetricsAddr is the Prometheus/health listen address; empty disables.
	MetricsAddr string `yaml:"metrics_addr"`

	// DataDir enables the persistent NAS store when set.
	DataDir string `yaml:"data_dir"`

	// ResendTimeoutMs is the reply retention window in milliseconds.
	ResendTimeoutMs int `yaml:"resend_timeout_ms"`

	Servers    []Server           `yaml:"servers"`
	NasClients []*types.NasRecord `yaml:"nas_clients"`
}

// ResendTimeout returns the retention window as a duration, zero meaning
// the server default.
func (c *Config) ResendTimeout() time.Duration {
	return time.Duration(c.ResendTimeoutMs) * time.Millisecond
}

// Load reads, parses and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.NodeID == "" {
		if host, err := os.Hostname(); err == nil {
			c.NodeID = host
		} else {
			c.NodeID = "radgate"
		}
	}
}

// Validate rejects configurations the server could not start with.
func (c *Config) Validate() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("no servers configured")
	}
	endpoints := make(map[string]bool, len(c.Servers))
	for _, srv := range c.Servers {
		if srv.Listen == "" {
			return fmt.Errorf("server with empty listen address")
		}
		if endpoints[srv.Listen] {
			return fmt.Errorf("duplicate server endpoint %s", srv.Listen)
		}
		endpoints[srv.Listen] = true
	}

	for _, rec := range c.NasClients {
		if rec.Name == "" {
			return fmt.Errorf("NAS client with empty name")
		}
		if !endpoints[rec.ListenAddr] {
			return fmt.Errorf("NAS %q references unknown server %q", rec.Name, rec.ListenAddr)
		}
		if rec.Secret == "" {
			return fmt.Errorf("NAS %q has no shared secret", rec.Name)
		}
		if rec.Handler == "" {
			return fmt.Errorf("NAS %q has no handler module", rec.Name)
		}
	}
	return nil
}
