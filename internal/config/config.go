package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bilal/devstats/pkg/collector"
	"github.com/bilal/devstats/pkg/stats"
)

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

type AgentConfig struct {
	Name             string   `mapstructure:"name"`
	IntervalSeconds  int      `mapstructure:"interval_seconds"`
	HealthPort       string   `mapstructure:"health_port"`
	StatePath        string   `mapstructure:"state_path"`
	BundleIdentifier string   `mapstructure:"bundle_identifier"`
	Options          []string `mapstructure:"options"`
}

type StatsConfig struct {
	Endpoint              string        `mapstructure:"endpoint"`
	Collection            string        `mapstructure:"collection"`
	FirebaseProject       string        `mapstructure:"firebase_project"`
	CollectorBaseURL      string        `mapstructure:"collector_base_url"`
	APIKey                string        `mapstructure:"api_key"`
	APIKeyEnv             string        `mapstructure:"api_key_env"`       // e.g. DEVSTATS_API_KEY
	SharedSecret          string        `mapstructure:"shared_secret"`
	SharedSecretEnv       string        `mapstructure:"shared_secret_env"` // e.g. DEVSTATS_SHARED_SECRET
	MinimumSubmitInterval time.Duration `mapstructure:"minimum_submit_interval"`
	TimeoutSeconds        int           `mapstructure:"timeout_seconds"`
	InsecureSkipVerify    bool          `mapstructure:"insecure_skip_verify"`
}

type Config struct {
	Agent   AgentConfig   `mapstructure:"agent"`
	Stats   StatsConfig   `mapstructure:"stats"`
	Logging LoggingConfig `mapstructure:"logging"`
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// env overrides: DEVSTATS_STATS_API_KEY etc.
	v.SetEnvPrefix("devstats")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("agent.name", "devstats-agent")
	v.SetDefault("agent.interval_seconds", 3600)
	v.SetDefault("agent.health_port", "8085")
	v.SetDefault("agent.state_path", "devstats.db")
	v.SetDefault("agent.options", []string{"system"})
	v.SetDefault("stats.minimum_submit_interval", "180h")
	v.SetDefault("stats.timeout_seconds", 30)
	v.SetDefault("stats.insecure_skip_verify", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// quick sanity checks
	if cfg.Agent.IntervalSeconds < 1 {
		cfg.Agent.IntervalSeconds = 60
	}
	if cfg.Stats.TimeoutSeconds <= 0 {
		cfg.Stats.TimeoutSeconds = 30
	}

	return &cfg, nil
}

// Interval is how often the agent offers a fresh snapshot.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Agent.IntervalSeconds) * time.Second
}

// CollectorOptions parses agent.options.
func (c *Config) CollectorOptions() (collector.Options, error) {
	return collector.ParseOptions(c.Agent.Options)
}

// StatsConfiguration builds the immutable submission configuration. Secrets
// named by *_env keys take precedence over inline values.
func (c *Config) StatsConfiguration() (stats.Configuration, error) {
	s := c.Stats
	apiKey := s.APIKey
	if s.APIKeyEnv != "" {
		if v := os.Getenv(s.APIKeyEnv); v != "" {
			apiKey = v
		}
	}
	secret := s.SharedSecret
	if s.SharedSecretEnv != "" {
		if v := os.Getenv(s.SharedSecretEnv); v != "" {
			secret = v
		}
	}

	sc := stats.Configuration{
		Endpoint:              s.Endpoint,
		Collection:            s.Collection,
		FirebaseProject:       s.FirebaseProject,
		CollectorBaseURL:      s.CollectorBaseURL,
		APIKey:                apiKey,
		SharedSecret:          secret,
		MinimumSubmitInterval: s.MinimumSubmitInterval,
		Timeout:               time.Duration(s.TimeoutSeconds) * time.Second,
		InsecureSkipVerify:    s.InsecureSkipVerify,
	}
	if err := sc.Validate(); err != nil {
		return stats.Configuration{}, err
	}
	return sc, nil
}
