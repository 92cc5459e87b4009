package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mailroute/mxrouter/internal/domain"
	apperrors "github.com/mailroute/mxrouter/internal/errors"
	"gopkg.in/yaml.v2"
)

// Config represents the main configuration structure.
// Durations are whole seconds, where 0 disables the feature.
type Config struct {
	Listen        string          `yaml:"listen"`
	CacheTTL      int             `yaml:"cache_ttl"`
	ClientTimeout int             `yaml:"client_timeout"`
	StatsInterval int             `yaml:"stats_interval"`
	AlwaysResolve bool            `yaml:"always_resolve"`
	DefaultGroup  string          `yaml:"default_group"`
	Groups        []GroupConfig   `yaml:"groups"`
	Rules         []RuleConfig    `yaml:"rules"`
	Logging       LoggingConfig   `yaml:"logging"`
	Admin         AdminConfig     `yaml:"admin"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
}

// GroupConfig contains one relay group: a name and its weighted servers.
type GroupConfig struct {
	Name    string         `yaml:"name"`
	Servers []ServerConfig `yaml:"servers"`
}

// ServerConfig contains one relay server entry.
type ServerConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Weight  int    `yaml:"weight"`
}

// RuleConfig maps an MX hostname pattern to a target group.
type RuleConfig struct {
	Pattern string `yaml:"pattern"`
	Group   string `yaml:"group"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	File   string `yaml:"file"`
}

// AdminConfig contains the optional admin/status HTTP endpoint configuration
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// RateLimitConfig contains optional per-client lookup rate limiting
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Listen:        "127.0.0.1:10099",
		CacheTTL:      3600,
		ClientTimeout: 600,
		StatsInterval: 300,
		AlwaysResolve: true,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Admin: AdminConfig{
			Enabled: false,
			Listen:  "127.0.0.1:10100",
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 100,
			BurstSize:         200,
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeConfigLoad, "config",
			fmt.Sprintf("failed to read config file %s", filename))
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeConfigLoad, "config",
			fmt.Sprintf("failed to parse config file %s", filename))
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeConfigLoad, "config", "invalid configuration")
	}

	return config, nil
}

// applyEnvOverrides overrides settings from environment variables
func applyEnvOverrides(config *Config) {
	if listen := os.Getenv("MXROUTER_LISTEN"); listen != "" {
		config.Listen = listen
	}
	if logLevel := os.Getenv("MXROUTER_LOG_LEVEL"); logLevel != "" {
		config.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("MXROUTER_LOG_FORMAT"); logFormat != "" {
		config.Logging.Format = logFormat
	}
}

// Validate validates the configuration for correctness
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address cannot be empty")
	}

	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl cannot be negative: %d", c.CacheTTL)
	}

	if c.ClientTimeout < 0 {
		return fmt.Errorf("client_timeout cannot be negative: %d", c.ClientTimeout)
	}

	if len(c.Groups) == 0 {
		return fmt.Errorf("at least one group must be configured")
	}

	groupNames := make(map[string]bool)
	totalServers := 0
	for i, group := range c.Groups {
		if group.Name == "" {
			return fmt.Errorf("groups[%d]: name cannot be empty", i)
		}
		if groupNames[group.Name] {
			return fmt.Errorf("groups[%d]: duplicate group name '%s'", i, group.Name)
		}
		groupNames[group.Name] = true

		serverNames := make(map[string]bool)
		for j, server := range group.Servers {
			if server.Name == "" {
				return fmt.Errorf("groups[%d].servers[%d]: name cannot be empty", i, j)
			}
			if serverNames[server.Name] {
				return fmt.Errorf("group '%s': duplicate server name '%s'", group.Name, server.Name)
			}
			serverNames[server.Name] = true

			if server.Address == "" {
				return fmt.Errorf("group '%s': server '%s' has no address", group.Name, server.Name)
			}
			if server.Weight < 0 {
				return fmt.Errorf("group '%s': server '%s' has negative weight %d", group.Name, server.Name, server.Weight)
			}
			totalServers++
		}
	}

	if totalServers == 0 {
		return fmt.Errorf("no servers configured in any group")
	}

	for i, rule := range c.Rules {
		if rule.Pattern == "" {
			return fmt.Errorf("rules[%d]: pattern cannot be empty", i)
		}
		if !groupNames[rule.Group] {
			return fmt.Errorf("rules[%d]: pattern '%s' references undefined group '%s'", i, rule.Pattern, rule.Group)
		}
	}

	if c.DefaultGroup != "" && !groupNames[c.DefaultGroup] {
		return fmt.Errorf("default_group '%s' is not defined", c.DefaultGroup)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limit.requests_per_second must be positive")
		}
		if c.RateLimit.BurstSize <= 0 {
			return fmt.Errorf("rate_limit.burst_size must be positive")
		}
	}

	if c.Admin.Enabled && c.Admin.Listen == "" {
		return fmt.Errorf("admin.listen cannot be empty when admin is enabled")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	validOutputs := map[string]bool{"stdout": true, "stderr": true, "file": true}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("invalid log output: %s", c.Logging.Output)
	}

	return nil
}

// ToRegistry builds the immutable routing registry from the validated
// configuration. Registry construction re-checks the structural
// invariants, so an invalid configuration can never begin serving.
func (c *Config) ToRegistry() (*domain.Registry, error) {
	groups := make([]*domain.Group, len(c.Groups))
	for i, gc := range c.Groups {
		group := &domain.Group{Name: gc.Name}
		for _, sc := range gc.Servers {
			group.Servers = append(group.Servers, &domain.Server{
				Name:    sc.Name,
				Address: sc.Address,
				Weight:  sc.Weight,
			})
		}
		groups[i] = group
	}

	rules := make([]domain.Rule, len(c.Rules))
	for i, rc := range c.Rules {
		rules[i] = domain.Rule{Pattern: rc.Pattern, Group: rc.Group}
	}

	return domain.NewRegistry(groups, rules, c.DefaultGroup, c.AlwaysResolve)
}

// CacheTTLDuration returns the MX cache TTL; 0 disables caching.
func (c *Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// ClientTimeoutDuration returns the connection inactivity timeout; 0
// disables the idle deadline.
func (c *Config) ClientTimeoutDuration() time.Duration {
	return time.Duration(c.ClientTimeout) * time.Second
}

// StatsIntervalDuration returns the periodic stats logging interval; 0
// disables periodic reporting.
func (c *Config) StatsIntervalDuration() time.Duration {
	return time.Duration(c.StatsInterval) * time.Second
}
