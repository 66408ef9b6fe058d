/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package config provides configuration management for kafkad.

CONFIGURATION SOURCES (in order of precedence):
===============================================
1. Environment variables
2. A .env file in the working directory (never overrides the environment)
3. Configuration file (TOML format)
4. Default values (lowest priority)

EXAMPLE CONFIGURATION FILE:
===========================

	host = "0.0.0.0"
	port = 9092
	client_drain_timeout_secs = 5
	log_level = "info"

	[[topics]]
	name = "orders"
	partitions = 3

	[metrics]
	enabled = true
	addr = ":9100"

ENVIRONMENT VARIABLES:
======================
SERVER_HOST, SERVER_PORT and CLIENT_DRAIN_TIMEOUT_SECS cover the listener
and shutdown. The remaining variables are listed with the Env constants.
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment variable names
const (
	EnvHost         = "SERVER_HOST"
	EnvPort         = "SERVER_PORT"
	EnvDrainTimeout = "CLIENT_DRAIN_TIMEOUT_SECS"

	EnvIdleTimeout     = "IDLE_TIMEOUT_SECS"
	EnvMaxRequestBytes = "MAX_REQUEST_BYTES"
	EnvNodeID          = "BROKER_NODE_ID"
	EnvAdvertisedHost  = "BROKER_ADVERTISED_HOST"
	EnvClusterID       = "BROKER_CLUSTER_ID"
	EnvTopics          = "BROKER_TOPICS" // name[:partitions],...

	EnvLogLevel = "LOG_LEVEL"
	EnvLogJSON  = "LOG_JSON"

	EnvMetricsEnabled = "METRICS_ENABLED"
	EnvMetricsAddr    = "METRICS_ADDR"
)

// DefaultDotEnvFile is read at startup when present.
const DefaultDotEnvFile = ".env"

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"` // Enable Prometheus metrics
	Addr    string `toml:"addr" json:"addr"`       // Metrics HTTP server address
}

// TopicConfig declares a topic registered at startup.
type TopicConfig struct {
	Name       string `toml:"name" json:"name"`
	Partitions int32  `toml:"partitions" json:"partitions"`
}

// Config holds the configuration for kafkad.
type Config struct {
	// Listener
	Host string `toml:"host" json:"host"`
	Port int    `toml:"port" json:"port"`

	// Sessions
	DrainTimeoutSecs int64 `toml:"client_drain_timeout_secs" json:"client_drain_timeout_secs"` // Grace period for sessions at shutdown
	IdleTimeoutSecs  int64 `toml:"idle_timeout_secs" json:"idle_timeout_secs"`                 // Read deadline per request, 0 disables
	MaxRequestBytes  int32 `toml:"max_request_bytes" json:"max_request_bytes"`                 // Largest accepted message_size

	// Broker identity
	NodeID         int32         `toml:"node_id" json:"node_id"`
	AdvertisedHost string        `toml:"advertised_host" json:"advertised_host"` // Host reported in Metadata (derived from Host if empty)
	ClusterID      string        `toml:"cluster_id" json:"cluster_id"`
	Topics         []TopicConfig `toml:"topics" json:"topics"`

	// Logging
	LogLevel string `toml:"log_level" json:"log_level"`
	LogJSON  bool   `toml:"log_json" json:"log_json"`

	// Observability
	Metrics MetricsConfig `toml:"metrics" json:"metrics"`

	// Metadata
	ConfigFile string `toml:"-" json:"-"`
}

// DefaultConfig returns defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:             "127.0.0.1",
		Port:             9092,
		DrainTimeoutSecs: 5,
		IdleTimeoutSecs:  300,
		MaxRequestBytes:  100 * 1024 * 1024,
		NodeID:           1,
		ClusterID:        "kafkad",
		LogLevel:         "info",
		LogJSON:          true,
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9100",
		},
	}
}

// Manager handles configuration loading.
type Manager struct {
	config *Config
	mu     sync.RWMutex
}

var globalManager = &Manager{
	config: DefaultConfig(),
}

// Global returns the global manager.
func Global() *Manager {
	return globalManager
}

// NewManager returns a manager holding the defaults.
func NewManager() *Manager {
	return &Manager{config: DefaultConfig()}
}

// Get returns a copy of current config.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	cfg.Topics = append([]TopicConfig(nil), m.config.Topics...)
	return &cfg
}

// Set updates the config.
func (m *Manager) Set(cfg *Config) {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
}

// LoadFromFile loads configuration from a TOML file on top of the defaults.
func (m *Manager) LoadFromFile(path string) error {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("load config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	cfg.ConfigFile = path
	m.Set(cfg)
	return nil
}

// LoadDotEnv copies variables from a .env file into the process
// environment without overriding variables that are already set. A missing
// file is not an error; loaded reports whether the file existed.
func LoadDotEnv(path string) (loaded bool, err error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := godotenv.Load(path); err != nil {
		return false, fmt.Errorf("load %s: %w", path, err)
	}
	return true, nil
}

// LoadFromEnv loads configuration from environment variables.
func (m *Manager) LoadFromEnv() error {
	cfg := m.Get()
	var errs []error

	if v := os.Getenv(EnvHost); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Port = i
		} else {
			errs = append(errs, fmt.Errorf("%s: %w", EnvPort, err))
		}
	}
	if v := os.Getenv(EnvDrainTimeout); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.DrainTimeoutSecs = i
		} else {
			errs = append(errs, fmt.Errorf("%s: %w", EnvDrainTimeout, err))
		}
	}
	if v := os.Getenv(EnvIdleTimeout); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.IdleTimeoutSecs = i
		} else {
			errs = append(errs, fmt.Errorf("%s: %w", EnvIdleTimeout, err))
		}
	}
	if v := os.Getenv(EnvMaxRequestBytes); v != "" {
		if i, err := strconv.ParseInt(v, 10, 32); err == nil {
			cfg.MaxRequestBytes = int32(i)
		} else {
			errs = append(errs, fmt.Errorf("%s: %w", EnvMaxRequestBytes, err))
		}
	}
	if v := os.Getenv(EnvNodeID); v != "" {
		if i, err := strconv.ParseInt(v, 10, 32); err == nil {
			cfg.NodeID = int32(i)
		} else {
			errs = append(errs, fmt.Errorf("%s: %w", EnvNodeID, err))
		}
	}
	if v := os.Getenv(EnvAdvertisedHost); v != "" {
		cfg.AdvertisedHost = v
	}
	if v := os.Getenv(EnvClusterID); v != "" {
		cfg.ClusterID = v
	}
	if v := os.Getenv(EnvTopics); v != "" {
		topics, err := ParseTopics(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvTopics, err))
		} else {
			cfg.Topics = append(cfg.Topics, topics...)
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvLogJSON); v != "" {
		cfg.LogJSON = parseBool(v)
	}
	if v := os.Getenv(EnvMetricsEnabled); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		cfg.Metrics.Addr = v
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	m.Set(cfg)
	return nil
}

// ParseTopics parses "name[:partitions],..." into topic declarations.
// Partitions default to 1.
func ParseTopics(s string) ([]TopicConfig, error) {
	var topics []TopicConfig
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, count, found := strings.Cut(part, ":")
		tc := TopicConfig{Name: strings.TrimSpace(name), Partitions: 1}
		if found {
			n, err := strconv.ParseInt(strings.TrimSpace(count), 10, 32)
			if err != nil {
				return nil, fmt.Errorf("topic %q: invalid partition count %q", tc.Name, count)
			}
			tc.Partitions = int32(n)
		}
		topics = append(topics, tc)
	}
	return topics, nil
}

func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes"
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", c.Port)
	}
	if c.DrainTimeoutSecs < 0 {
		return fmt.Errorf("client_drain_timeout_secs must not be negative, got %d", c.DrainTimeoutSecs)
	}
	if c.IdleTimeoutSecs < 0 {
		return fmt.Errorf("idle_timeout_secs must not be negative, got %d", c.IdleTimeoutSecs)
	}
	// The smallest useful frame holds a v0 header.
	if c.MaxRequestBytes < 8 {
		return fmt.Errorf("max_request_bytes must be at least 8, got %d", c.MaxRequestBytes)
	}
	if c.NodeID < 0 {
		return fmt.Errorf("node_id must not be negative, got %d", c.NodeID)
	}
	seen := make(map[string]bool, len(c.Topics))
	for _, t := range c.Topics {
		if t.Name == "" {
			return fmt.Errorf("topics: name is required")
		}
		if t.Partitions < 1 {
			return fmt.Errorf("topics: %s: partitions must be at least 1, got %d", t.Name, t.Partitions)
		}
		if seen[t.Name] {
			return fmt.Errorf("topics: %s declared twice", t.Name)
		}
		seen[t.Name] = true
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

// BindAddr returns the listen address.
func (c *Config) BindAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DrainTimeout returns the shutdown grace period.
func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.DrainTimeoutSecs) * time.Second
}

// IdleTimeout returns the per-request read deadline, 0 when disabled.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSecs) * time.Second
}

// GetAdvertisedHost returns the host clients should connect to. If not
// explicitly set it is the listen host, with wildcard hosts replaced by a
// detected local address.
func (c *Config) GetAdvertisedHost() string {
	if c.AdvertisedHost != "" {
		return c.AdvertisedHost
	}
	if c.Host == "" || c.Host == "0.0.0.0" || c.Host == "::" {
		if ip := detectLocalIP(); ip != "" {
			return ip
		}
	}
	return c.Host
}

// detectLocalIP attempts to detect the local IP address.
// It prefers non-loopback IPv4 addresses.
func detectLocalIP() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return ""
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip != nil && ip.To4() != nil && !ip.IsLoopback() {
				return ip.String()
			}
		}
	}

	return ""
}
