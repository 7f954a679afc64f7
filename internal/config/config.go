package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/codefionn/devicelink/internal/signature"
)

// Durations are stored as millisecond integers in the config file; the
// accessors below convert them.

// HandshakeConfig controls the challenge-response authentication exchange
type HandshakeConfig struct {
	TimeoutMS int    `json:"timeout_ms"`
	Algorithm string `json:"algorithm"`
	NonceSize int    `json:"nonce_size"`
}

// MessagesConfig controls the per-connection request queue
type MessagesConfig struct {
	TimeoutMS  int `json:"timeout_ms"`
	QueueLimit int `json:"queue_limit"`
}

// ConnectionsConfig controls established device connections
type ConnectionsConfig struct {
	TimeoutMS int            `json:"timeout_ms"`
	Messages  MessagesConfig `json:"messages"`
}

// ListenConfig controls the WebSocket listener
type ListenConfig struct {
	Port int    `json:"port"`
	Path string `json:"path"`
}

// Config represents application configuration
type Config struct {
	Listen      ListenConfig      `json:"listen"`
	Handshake   HandshakeConfig   `json:"handshake"`
	Connections ConnectionsConfig `json:"connections"`
	LogLevel    string            `json:"log_level"` // debug, info, warn, error, none
	DevicesPath string            `json:"devices_path,omitempty"`
}

// DefaultConfig returns a configuration with the protocol defaults
func DefaultConfig() *Config {
	return &Config{
		Listen: ListenConfig{
			Port: 7000,
			Path: "/",
		},
		Handshake: HandshakeConfig{
			TimeoutMS: 90000,
			Algorithm: signature.DefaultAlgorithm,
			NonceSize: 24,
		},
		Connections: ConnectionsConfig{
			TimeoutMS: 720000,
			Messages: MessagesConfig{
				TimeoutMS:  60000,
				QueueLimit: 256,
			},
		},
		LogLevel: "info",
	}
}

// Load reads a configuration file, filling unset fields with defaults
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks the configuration for values the engine cannot run with
func (c *Config) Validate() error {
	if c.Handshake.TimeoutMS <= 0 {
		return fmt.Errorf("handshake timeout must be positive, got %d", c.Handshake.TimeoutMS)
	}
	if !signature.Supported(c.Handshake.Algorithm) {
		return fmt.Errorf("unsupported handshake algorithm %q", c.Handshake.Algorithm)
	}
	if c.Handshake.NonceSize <= 0 {
		return fmt.Errorf("handshake nonce size must be positive, got %d", c.Handshake.NonceSize)
	}
	if c.Connections.TimeoutMS <= 0 {
		return fmt.Errorf("connection timeout must be positive, got %d", c.Connections.TimeoutMS)
	}
	if c.Connections.Messages.TimeoutMS <= 0 {
		return fmt.Errorf("message timeout must be positive, got %d", c.Connections.Messages.TimeoutMS)
	}
	if c.Connections.Messages.QueueLimit <= 0 {
		return fmt.Errorf("message queue limit must be positive, got %d", c.Connections.Messages.QueueLimit)
	}
	return nil
}

// HandshakeTimeout returns the handshake deadline as a duration
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Handshake.TimeoutMS) * time.Millisecond
}

// ConnectionTimeout returns the idle timeout as a duration
func (c *Config) ConnectionTimeout() time.Duration {
	return time.Duration(c.Connections.TimeoutMS) * time.Millisecond
}

// MessageTimeout returns the ack/response timeout as a duration
func (c *Config) MessageTimeout() time.Duration {
	return time.Duration(c.Connections.Messages.TimeoutMS) * time.Millisecond
}
