package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 7000, cfg.Listen.Port)
	assert.Equal(t, "/", cfg.Listen.Path)
	assert.Equal(t, "sha1", cfg.Handshake.Algorithm)
	assert.Equal(t, 24, cfg.Handshake.NonceSize)
	assert.Equal(t, 90*time.Second, cfg.HandshakeTimeout())
	assert.Equal(t, 12*time.Minute, cfg.ConnectionTimeout())
	assert.Equal(t, time.Minute, cfg.MessageTimeout())
	assert.Equal(t, 256, cfg.Connections.Messages.QueueLimit)
}

func TestLoadSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := DefaultConfig()
	cfg.Listen.Port = 7777
	cfg.Handshake.Algorithm = "sha256"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7777, loaded.Listen.Port)
	assert.Equal(t, "sha256", loaded.Handshake.Algorithm)
	// untouched fields keep defaults
	assert.Equal(t, 256, loaded.Connections.Messages.QueueLimit)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"listen":{"port":9001,"path":"/devices"}}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Listen.Port)
	assert.Equal(t, "/devices", cfg.Listen.Path)
	assert.Equal(t, 90000, cfg.Handshake.TimeoutMS)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero handshake timeout", func(c *Config) { c.Handshake.TimeoutMS = 0 }},
		{"unknown algorithm", func(c *Config) { c.Handshake.Algorithm = "md5" }},
		{"zero nonce size", func(c *Config) { c.Handshake.NonceSize = 0 }},
		{"negative connection timeout", func(c *Config) { c.Connections.TimeoutMS = -1 }},
		{"zero message timeout", func(c *Config) { c.Connections.Messages.TimeoutMS = 0 }},
		{"zero queue limit", func(c *Config) { c.Connections.Messages.QueueLimit = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
