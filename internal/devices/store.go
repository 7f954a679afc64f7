// Package devices provides an in-memory device registry backed by a JSON
// file, used as the handshake lookup capability.
package devices

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/codefionn/devicelink/internal/handshake"
	"github.com/codefionn/devicelink/internal/logger"
)

// record is the on-disk shape of one device
type record struct {
	ID         string `json:"id"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// Store holds devices indexed by public key. It implements handshake.Finder.
type Store struct {
	mu          sync.RWMutex
	byPublicKey map[string]handshake.Device
}

// NewStore creates an empty device store
func NewStore() *Store {
	return &Store{byPublicKey: make(map[string]handshake.Device)}
}

// LoadFile reads a JSON array of device records into a new store
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read devices file: %w", err)
	}

	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse devices file: %w", err)
	}

	store := NewStore()
	for _, r := range records {
		if r.ID == "" || r.PublicKey == "" {
			return nil, fmt.Errorf("device record missing id or public_key")
		}
		store.Add(handshake.Device{
			ID:         r.ID,
			PublicKey:  r.PublicKey,
			PrivateKey: r.PrivateKey,
		})
	}

	logger.Info("Loaded %d devices from %s", store.Len(), path)
	return store, nil
}

// Add inserts or replaces a device
func (s *Store) Add(device handshake.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPublicKey[device.PublicKey] = device
}

// Remove deletes the device with the given public key
func (s *Store) Remove(publicKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byPublicKey, publicKey)
}

// Len reports the number of registered devices
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byPublicKey)
}

// FindDevice implements handshake.Finder
func (s *Store) FindDevice(_ context.Context, publicKey string) (*handshake.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	device, ok := s.byPublicKey[publicKey]
	if !ok {
		return nil, handshake.ErrDeviceNotFound
	}
	return &device, nil
}
