package handshake

import "context"

// Device is the identity record the lookup capability resolves. The engine
// never stores it; it lives only for the duration of one handshake attempt.
type Device struct {
	ID         string
	PublicKey  string
	PrivateKey string
}

// Finder resolves a device by its public key. Implementations return
// ErrDeviceNotFound (possibly wrapped) when no device matches.
type Finder interface {
	FindDevice(ctx context.Context, publicKey string) (*Device, error)
}

// FinderFunc adapts a function to the Finder interface
type FinderFunc func(ctx context.Context, publicKey string) (*Device, error)

// FindDevice calls f
func (f FinderFunc) FindDevice(ctx context.Context, publicKey string) (*Device, error) {
	return f(ctx, publicKey)
}
