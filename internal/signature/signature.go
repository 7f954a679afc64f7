// Package signature computes the keyed message signatures exchanged during
// the device handshake. The server and the device compute the same HMAC over
// the handshake nonce; equality proves possession of the shared private key.
package signature

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Supported algorithm names
const (
	AlgorithmSHA1    = "sha1"
	AlgorithmSHA256  = "sha256"
	AlgorithmSHA512  = "sha512"
	AlgorithmSHA3    = "sha3-256"
	AlgorithmBlake2b = "blake2b-256"
	DefaultAlgorithm = AlgorithmSHA1
)

func newHash(algorithm string) (func() hash.Hash, error) {
	switch algorithm {
	case AlgorithmSHA1:
		return sha1.New, nil
	case AlgorithmSHA256:
		return sha256.New, nil
	case AlgorithmSHA512:
		return sha512.New, nil
	case AlgorithmSHA3:
		return sha3.New256, nil
	case AlgorithmBlake2b:
		return func() hash.Hash {
			h, _ := blake2b.New256(nil)
			return h
		}, nil
	default:
		return nil, fmt.Errorf("unsupported signature algorithm %q", algorithm)
	}
}

// Supported reports whether algorithm names a usable hash
func Supported(algorithm string) bool {
	_, err := newHash(algorithm)
	return err == nil
}

// Sign computes the base64-encoded HMAC of message under secret
func Sign(secret, message []byte, algorithm string) (string, error) {
	h, err := newHash(algorithm)
	if err != nil {
		return "", err
	}

	mac := hmac.New(h, secret)
	mac.Write(message)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Equal compares two signatures in constant time
func Equal(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
