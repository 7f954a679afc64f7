package handshake

import (
	"errors"
	"fmt"
)

// ErrDeviceNotFound is returned by Finder implementations when no device
// matches the presented public key
var ErrDeviceNotFound = errors.New("device not found")

// Kind classifies why a handshake attempt failed
type Kind int

const (
	// KindTimeout means the deadline elapsed before the exchange finished
	KindTimeout Kind = iota
	// KindBadSequence means a message arrived out of protocol order
	KindBadSequence
	// KindBadFormat means a message was not decodable or missed required fields
	KindBadFormat
	// KindBadSignature means the device failed the challenge
	KindBadSignature
	// KindDeviceNotFound means the presented public key resolved to nothing
	KindDeviceNotFound
	// KindConnectionClosed means the transport ended mid-handshake
	KindConnectionClosed
	// KindTransport means a write to the transport failed
	KindTransport
)

// String returns the failure kind's wire-level description
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "handshake timeout"
	case KindBadSequence:
		return "bad sequence"
	case KindBadFormat:
		return "bad format"
	case KindBadSignature:
		return "bad signature"
	case KindDeviceNotFound:
		return "device not found"
	case KindConnectionClosed:
		return "connection closed during handshake"
	case KindTransport:
		return "transport error"
	default:
		return "unknown handshake failure"
	}
}

// Error is a terminal handshake failure
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Detail != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

func failed(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func failedErr(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the failure kind from an error chain; ok is false when the
// error is not a handshake failure
func KindOf(err error) (Kind, bool) {
	var hsErr *Error
	if errors.As(err, &hsErr) {
		return hsErr.Kind, true
	}
	return 0, false
}
