// Package handshake implements the challenge-response authentication exchange
// that precedes all session traffic on a device connection.
//
// The exchange is hello -> challenge -> authenticate -> welcome. The device
// opens with its public key, the server answers with a random nonce, and the
// device proves possession of its private key by returning the keyed
// signature of that nonce. Any out-of-sequence, malformed, or unverifiable
// message fails the whole attempt; the machine never retries.
package handshake

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/codefionn/devicelink/internal/logger"
	"github.com/codefionn/devicelink/internal/signature"
	"github.com/codefionn/devicelink/internal/transport"
	"github.com/codefionn/devicelink/internal/wire"
)

// Options configures one handshake attempt
type Options struct {
	Timeout   time.Duration
	Algorithm string
	NonceSize int
}

// state of the exchange
type state int

const (
	awaitHello state = iota
	awaitAuthenticate
)

// Run drives the authentication exchange on t until it concludes. It returns
// the authenticated device id, or an *Error describing the terminal failure.
//
// Run is the only reader of the transport while it executes and has released
// it by the time it returns, so a successful attempt hands the caller a
// transport with no residual observers.
func Run(ctx context.Context, t transport.Transport, finder Finder, opts Options) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var (
		current  state
		expected string
		deviceID string
	)

	for {
		select {
		case frame, ok := <-t.Frames():
			if !ok {
				return "", failed(KindConnectionClosed, "")
			}
			if frame.Kind == transport.FramePing {
				continue
			}

			msg, err := wire.Decode(frame.Data)
			if err != nil {
				return "", failedErr(KindBadFormat, err)
			}

			switch current {
			case awaitHello:
				if err := checkHello(msg); err != nil {
					return "", err
				}

				device, err := finder.FindDevice(ctx, msg.PublicKey)
				if err != nil || device == nil {
					logger.Debug("Handshake lookup failed for public key %q: %v", msg.PublicKey, err)
					return "", failedErr(KindDeviceNotFound, err)
				}

				nonce, err := newNonce(opts.NonceSize)
				if err != nil {
					return "", failedErr(KindTransport, err)
				}
				expected, err = signature.Sign([]byte(device.PrivateKey), []byte(nonce), opts.Algorithm)
				if err != nil {
					return "", failedErr(KindTransport, err)
				}

				if err := send(t, &wire.Message{Type: wire.TypeChallenge, Nonce: nonce}); err != nil {
					return "", err
				}

				deviceID = device.ID
				current = awaitAuthenticate

			case awaitAuthenticate:
				if err := checkAuthenticate(msg); err != nil {
					return "", err
				}

				if !signature.Equal(msg.Sign, expected) {
					return "", failed(KindBadSignature, fmt.Sprintf("device %s", deviceID))
				}

				if err := send(t, &wire.Message{Type: wire.TypeWelcome}); err != nil {
					return "", err
				}
				return deviceID, nil
			}

		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return "", failed(KindTimeout, "")
			}
			return "", failedErr(KindConnectionClosed, ctx.Err())
		}
	}
}

func checkHello(msg *wire.Message) *Error {
	switch msg.Type {
	case wire.TypeHello:
		if msg.PublicKey == "" {
			return failed(KindBadFormat, "hello without public_key")
		}
		return nil
	case wire.TypeAuthenticate:
		return failed(KindBadSequence, "authenticate before challenge")
	default:
		return failed(KindBadSequence, fmt.Sprintf("unexpected %q", msg.Type))
	}
}

func checkAuthenticate(msg *wire.Message) *Error {
	switch msg.Type {
	case wire.TypeAuthenticate:
		if msg.Sign == "" {
			return failed(KindBadFormat, "authenticate without sign")
		}
		return nil
	case wire.TypeHello:
		return failed(KindBadSequence, "second hello")
	default:
		return failed(KindBadSequence, fmt.Sprintf("unexpected %q", msg.Type))
	}
}

func send(t transport.Transport, msg *wire.Message) *Error {
	data, err := msg.Encode()
	if err != nil {
		return failedErr(KindTransport, err)
	}
	if err := t.Send(data); err != nil {
		return failedErr(KindTransport, err)
	}
	return nil
}

func newNonce(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
