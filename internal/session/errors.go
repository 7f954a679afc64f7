package session

import "errors"

// Outcomes a Send caller can receive besides a device response
var (
	// ErrQueueFull means the in-flight request ring is saturated; retry after
	// a pending request resolves.
	ErrQueueFull = errors.New("message queue is full")
	// ErrAckTimeout means the device never acknowledged receipt
	ErrAckTimeout = errors.New("ack timeout")
	// ErrResponseTimeout means the device acknowledged but never responded
	ErrResponseTimeout = errors.New("response timeout")
	// ErrConnectionClosed means the connection ended while the request was in
	// flight, or before it could be sent
	ErrConnectionClosed = errors.New("connection closed")
)
