package session

import "time"

// matchKey pairs the fields responses are correlated on. Devices answer with
// type and key but not the request id, so pending requests are indexed both
// by slot and by (type, key).
type matchKey struct {
	msgType string
	key     string
}

// outcome is what a Send caller eventually receives
type outcome struct {
	payload map[string]interface{}
	err     error
}

// pendingRequest is one occupied slot of the in-flight ring. All fields are
// guarded by the session mutex; done is buffered so resolution never blocks.
type pendingRequest struct {
	id      int
	msgType string
	key     string

	acked    bool
	resolved bool

	// gen invalidates a timer firing that lost the race against the event it
	// was guarding (ack arrival, response arrival, teardown).
	gen   int
	timer *time.Timer

	done chan outcome
}
