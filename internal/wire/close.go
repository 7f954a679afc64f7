package wire

// WebSocket close codes the protocol distinguishes. Everything else is
// reported as-is or as UNKNOWN.
const (
	CloseCodeNormal   = 1000
	CloseCodeAbnormal = 1006
)

// Normalized close reasons
const (
	ReasonClosed  = "CLOSED"
	ReasonKilled  = "KILLED"
	ReasonUnknown = "UNKNOWN"
)

// CloseReason normalizes a transport close into a human-readable reason.
// A reason supplied by the peer wins over the code mapping.
func CloseReason(code int, reason string) string {
	if reason != "" {
		return reason
	}
	switch code {
	case CloseCodeNormal:
		return ReasonClosed
	case CloseCodeAbnormal:
		return ReasonKilled
	default:
		return ReasonUnknown
	}
}
