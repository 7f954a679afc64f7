package wire

import "fmt"

// CodeOK is the response code devices send on success
const CodeOK = 0

// responseReasons maps the device error codes to their reasons. Codes outside
// the table are reported as UNKNOWN.
var responseReasons = map[int]string{
	1: "ERROR",
	2: "NOT SUPPORTED",
	3: "NOT SELECTED",
	4: "NOT AVAILABLE",
}

// ResponseError is a non-zero application response code returned by a device
type ResponseError struct {
	Code   int
	Reason string
}

// NewResponseError maps a non-zero response code to a ResponseError
func NewResponseError(code int) *ResponseError {
	reason, ok := responseReasons[code]
	if !ok {
		reason = ReasonUnknown
	}
	return &ResponseError{Code: code, Reason: reason}
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("device responded %s (code %d)", e.Reason, e.Code)
}
