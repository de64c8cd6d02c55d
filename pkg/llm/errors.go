package llm

import "errors"

// ErrUnrecognizedResponse is returned when a response body carries none of
// the known reply shapes.
var ErrUnrecognizedResponse = errors.New("unrecognized response format")
