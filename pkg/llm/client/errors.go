package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/papercomputeco/streamchat/pkg/stream"
)

// ErrUnreachable wraps failures to connect to the LLM endpoint.
var ErrUnreachable = errors.New("cannot reach LLM endpoint")

// StatusError is a TransportError with a human-readable hint. It unwraps to
// the *stream.TransportError.
type StatusError struct {
	Hint      string
	Transport *stream.TransportError
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.Hint, e.Transport.Error())
}

func (e *StatusError) Unwrap() error {
	return e.Transport
}

// describeStatus wraps a transport error with a hint for the common
// upstream statuses. Other errors pass through.
func describeStatus(err error) error {
	var terr *stream.TransportError
	if !errors.As(err, &terr) {
		return err
	}

	var hint string
	switch terr.StatusCode {
	case http.StatusUnauthorized:
		hint = "invalid API key, check the llm.api_key setting"
	case http.StatusForbidden:
		hint = "access denied, check the account's permissions and quota"
	case http.StatusTooManyRequests:
		hint = "too many requests, try again later"
	case http.StatusInternalServerError:
		hint = "the LLM service had an internal error"
	default:
		hint = fmt.Sprintf("LLM request failed (%d)", terr.StatusCode)
	}
	return &StatusError{Hint: hint, Transport: terr}
}
