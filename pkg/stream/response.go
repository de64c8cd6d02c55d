package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 64 * 1024

// TransportError is returned when the upstream answers with a non-success
// status. Body holds the response text so callers can surface the upstream's
// own message.
type TransportError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *TransportError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("upstream returned %s", e.statusText())
	}
	return fmt.Sprintf("upstream returned %s: %s", e.statusText(), body)
}

func (e *TransportError) statusText() string {
	if e.Status != "" {
		return e.Status
	}
	return fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// CheckResponse returns a *TransportError for any status outside 2xx. The
// body is read (up to 64 KiB) and closed in that case.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &TransportError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
	}
}

// FromResponse validates resp and returns a Decoder over its body, using the
// charset named in its Content-Type. Options given here win over the
// derived encoding.
func FromResponse(resp *http.Response, opts ...Option) (*Decoder, error) {
	if err := CheckResponse(resp); err != nil {
		return nil, err
	}

	enc := EncodingFromContentType(resp.Header.Get("Content-Type"))
	return NewDecoder(resp.Body, append([]Option{WithEncoding(enc)}, opts...)...), nil
}

// DrainResponse decodes resp into sink. A non-success status is reported
// through sink.OnError without any fragments.
func DrainResponse(ctx context.Context, resp *http.Response, sink Sink, opts ...Option) error {
	d, err := FromResponse(resp, opts...)
	if err != nil {
		sink.OnError(err)
		return err
	}
	return d.Drain(ctx, sink)
}
