package bili

import (
	"errors"
	"fmt"
)

// ErrNoArtifact means the requested derived data (summary, subtitles)
// legitimately does not exist for this video. It is a sentinel, not a
// failure: callers should render "nothing available" rather than an error.
var ErrNoArtifact = errors.New("no derived artifact available")

// TransportError is a connection- or HTTP-level failure: dial errors,
// timeouts, non-2xx status codes. The dispatcher retries these.
type TransportError struct {
	Status int // 0 when the request never got a response
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %v", e.Err)
	}
	return fmt.Sprintf("transport: HTTP %d", e.Status)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BusinessError is a non-zero upstream status code delivered inside an
// HTTP 200 envelope. Codes outside the retryable set are terminal: the
// request shape or content state is wrong and retrying cannot fix it.
type BusinessError struct {
	Code    int
	Message string
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("upstream code %d: %s", e.Code, e.Message)
}

// AuthError is the subset of business codes meaning the credential is
// missing or rejected. Never retried; surfaced distinctly so the caller
// can prompt for re-authentication.
type AuthError struct {
	Code    int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication required (code %d): %s", e.Code, e.Message)
}

// MalformedResponseError means the upstream body did not match the
// {code, message, data} envelope (or an endpoint-specific data shape).
type MalformedResponseError struct {
	Endpoint string
	Err      error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s: %v", e.Endpoint, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
