package vinted

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying rejected fetches. All of them are non-fatal
// to the monitoring loop; a cycle that hits one simply yields no listings
// and the next cycle tries again.
var (
	// ErrThrottled means the remote API answered 429.
	ErrThrottled = errors.New("vinted: throttled by remote")
	// ErrForbidden means the remote API answered 403 and the session was
	// forcibly refreshed.
	ErrForbidden = errors.New("vinted: forbidden")
	// ErrMalformed means the remote API answered 200 with a body that did
	// not decode. The remote is misbehaving, so it classifies as "remote".
	ErrMalformed = errors.New("vinted: malformed response")
)

// RemoteError reports an unexpected response status from the catalog API.
type RemoteError struct {
	Status int
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("vinted: remote error: status %d", e.Status)
}

// Classify maps a Search error to a short label for logs and metrics.
func Classify(err error) string {
	var remote *RemoteError
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrThrottled):
		return "throttled"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrMalformed):
		return "remote"
	case errors.As(err, &remote):
		return "remote"
	default:
		return "transport"
	}
}
