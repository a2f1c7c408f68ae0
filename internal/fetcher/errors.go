package fetcher

import (
	"errors"
	"fmt"
)

// Failure kinds. Match them with errors.Is on the error returned by Resolve.
var (
	ErrInvalidURL = errors.New("invalid url")
	ErrTransport  = errors.New("transport failed")
	ErrStatus     = errors.New("unexpected status")
	ErrDecode     = errors.New("undecodable payload")
	ErrCanceled   = errors.New("fetch canceled")
)

// Outcome labels used in logs and metrics.
const (
	OutcomeHit        = "hit"
	OutcomeFetched    = "fetched"
	OutcomeInvalidURL = "invalid_url"
	OutcomeTransport  = "transport_error"
	OutcomeStatus     = "bad_status"
	OutcomeDecode     = "decode_error"
	OutcomeCanceled   = "canceled"
)

// FetchError 保留失败类别，便于日志/指标区分，同时对调用方统一表现为 absent。
type FetchError struct {
	Kind       error
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: %v: %d", e.URL, e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Kind)
	}
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// OutcomeOf maps a Resolve error to its outcome label. A nil error means the
// bytes were fetched from the network.
func OutcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeFetched
	case errors.Is(err, ErrInvalidURL):
		return OutcomeInvalidURL
	case errors.Is(err, ErrStatus):
		return OutcomeStatus
	case errors.Is(err, ErrDecode):
		return OutcomeDecode
	case errors.Is(err, ErrCanceled):
		return OutcomeCanceled
	default:
		return OutcomeTransport
	}
}

func newFetchError(kind error, rawURL string, err error) *FetchError {
	return &FetchError{Kind: kind, URL: rawURL, Err: err}
}
