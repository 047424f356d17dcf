package post

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL is returned when a URL matches none of a platform's
	// patterns.
	ErrInvalidURL = errors.New("invalid or unsupported URL")

	// ErrFetch is matched by every FetchError.
	ErrFetch = errors.New("fetch failed")

	// ErrBlocked is matched by every BlockedError. Batch callers abort on it
	// rather than continuing to hit a backend that refuses them.
	ErrBlocked = errors.New("service unavailable or authentication required")

	// ErrNoContent is matched by every NoContentError.
	ErrNoContent = errors.New("no content extracted")
)

// FetchError is a transport-level failure: a network error or a non-2xx
// response without a recognizable body.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("fetch %s: HTTP %d: %v", e.URL, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Status)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFetch}
	}
	return []error{ErrFetch, e.Err}
}

// Reasons for a BlockedError.
const (
	ReasonErrorPage     = "platform error page"
	ReasonEmptyShell    = "empty page"
	ReasonLoginRequired = "login required"
	ReasonMembersOnly   = "members only"
)

// BlockedError means the platform answered but refused to serve the content:
// an explicit error page, a near-empty shell or a login wall.
type BlockedError struct {
	URL    string
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s: %s", e.URL, e.Reason)
}

func (e *BlockedError) Unwrap() error {
	return ErrBlocked
}

// NoContentError means the page was served but no body could be extracted.
// Stage names the extraction step that gave up.
type NoContentError struct {
	URL   string
	Stage string
	Err   error
}

func (e *NoContentError) Error() string {
	msg := fmt.Sprintf("%s: no content extracted", e.URL)
	if e.Stage != "" {
		msg += " (" + e.Stage + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NoContentError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrNoContent}
	}
	return []error{ErrNoContent, e.Err}
}

// Cause returns a short human-readable reason for err, used in batch
// summaries.
func Cause(err error) string {
	var blocked *BlockedError
	var fetchErr *FetchError
	var noContent *NoContentError
	switch {
	case errors.As(err, &blocked):
		return blocked.Reason
	case errors.As(err, &noContent):
		if noContent.Stage != "" {
			return "no content extracted (" + noContent.Stage + ")"
		}
		return "no content extracted"
	case errors.As(err, &fetchErr):
		if fetchErr.Status != 0 {
			return fmt.Sprintf("HTTP %d", fetchErr.Status)
		}
		return "network error"
	case errors.Is(err, ErrInvalidURL):
		return "invalid URL"
	case err == nil:
		return ""
	default:
		return err.Error()
	}
}
