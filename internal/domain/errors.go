package domain

import (
	"errors"
	"fmt"
)

// Failure kinds for sync cycles. Call sites wrap these with
// fmt.Errorf("...: %w", ...) and callers classify with errors.Is.
var (
	// ErrNetwork covers transport failures and non-2xx responses while
	// fetching the remote feed.
	ErrNetwork = errors.New("remote calendar unreachable")

	// ErrFormat covers payloads that do not decode as iCalendar, such as
	// an HTML error page served with status 200.
	ErrFormat = errors.New("malformed calendar data")

	// ErrAuth covers CalDAV credential rejections (401/403).
	ErrAuth = errors.New("caldav authentication rejected")

	// ErrConfig covers wrong settings detected at sync time, such as a
	// calendar name that does not exist on the server.
	ErrConfig = errors.New("sync target misconfigured")

	// ErrSync covers CalDAV discovery and write failures.
	ErrSync = errors.New("calendar write failed")
)

// Wrap ties err to one of the kinds above so errors.Is matches both the
// kind and the original cause.
func Wrap(kind, err error) error {
	return fmt.Errorf("%w: %w", kind, err)
}
