package pages

import "github.com/cockroachdb/errors"

var (
	// ErrNoMemory indicates that the page source cannot supply the requested pages.
	ErrNoMemory = errors.New("pages: no memory available")

	// ErrNotSupported indicates that the page source is not available on this platform.
	ErrNotSupported = errors.New("pages: not supported on this platform")
)
