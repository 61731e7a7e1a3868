package types

import "errors"

var (
	// ErrCancelled is returned when the caller's cancel check asked the crawl to stop.
	ErrCancelled = errors.New("cancelled by user")
	// ErrSessionInvalid marks a browser session that can no longer be driven.
	ErrSessionInvalid     = errors.New("browser session invalid")
	ErrMissingCredentials = errors.New("missing supplier credentials")
	ErrUnknownSupplier    = errors.New("unknown supplier")
	ErrAlreadyRunning     = errors.New("a crawl is already running for this supplier")
	ErrNoVariants         = errors.New("no variant could be extracted")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrElementNotFound    = errors.New("element not found")
	// ErrNotAuthenticated is reported alongside an empty category list when login could not be verified.
	ErrNotAuthenticated = errors.New("login could not be verified")
	ErrUnsupported      = errors.New("operation not supported by this page")
)
