package sink

import "errors"

var (
	// ErrConfig is returned when a template cannot be built from its config.
	// The sink never becomes ready.
	ErrConfig = errors.New("invalid http sink config")

	// ErrCloneFailed is returned when the per-record request cannot be
	// produced from the template.
	ErrCloneFailed = errors.New("failed to clone request template")

	// ErrTransport is returned when a request could not be sent or its
	// response could not be received. Non-2xx responses are not transport errors.
	ErrTransport = errors.New("http transport failure")
)
