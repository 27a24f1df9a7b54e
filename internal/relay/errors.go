package relay

import "fmt"

// ErrorKind is the stable error-kind vocabulary surfaced to CDP clients
// per spec.md §7.
type ErrorKind string

const (
	ErrNoExtension     ErrorKind = "no-extension"
	ErrUpstreamTimeout ErrorKind = "upstream-timeout"
	ErrUpstreamError   ErrorKind = "upstream-error"
	ErrUnknownTarget   ErrorKind = "unknown-target"
	ErrInvalidParams   ErrorKind = "invalid-params"
	ErrParseError      ErrorKind = "parse-error"
	ErrPeerGone        ErrorKind = "peer-gone"

	// extensionDisconnected is the stable kind reported for every pending
	// call and every closed CDP peer when the extension link is lost
	// (§4.2).
	extensionDisconnected ErrorKind = "extension-disconnected"
)

// RouterError is a typed router-level or extension-link-level error. Its
// Error() string becomes the `error.message` field of a cdpResponse.
type RouterError struct {
	Kind ErrorKind
	Msg  string
}

func (e *RouterError) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return e.Msg
}

func newRouterError(kind ErrorKind, format string, args ...any) *RouterError {
	return &RouterError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
