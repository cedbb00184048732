package peer

import "errors"

var (
	// ErrConnectionFailed marks a terminal peer-connection failure, distinct
	// from an orderly close.
	ErrConnectionFailed = errors.New("peer connection failed")
	// ErrSignalHandling wraps non-fatal failures while applying an inbound
	// signaling payload; the engine keeps processing subsequent signals.
	ErrSignalHandling = errors.New("signal handling failed")
	// ErrEngineClosed is returned when an operation reaches an engine whose
	// peer connection has already been discarded.
	ErrEngineClosed = errors.New("negotiation engine closed")
)
