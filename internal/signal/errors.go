package signal

import "errors"

var (
	// ErrAuthentication is returned by Connect when no usable token exists.
	ErrAuthentication = errors.New("authentication failed: no usable token")
	// ErrConnectTimeout is returned when the relay does not complete the
	// handshake within the configured timeout.
	ErrConnectTimeout = errors.New("connection attempt timed out")
	// ErrReconnectExhausted marks the terminal state after all automatic
	// reconnect attempts failed; recovery requires an explicit Connect.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)
