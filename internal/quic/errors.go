package quic

import (
	"errors"
	"fmt"
)

// ErrIOPending is returned by asynchronous operations that could not complete
// immediately. The stored completion callback will be invoked exactly once
// when the operation resolves.
var ErrIOPending = errors.New("quic: operation pending")

// ErrAborted is recorded as the session-level error when the caller closes an
// exchange before it completes.
var ErrAborted = errors.New("quic: exchange aborted")

// StreamErrorCode is a QUIC stream reset code, carried in RST_STREAM frames.
type StreamErrorCode uint32

const (
	// StreamNoError (0x0): The stream finished without error.
	StreamNoError StreamErrorCode = 0x0
	// StreamErrorProcessing (0x1): The endpoint could not process the stream.
	StreamErrorProcessing StreamErrorCode = 0x1
	// StreamConnectionError (0x4): The stream was torn down because the
	// connection itself failed; the stream code carries no extra meaning.
	StreamConnectionError StreamErrorCode = 0x4
	// StreamPeerGoingAway (0x5): The peer is shutting the connection down.
	StreamPeerGoingAway StreamErrorCode = 0x5
	// StreamCancelled (0x6): The stream was cancelled by either endpoint.
	StreamCancelled StreamErrorCode = 0x6
	// StreamRefused (0x8): The peer refused to accept the stream.
	StreamRefused StreamErrorCode = 0x8
)

// String returns the string representation of the StreamErrorCode.
func (c StreamErrorCode) String() string {
	switch c {
	case StreamNoError:
		return "STREAM_NO_ERROR"
	case StreamErrorProcessing:
		return "ERROR_PROCESSING_STREAM"
	case StreamConnectionError:
		return "STREAM_CONNECTION_ERROR"
	case StreamPeerGoingAway:
		return "STREAM_PEER_GOING_AWAY"
	case StreamCancelled:
		return "STREAM_CANCELLED"
	case StreamRefused:
		return "STREAM_REFUSED"
	default:
		return fmt.Sprintf("UNKNOWN_STREAM_ERROR_CODE_%d", uint32(c))
	}
}

// ConnErrorCode is a QUIC connection-level error code.
type ConnErrorCode uint32

const (
	// ConnNoError (0x0): No connection-level error has occurred.
	ConnNoError ConnErrorCode = 0x0
	// ConnInternalError (0x1): Connection-level implementation fault.
	ConnInternalError ConnErrorCode = 0x1
	// ConnHandshakeTimeout (0x19): The cryptographic handshake did not
	// complete in time.
	ConnHandshakeTimeout ConnErrorCode = 0x19
	// ConnNetworkIdleTimeout (0x1a): The connection timed out from inactivity.
	ConnNetworkIdleTimeout ConnErrorCode = 0x1a
	// ConnPeerGoingAway (0x10): The peer initiated connection shutdown.
	ConnPeerGoingAway ConnErrorCode = 0x10
)

// String returns the string representation of the ConnErrorCode.
func (c ConnErrorCode) String() string {
	switch c {
	case ConnNoError:
		return "CONN_NO_ERROR"
	case ConnInternalError:
		return "CONN_INTERNAL_ERROR"
	case ConnHandshakeTimeout:
		return "CONN_HANDSHAKE_TIMEOUT"
	case ConnNetworkIdleTimeout:
		return "CONN_NETWORK_IDLE_TIMEOUT"
	case ConnPeerGoingAway:
		return "CONN_PEER_GOING_AWAY"
	default:
		return fmt.Sprintf("UNKNOWN_CONN_ERROR_CODE_%d", uint32(c))
	}
}

// StatusCode classifies how a request/response exchange terminated.
type StatusCode int

const (
	// StatusOK: the exchange completed normally.
	StatusOK StatusCode = iota
	// StatusHandshakeFailed: the transport handshake was never confirmed.
	// Callers may retry over a fallback transport.
	StatusHandshakeFailed
	// StatusSessionAborted: the session recorded a fatal error; retry policy
	// is the session owner's decision.
	StatusSessionAborted
	// StatusConnectionClosed: the request was never sent, so the caller may
	// safely retry it.
	StatusConnectionClosed
	// StatusProtocolError: a fatal protocol-level failure, not retryable at
	// this layer.
	StatusProtocolError
	// StatusStreamCancelled: the stream was reset by either endpoint.
	StatusStreamCancelled
)

// String returns the string representation of the StatusCode.
func (s StatusCode) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusHandshakeFailed:
		return "HANDSHAKE_FAILED"
	case StatusSessionAborted:
		return "SESSION_ABORTED"
	case StatusConnectionClosed:
		return "CONNECTION_CLOSED"
	case StatusProtocolError:
		return "PROTOCOL_ERROR"
	case StatusStreamCancelled:
		return "STREAM_CANCELLED"
	default:
		return fmt.Sprintf("UNKNOWN_STATUS_%d", int(s))
	}
}

// ExchangeError is a terminal status for one request/response exchange.
// It implements the standard Go error interface.
type ExchangeError struct {
	Status     StatusCode
	StreamCode StreamErrorCode // Set for StatusStreamCancelled.
	Msg        string
	Cause      error // Optional underlying cause
}

// Error returns a string representation of the ExchangeError.
func (e *ExchangeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("exchange error: %s (status %s): %s", e.Msg, e.Status.String(), e.Cause)
	}
	return fmt.Sprintf("exchange error: %s (status %s)", e.Msg, e.Status.String())
}

// Unwrap returns the underlying cause of the error, if any.
func (e *ExchangeError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an ExchangeError with the same status,
// letting callers match terminal statuses with errors.Is.
func (e *ExchangeError) Is(target error) bool {
	t, ok := target.(*ExchangeError)
	return ok && t.Status == e.Status
}

// NewHandshakeFailedError creates the terminal error for an unconfirmed handshake.
func NewHandshakeFailedError() *ExchangeError {
	return &ExchangeError{Status: StatusHandshakeFailed, Msg: "crypto handshake not confirmed"}
}

// NewConnectionClosedError creates the retryable terminal error for a request
// that was never sent.
func NewConnectionClosedError() *ExchangeError {
	return &ExchangeError{Status: StatusConnectionClosed, Msg: "connection closed before request was sent"}
}

// NewProtocolError creates the fatal catch-all terminal error.
func NewProtocolError(msg string) *ExchangeError {
	return &ExchangeError{Status: StatusProtocolError, Msg: msg}
}

// NewSessionAbortedError wraps a session-level failure as a terminal error.
func NewSessionAbortedError(cause error) *ExchangeError {
	return &ExchangeError{Status: StatusSessionAborted, Msg: "session aborted", Cause: cause}
}

// NewStreamCancelledError creates the terminal error for a stream reset.
func NewStreamCancelledError(code StreamErrorCode) *ExchangeError {
	return &ExchangeError{
		Status:     StatusStreamCancelled,
		StreamCode: code,
		Msg:        fmt.Sprintf("stream reset with code %s", code.String()),
	}
}

// StatusOf extracts the StatusCode from a terminal error. A nil error is
// StatusOK; a non-ExchangeError is classified as a session abort since only
// session-level failures pass through unconverted.
func StatusOf(err error) StatusCode {
	if err == nil {
		return StatusOK
	}
	var ee *ExchangeError
	if errors.As(err, &ee) {
		return ee.Status
	}
	return StatusSessionAborted
}
