package quic

import (
	"fmt"
	"time"
)

// StreamID identifies a logical stream within a session.
type StreamID uint32

// Version is the negotiated QUIC protocol version.
type Version int

// VersionUnknown marks an unrecognized or unnegotiated version.
const VersionUnknown Version = 0

// ConnectionInfo renders the negotiated-protocol string exposed in response
// metadata, for example "http/2+quic/39".
func (v Version) ConnectionInfo() string {
	if v == VersionUnknown {
		return "http/2+quic/unknown"
	}
	return fmt.Sprintf("http/2+quic/%d", int(v))
}

// CompletionFunc resolves one previously pending operation. n carries a byte
// count where the operation has one, otherwise zero.
type CompletionFunc func(n int, err error)

// HeadersCompletionFunc resolves a pending initial-headers read with the
// decoded block and the size of the frame that carried it.
type HeadersCompletionFunc func(block HeaderBlock, frameLen int, err error)

// ConnectTiming records when the transport connection was established.
type ConnectTiming struct {
	ConnectStart time.Time
	ConnectEnd   time.Time
	// SSLStart and SSLEnd bracket the cryptographic handshake.
	SSLStart time.Time
	SSLEnd   time.Time
}

// ErrorDetails collects connection-level failure metadata for reporting.
type ErrorDetails struct {
	ConnectionInfo  string
	ConnectionError ConnErrorCode
}

// LoadTimingInfo reports whether the exchange reused an existing connection
// and, for the connection's first stream, when the connection was set up.
type LoadTimingInfo struct {
	SocketReused  bool
	ConnectTiming ConnectTiming
}

// AlternativeService names the transport endpoint this session speaks to.
type AlternativeService struct {
	Protocol string
	Host     string
	Port     uint16
}

// ResponseInfo is the caller-owned response descriptor. The adapter fills it
// in as data becomes available and never reads it back, except for the Vary
// data used to validate later push claims.
type ResponseInfo struct {
	StatusCode int
	Headers    HeaderBlock

	// PeerAddress is the remote endpoint the response came from.
	PeerAddress string
	// ConnectionInfo and ALPNNegotiatedProtocol describe the negotiated
	// transport, derived from the session's QUIC version.
	ConnectionInfo         string
	ALPNNegotiatedProtocol string
	WasALPNNegotiated      bool

	RequestTime  time.Time
	ResponseTime time.Time

	// ConnectTiming is captured when response headers arrive, which covers
	// 0-RTT requests sent before the handshake is confirmed.
	ConnectTiming ConnectTiming

	// Vary summarizes the response's Vary semantics against the request that
	// produced it, for later cache-validation checks.
	Vary *VaryData
}

// Session is the adapter's non-owning view of the shared multiplexed
// connection. Implementations multiplex many adapters over one connection;
// the adapter only queries it and walks the documented stream lifecycle.
//
// All methods must be called from the session's event goroutine, the same
// goroutine that delivers completion callbacks and delegate notifications.
type Session interface {
	// IsConnected reports whether the connection is still usable.
	IsConnected() bool

	// HandshakeConfirmed reports whether the cryptographic handshake has
	// completed.
	HandshakeConfirmed() bool

	// RequestStream asks for a fresh outgoing stream. It returns nil when a
	// stream is immediately available (claim it with ReleaseStream),
	// ErrIOPending when the request is queued (complete fires later), or a
	// terminal error.
	RequestStream(hasBody bool, complete CompletionFunc) error

	// ReleaseStream hands over the stream granted by the last successful
	// RequestStream, wiring the given delegate for its notifications.
	ReleaseStream(d StreamDelegate) StreamHandle

	// PromiseIndex returns the session's shared push-promise index.
	PromiseIndex() *PromiseIndex

	// ResetPromised tells the peer a previously promised stream is rejected.
	ResetPromised(id StreamID, code StreamErrorCode)

	// ConnectTiming reports when this connection was established.
	ConnectTiming() ConnectTiming

	// PeerAddress returns the remote endpoint in host:port form.
	PeerAddress() (string, error)

	// Version is the negotiated QUIC version.
	Version() Version

	// PopulateErrorDetails fills session-level failure metadata.
	PopulateErrorDetails(details *ErrorDetails)
}

// StreamHandle is the adapter's exclusively owned view of one logical stream.
// The adapter holds at most one live handle and must Detach it exactly once.
type StreamHandle interface {
	ID() StreamID

	// WriteHeaders serializes and sends the request header block, marking the
	// stream's write side finished when fin is set. It completes synchronously
	// and returns the frame length.
	WriteHeaders(block HeaderBlock, fin bool) (int, error)

	// WriteData sends body bytes, marking the write side finished when fin is
	// set. Returns ErrIOPending when flow control blocks the write, in which
	// case complete fires with the count later.
	WriteData(p []byte, fin bool, complete CompletionFunc) (int, error)

	// Read copies available response body bytes into p. Returns ErrIOPending
	// when nothing is buffered; the delegate's OnDataAvailable fires when
	// that changes.
	Read(p []byte) (int, error)

	// ReadInitialHeaders returns the decoded response headers and the length
	// of the frame that carried them, or ErrIOPending with complete invoked
	// once they arrive.
	ReadInitialHeaders(complete HeadersCompletionFunc) (HeaderBlock, int, error)

	// SetPriority applies a transport priority to the stream.
	SetPriority(p PriorityValue)

	// Reset aborts the stream with the given code.
	Reset(code StreamErrorCode)

	// Attach wires the delegate that receives this stream's notifications.
	// Adopted push streams are attached by their new owner; fresh streams
	// are wired by Session.ReleaseStream.
	Attach(d StreamDelegate)

	// Detach severs the delegate link; no further notifications arrive.
	Detach()

	// DisableConnectionMigration pins the stream to the current network path.
	DisableConnectionMigration()

	// FinRead consumes the stream's FIN once reading is done, closing the
	// read side.
	FinRead()

	// BytesConsumed is the count of response payload bytes delivered to the
	// adapter, excluding duplicates.
	BytesConsumed() int64

	// BytesRead is the raw count of stream payload bytes received.
	BytesRead() int64

	// BytesWritten is the count of stream payload bytes sent.
	BytesWritten() int64

	// IsFirstStream reports whether this is the first stream opened on the
	// connection, which distinguishes fresh connections from reused ones.
	IsFirstStream() bool

	// IsDoneReading reports whether the response, including its FIN, has
	// been fully received.
	IsDoneReading() bool

	// ConnectionError is the connection-level error observed at close.
	ConnectionError() ConnErrorCode

	// StreamError is the stream-level reset code observed at close.
	StreamError() StreamErrorCode
}

// StreamDelegate receives transport-originated notifications for a stream.
// The HTTPStream adapter implements it.
type StreamDelegate interface {
	// OnDataAvailable signals that Read may now return bytes.
	OnDataAvailable()

	// OnTrailingHeaders delivers the decoded trailer block and the length of
	// the frame that carried it.
	OnTrailingHeaders(block HeaderBlock, frameLen int)

	// OnClose signals transport-initiated stream closure; error codes are
	// available from the handle until Detach.
	OnClose()

	// OnError signals a session-level failure that tears the stream down.
	OnError(err error)
}

// RendezvousDelegate receives the outcome of a push-promise claim.
type RendezvousDelegate interface {
	// OnRendezvousResult delivers the adopted stream, or nil when the
	// rendezvous failed and the caller must fall back to a fresh stream.
	OnRendezvousResult(stream StreamHandle)
}

// BodySource supplies the outbound request body.
type BodySource interface {
	// Read fills p with the next chunk. A synchronous return of (0, nil)
	// means the source is exhausted. Returns ErrIOPending when bytes are not
	// yet available; complete fires later.
	Read(p []byte, complete CompletionFunc) (int, error)

	// IsExhausted reports whether every byte has been produced.
	IsExhausted() bool

	// Reset abandons any in-flight read.
	Reset()
}
