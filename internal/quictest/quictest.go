// Package quictest provides in-memory stand-ins for the transport-facing
// collaborators of the stream adapter: a session, stream handles and body
// sources whose asynchronous behavior tests (and the smoke binary) can
// script step by step.
package quictest

import (
	"errors"
	"fmt"

	"example.com/quicfetch/internal/quic"
)

// Session is a scripted in-memory quic.Session.
type Session struct {
	Connected              bool
	HandshakeConfirmedFlag bool

	// NextStream is handed out by the next ReleaseStream call.
	NextStream *Stream

	// AsyncStreamRequest makes RequestStream return ErrIOPending; complete
	// the request later with CompleteStreamRequest.
	AsyncStreamRequest bool
	// StreamRequestErr, when set, fails RequestStream (immediately, or at
	// completion time in async mode).
	StreamRequestErr error

	// RequestStreamCalls records the hasBody flag of each RequestStream call.
	RequestStreamCalls []bool

	Index   *quic.PromiseIndex
	Timing  quic.ConnectTiming
	Addr    string
	Ver     quic.Version
	Details quic.ErrorDetails

	pendingStreamRequest quic.CompletionFunc
}

// NewSession returns a connected, handshake-confirmed session with an empty
// promise index and a plausible peer address.
func NewSession() *Session {
	return &Session{
		Connected:              true,
		HandshakeConfirmedFlag: true,
		Index:                  quic.NewPromiseIndex(),
		Addr:                   "192.0.2.1:443",
		Ver:                    quic.Version(39),
	}
}

func (s *Session) IsConnected() bool        { return s.Connected }
func (s *Session) HandshakeConfirmed() bool { return s.HandshakeConfirmedFlag }

func (s *Session) RequestStream(hasBody bool, complete quic.CompletionFunc) error {
	s.RequestStreamCalls = append(s.RequestStreamCalls, hasBody)
	if s.AsyncStreamRequest {
		s.pendingStreamRequest = complete
		return quic.ErrIOPending
	}
	return s.StreamRequestErr
}

// CompleteStreamRequest resolves an asynchronous stream request.
func (s *Session) CompleteStreamRequest() {
	complete := s.pendingStreamRequest
	s.pendingStreamRequest = nil
	if complete == nil {
		panic("quictest: no stream request pending")
	}
	complete(0, s.StreamRequestErr)
}

func (s *Session) ReleaseStream(d quic.StreamDelegate) quic.StreamHandle {
	stream := s.NextStream
	s.NextStream = nil
	if stream == nil {
		panic("quictest: ReleaseStream called with no stream scripted")
	}
	stream.Attach(d)
	return stream
}

func (s *Session) PromiseIndex() *quic.PromiseIndex { return s.Index }

func (s *Session) ResetPromised(id quic.StreamID, code quic.StreamErrorCode) {
	s.Index.Withdraw(id, code)
}

func (s *Session) ConnectTiming() quic.ConnectTiming { return s.Timing }

func (s *Session) PeerAddress() (string, error) {
	if s.Addr == "" {
		return "", errors.New("quictest: no peer address")
	}
	return s.Addr, nil
}

func (s *Session) Version() quic.Version { return s.Ver }

func (s *Session) PopulateErrorDetails(details *quic.ErrorDetails) {
	details.ConnectionError = s.Details.ConnectionError
}

// WriteDataCall records one WriteData invocation.
type WriteDataCall struct {
	Data []byte
	Fin  bool
}

// Stream is a scripted in-memory quic.StreamHandle.
type Stream struct {
	StreamID quic.StreamID

	// Scripted response.
	ResponseHeaders      quic.HeaderBlock
	ResponseHeadersReady bool
	responseBody         []byte
	finReceived          bool
	finRead              bool

	// Async knobs.
	AsyncWriteData  bool
	WriteDataErr    error
	WriteHeadersErr error

	// Recorded activity.
	SentHeaders    quic.HeaderBlock
	SentHeadersFin bool
	WriteDataCalls []WriteDataCall
	Priority       quic.PriorityValue
	PrioritySet    bool
	ResetCode      quic.StreamErrorCode
	WasReset       bool
	MigrationOff   bool

	ConnErr   quic.ConnErrorCode
	StreamErr quic.StreamErrorCode

	FirstStream bool

	delegate        quic.StreamDelegate
	pendingHeaders  quic.HeadersCompletionFunc
	pendingWrite    quic.CompletionFunc
	pendingWriteLen int

	bytesConsumed int64
	bytesWritten  int64
}

// NewStream returns a stream with the given ID; ID 1 marks the connection's
// first stream.
func NewStream(id quic.StreamID) *Stream {
	return &Stream{StreamID: id, FirstStream: id == 1}
}

func (st *Stream) ID() quic.StreamID { return st.StreamID }

func (st *Stream) WriteHeaders(block quic.HeaderBlock, fin bool) (int, error) {
	if st.WriteHeadersErr != nil {
		return 0, st.WriteHeadersErr
	}
	st.SentHeaders = block.Clone()
	st.SentHeadersFin = fin
	return block.WireSize(), nil
}

func (st *Stream) WriteData(p []byte, fin bool, complete quic.CompletionFunc) (int, error) {
	if st.WriteDataErr != nil {
		return 0, st.WriteDataErr
	}
	st.WriteDataCalls = append(st.WriteDataCalls, WriteDataCall{Data: append([]byte(nil), p...), Fin: fin})
	if st.AsyncWriteData {
		st.pendingWrite = complete
		st.pendingWriteLen = len(p)
		return 0, quic.ErrIOPending
	}
	st.bytesWritten += int64(len(p))
	return len(p), nil
}

// CompleteWrite resolves an asynchronous WriteData.
func (st *Stream) CompleteWrite() {
	complete := st.pendingWrite
	st.pendingWrite = nil
	if complete == nil {
		panic("quictest: no write pending")
	}
	st.bytesWritten += int64(st.pendingWriteLen)
	complete(st.pendingWriteLen, nil)
}

func (st *Stream) Read(p []byte) (int, error) {
	if len(st.responseBody) > 0 {
		n := copy(p, st.responseBody)
		st.responseBody = st.responseBody[n:]
		st.bytesConsumed += int64(n)
		return n, nil
	}
	if st.finReceived {
		return 0, nil
	}
	return 0, quic.ErrIOPending
}

func (st *Stream) ReadInitialHeaders(complete quic.HeadersCompletionFunc) (quic.HeaderBlock, int, error) {
	if st.ResponseHeadersReady {
		return st.ResponseHeaders.Clone(), st.ResponseHeaders.WireSize(), nil
	}
	st.pendingHeaders = complete
	return nil, 0, quic.ErrIOPending
}

// DeliverResponseHeaders completes a pending initial-headers read, or arms
// the headers for a later synchronous read when none is pending.
func (st *Stream) DeliverResponseHeaders(block quic.HeaderBlock) {
	st.ResponseHeaders = block.Clone()
	st.ResponseHeadersReady = true
	if st.pendingHeaders != nil {
		complete := st.pendingHeaders
		st.pendingHeaders = nil
		complete(block.Clone(), block.WireSize(), nil)
	}
}

// DeliverBody appends response body bytes and, when a delegate is attached,
// signals data availability. fin marks the body complete.
func (st *Stream) DeliverBody(p []byte, fin bool) {
	st.responseBody = append(st.responseBody, p...)
	if fin {
		st.finReceived = true
	}
	if st.delegate != nil {
		st.delegate.OnDataAvailable()
	}
}

// DeliverTrailers hands a trailer block to the delegate.
func (st *Stream) DeliverTrailers(block quic.HeaderBlock) {
	if st.delegate != nil {
		st.delegate.OnTrailingHeaders(block.Clone(), block.WireSize())
	}
}

// CloseFromTransport simulates transport-initiated closure with the given
// error codes.
func (st *Stream) CloseFromTransport(connErr quic.ConnErrorCode, streamErr quic.StreamErrorCode) {
	st.ConnErr = connErr
	st.StreamErr = streamErr
	if st.delegate != nil {
		st.delegate.OnClose()
	}
}

func (st *Stream) SetPriority(p quic.PriorityValue) {
	st.Priority = p
	st.PrioritySet = true
}

func (st *Stream) Reset(code quic.StreamErrorCode) {
	st.WasReset = true
	st.ResetCode = code
}

func (st *Stream) Attach(d quic.StreamDelegate) { st.delegate = d }
func (st *Stream) Detach()                      { st.delegate = nil }

func (st *Stream) DisableConnectionMigration() { st.MigrationOff = true }

func (st *Stream) FinRead() { st.finRead = true }

// FinWasRead reports whether the adapter consumed the FIN.
func (st *Stream) FinWasRead() bool { return st.finRead }

func (st *Stream) BytesConsumed() int64 { return st.bytesConsumed }
func (st *Stream) BytesRead() int64     { return st.bytesConsumed }
func (st *Stream) BytesWritten() int64  { return st.bytesWritten }

func (st *Stream) IsFirstStream() bool { return st.FirstStream }

func (st *Stream) IsDoneReading() bool {
	return st.finReceived && len(st.responseBody) == 0
}

func (st *Stream) ConnectionError() quic.ConnErrorCode { return st.ConnErr }
func (st *Stream) StreamError() quic.StreamErrorCode   { return st.StreamErr }

// BodySource is a scripted quic.BodySource producing a fixed chunk sequence.
type BodySource struct {
	chunks [][]byte
	// Async makes Read return ErrIOPending; complete with CompleteRead.
	Async bool
	// Err fails the next Read.
	Err error

	ReadCalls int
	WasReset  bool

	pendingRead quic.CompletionFunc
	pendingBuf  []byte
}

// NewBodySource builds a source that yields the given chunks in order.
func NewBodySource(chunks ...[]byte) *BodySource {
	copied := make([][]byte, len(chunks))
	for i, c := range chunks {
		copied[i] = append([]byte(nil), c...)
	}
	return &BodySource{chunks: copied}
}

func (b *BodySource) Read(p []byte, complete quic.CompletionFunc) (int, error) {
	b.ReadCalls++
	if b.Err != nil {
		return 0, b.Err
	}
	if b.Async {
		b.pendingRead = complete
		b.pendingBuf = p
		return 0, quic.ErrIOPending
	}
	return b.fill(p), nil
}

// CompleteRead resolves an asynchronous body read.
func (b *BodySource) CompleteRead() {
	complete := b.pendingRead
	buf := b.pendingBuf
	b.pendingRead = nil
	b.pendingBuf = nil
	if complete == nil {
		panic("quictest: no body read pending")
	}
	if b.Err != nil {
		complete(0, b.Err)
		return
	}
	complete(b.fill(buf), nil)
}

func (b *BodySource) fill(p []byte) int {
	if len(b.chunks) == 0 {
		return 0
	}
	chunk := b.chunks[0]
	if len(chunk) > len(p) {
		panic(fmt.Sprintf("quictest: chunk of %d bytes exceeds %d-byte buffer", len(chunk), len(p)))
	}
	b.chunks = b.chunks[1:]
	return copy(p, chunk)
}

func (b *BodySource) IsExhausted() bool { return len(b.chunks) == 0 }

func (b *BodySource) Reset() { b.WasReset = true }
