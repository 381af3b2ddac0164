package quic

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"

	"example.com/quicfetch/internal/logger"
)

// streamState is the driving loop's position in the request lifecycle.
type streamState int

const (
	// stateNone: nothing left to do; the loop stops here.
	stateNone streamState = iota
	stateHandlePromise
	stateHandlePromiseComplete
	stateRequestStream
	stateRequestStreamComplete
	stateSetRequestPriority
	stateSendHeaders
	stateSendHeadersComplete
	stateReadRequestBody
	stateReadRequestBodyComplete
	stateSendBody
	stateSendBodyComplete
	// stateOpen: the request is on the wire and the stream is open for
	// response consumption. Success terminal.
	stateOpen
)

// String returns the string representation of the streamState.
func (s streamState) String() string {
	switch s {
	case stateNone:
		return "NONE"
	case stateHandlePromise:
		return "HANDLE_PROMISE"
	case stateHandlePromiseComplete:
		return "HANDLE_PROMISE_COMPLETE"
	case stateRequestStream:
		return "REQUEST_STREAM"
	case stateRequestStreamComplete:
		return "REQUEST_STREAM_COMPLETE"
	case stateSetRequestPriority:
		return "SET_REQUEST_PRIORITY"
	case stateSendHeaders:
		return "SEND_HEADERS"
	case stateSendHeadersComplete:
		return "SEND_HEADERS_COMPLETE"
	case stateReadRequestBody:
		return "READ_REQUEST_BODY"
	case stateReadRequestBodyComplete:
		return "READ_REQUEST_BODY_COMPLETE"
	case stateSendBody:
		return "SEND_BODY"
	case stateSendBodyComplete:
		return "SEND_BODY_COMPLETE"
	case stateOpen:
		return "OPEN"
	default:
		return fmt.Sprintf("UNKNOWN_STATE_%d", int(s))
	}
}

// Options tunes one HTTPStream.
type Options struct {
	// MaxPacketSize is the transport's maximum packet size in bytes.
	// Defaults to DefaultMaxPacketSize.
	MaxPacketSize int
	// BodyBufferPackets sizes the body staging buffer as a multiple of
	// MaxPacketSize. Defaults to BodyBufferPackets.
	BodyBufferPackets int
	// DisablePush keeps the adapter from consulting the push-promise index,
	// so every request opens a fresh stream.
	DisablePush bool
}

// HTTPStream drives exactly one HTTP request/response exchange over a logical
// stream of a shared multiplexed QUIC session. It presents a plain
// "send request, read headers, read body" surface over the session's fully
// asynchronous transport, transparently rendezvousing with server push
// offers where one matches the request.
//
// An HTTPStream is confined to the session's event goroutine: every public
// operation, completion callback and transport notification runs there. At
// most one asynchronous operation is outstanding at a time; starting a second
// while one is pending is a programming error and panics.
type HTTPStream struct {
	session Session
	log     *logger.Logger

	nextState streamState

	// stream is the owned transport stream handle, non-nil only between
	// obtaining a fresh or rendezvoused stream and detaching on
	// close/error/completion. Every path tolerates it being nil.
	stream StreamHandle

	requestInfo    *RequestInfo
	requestHeaders HeaderBlock // Serialized request block; cleared after handoff.
	bodySource     BodySource
	priority       RequestPriority
	responseInfo   *ResponseInfo
	requestTime    time.Time

	// Terminal status, computed at most once.
	hasTerminal bool
	terminalErr error

	responseHeadersReceived bool

	// Byte counters. The closed* values freeze the live handle's totals at
	// detachment, since the handle no longer exists to query afterwards.
	headersBytesSent          int64
	headersBytesReceived      int64
	closedStreamReceivedBytes int64
	closedStreamSentBytes     int64
	closedIsFirstStream       bool

	// userBuffer holds the caller's destination across a pending body read.
	userBuffer []byte

	// Independent error sources feeding the terminal status.
	sessionErr error
	connErr    ConnErrorCode
	streamErr  StreamErrorCode

	// Push rendezvous state.
	foundPromise bool
	pushHandle   *ClaimHandle

	// callback is the single-slot stored continuation for the pending
	// operation. Never populated while inLoop is true.
	callback CompletionFunc

	// inLoop guards the driving loop against re-entry; notifications
	// arriving while it is set defer to the unwinding loop.
	inLoop bool

	maxPacketSize     int
	bodyBufferPackets int
	disablePush       bool
	bodyBuf           *drainableBuffer

	connectTiming ConnectTiming
}

// NewHTTPStream creates an adapter bound to the given session. The adapter
// holds a non-owning reference: the session outlives it and is shared with
// other adapters.
func NewHTTPStream(session Session, opts Options, log *logger.Logger) *HTTPStream {
	if opts.MaxPacketSize <= 0 {
		opts.MaxPacketSize = DefaultMaxPacketSize
	}
	if opts.BodyBufferPackets <= 0 {
		opts.BodyBufferPackets = BodyBufferPackets
	}
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &HTTPStream{
		session:           session,
		log:               log.With(logger.LogFields{"exchange_id": uuid.NewString()}),
		nextState:         stateNone,
		priority:          PriorityMedium,
		streamErr:         StreamNoError,
		connErr:           ConnNoError,
		maxPacketSize:     opts.MaxPacketSize,
		bodyBufferPackets: opts.BodyBufferPackets,
		disablePush:       opts.DisablePush,
	}
}

// InitializeStream binds the adapter to a request. When the push-promise
// index already holds an offer for the request URL the adapter records the
// match and returns nil immediately; the actual claim happens in SendRequest.
// Otherwise it starts requesting a fresh stream, returning ErrIOPending when
// the session has to queue the request.
func (s *HTTPStream) InitializeStream(req *RequestInfo, priority RequestPriority, callback CompletionFunc) error {
	s.checkNoCallback("InitializeStream")
	if s.stream != nil {
		panic("quic: InitializeStream called with a live stream")
	}

	if !s.session.IsConnected() {
		return s.resolveTerminal()
	}

	s.requestInfo = req
	s.requestTime = time.Now()
	s.priority = priority

	if promised := s.session.PromiseIndex().Promised(req.URL); !s.disablePush && promised != nil {
		s.foundPromise = true
		s.log.Info("push promise found for request", logger.LogFields{
			"url":       req.URL,
			"stream_id": uint32(promised.ID()),
		})
		return nil
	}

	s.nextState = stateRequestStream
	_, err := s.doLoop(0, nil)
	if errors.Is(err, ErrIOPending) {
		s.callback = callback
	}
	return err
}

// SendRequest serializes and transmits the request. headers are the caller's
// request headers; resp is the caller-owned response descriptor the adapter
// fills in as the exchange progresses. When a push offer was recorded and the
// request has no body, the adapter claims the offer instead of opening a
// fresh stream, falling back transparently if the claim fails.
func (s *HTTPStream) SendRequest(headers HeaderBlock, resp *ResponseInfo, callback CompletionFunc) error {
	s.checkNoCallback("SendRequest")
	if s.bodySource != nil {
		panic("quic: SendRequest called twice")
	}
	if s.responseInfo != nil {
		panic("quic: SendRequest called with response descriptor already attached")
	}
	if resp == nil {
		panic("quic: SendRequest requires a response descriptor")
	}

	// Rendezvous still needs the session; the normal path needs the stream
	// obtained by InitializeStream.
	if (!s.foundPromise && s.stream == nil) || !s.session.IsConnected() {
		return s.resolveTerminal()
	}

	block, err := BuildRequestHeaderBlock(s.requestInfo.Method, s.requestInfo.URL, headers)
	if err != nil {
		return err
	}
	s.requestHeaders = block

	s.bodySource = s.requestInfo.Body
	if s.bodySource != nil {
		// A request with a body is ineligible for push adoption, so the
		// recorded offer is withdrawn before requesting a fresh stream.
		if s.foundPromise {
			if promised := s.session.PromiseIndex().Promised(s.requestInfo.URL); promised != nil {
				s.log.Info("withdrawing push promise: request has a body", logger.LogFields{
					"url":       s.requestInfo.URL,
					"stream_id": uint32(promised.ID()),
				})
				s.session.ResetPromised(promised.ID(), StreamCancelled)
			}
		}
		s.bodyBuf = newDrainableBuffer(s.bodyBufferPackets * s.maxPacketSize)
	}

	s.responseInfo = resp

	switch {
	case !s.foundPromise:
		s.nextState = stateSetRequestPriority
	case s.bodySource == nil:
		s.nextState = stateHandlePromise
	default:
		s.foundPromise = false
		s.nextState = stateRequestStream
	}

	_, err = s.doLoop(0, nil)
	if errors.Is(err, ErrIOPending) {
		s.callback = callback
	}
	return err
}

// ReadResponseHeaders reads the response's initial header block into the
// response descriptor. It returns nil once headers are processed,
// ErrIOPending while they have not arrived, or the terminal error.
func (s *HTTPStream) ReadResponseHeaders(callback CompletionFunc) error {
	s.checkNoCallback("ReadResponseHeaders")

	if s.stream == nil {
		return s.resolveTerminal()
	}

	block, frameLen, err := s.stream.ReadInitialHeaders(s.onReadResponseHeadersComplete)
	if errors.Is(err, ErrIOPending) {
		s.callback = callback
		return ErrIOPending
	}
	if err != nil {
		return err
	}
	if s.responseHeadersReceived {
		// Headers already processed through an earlier completion.
		return nil
	}

	s.headersBytesReceived += int64(frameLen)
	return s.processResponseHeaders(block)
}

// ReadResponseBody copies available response body bytes into buf. It returns
// the count read, ErrIOPending when nothing is buffered yet (callback fires
// with the count later), or 0 with nil error at end of body.
func (s *HTTPStream) ReadResponseBody(buf []byte, callback CompletionFunc) (int, error) {
	s.checkNoCallback("ReadResponseBody")
	if s.userBuffer != nil {
		panic("quic: ReadResponseBody called with a read already pending")
	}

	// Drop the request descriptor reference so its owner may go away while
	// the body is consumed; nothing past this point needs it.
	s.requestInfo = nil

	if s.stream == nil {
		return 0, s.resolveTerminal()
	}

	n, err := s.readAvailableData(buf)
	if !errors.Is(err, ErrIOPending) {
		return n, err
	}

	s.callback = callback
	s.userBuffer = buf
	return 0, ErrIOPending
}

// Close terminates the exchange. It is idempotent and safe to call from any
// state, including from inside a completion notification: it resolves a
// terminal status if none exists, cancels any outstanding push claim,
// detaches from and resets the transport stream, and abandons any in-flight
// body-source read. A stored continuation is abandoned without being invoked;
// the closer is not waiting for it.
func (s *HTTPStream) Close() {
	s.callback = nil
	s.userBuffer = nil
	s.sessionErr = ErrAborted
	s.saveTerminal()
	if s.stream != nil {
		s.stream.Detach()
		s.stream.Reset(StreamCancelled)
	}
	s.resetStream()
}

// SetPriority updates the abstract priority used when the stream is created.
func (s *HTTPStream) SetPriority(priority RequestPriority) {
	s.priority = priority
}

// IsResponseBodyComplete reports whether the response, including its FIN,
// was fully consumed.
func (s *HTTPStream) IsResponseBodyComplete() bool {
	return s.nextState == stateOpen && s.stream == nil
}

// IsConnectionReused reports whether this exchange rode an already-used
// connection.
func (s *HTTPStream) IsConnectionReused() bool {
	return s.stream != nil && s.stream.ID() > 1
}

// TotalReceivedBytes counts response header and body bytes delivered to the
// adapter. After detachment the frozen snapshot is used.
func (s *HTTPStream) TotalReceivedBytes() int64 {
	if s.stream != nil {
		return s.headersBytesReceived + s.stream.BytesConsumed()
	}
	return s.headersBytesReceived + s.closedStreamReceivedBytes
}

// TotalSentBytes counts request header and body bytes handed to the
// transport. After detachment the frozen snapshot is used.
func (s *HTTPStream) TotalSentBytes() int64 {
	if s.stream != nil {
		return s.headersBytesSent + s.stream.BytesWritten()
	}
	return s.headersBytesSent + s.closedStreamSentBytes
}

// LoadTimingInfo fills in connection-reuse and connect-timing details: the
// connection's first stream reports the connect timing, any later stream
// reports reuse.
func (s *HTTPStream) LoadTimingInfo(info *LoadTimingInfo) bool {
	isFirst := s.closedIsFirstStream
	if s.stream != nil {
		isFirst = s.stream.IsFirstStream()
	}
	if isFirst {
		info.SocketReused = false
		info.ConnectTiming = s.connectTiming
	} else {
		info.SocketReused = true
	}
	return true
}

// AlternativeService reports the transport endpoint serving this exchange.
func (s *HTTPStream) AlternativeService(alt *AlternativeService) bool {
	addr, err := s.session.PeerAddress()
	if err != nil {
		return false
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return false
	}
	alt.Protocol = "quic"
	alt.Host = host
	alt.Port = uint16(port)
	return true
}

// PopulateErrorDetails fills failure metadata for reporting. The stream-level
// connection error is only meaningful once the handshake confirmed.
func (s *HTTPStream) PopulateErrorDetails(details *ErrorDetails) {
	details.ConnectionInfo = s.session.Version().ConnectionInfo()
	s.session.PopulateErrorDetails(details)
	if s.session.HandshakeConfirmed() {
		details.ConnectionError = s.connErr
	}
}

// --- Driving loop ---------------------------------------------------------

// doLoop advances the state machine until there is nothing left to do, the
// stream reaches OPEN, or a step reports ErrIOPending. The inLoop guard makes
// re-entry a programming error; notifications arriving mid-loop defer their
// callback delivery to the loop's caller.
func (s *HTTPStream) doLoop(n int, err error) (int, error) {
	if s.inLoop {
		panic("quic: re-entrant call into the driving loop")
	}
	s.inLoop = true
	defer func() { s.inLoop = false }()

	for {
		state := s.nextState
		s.nextState = stateNone
		switch state {
		case stateHandlePromise:
			n, err = s.doHandlePromise()
		case stateHandlePromiseComplete:
			n, err = s.doHandlePromiseComplete(err)
		case stateRequestStream:
			n, err = s.doRequestStream()
		case stateRequestStreamComplete:
			n, err = s.doRequestStreamComplete(err)
		case stateSetRequestPriority:
			n, err = s.doSetRequestPriority()
		case stateSendHeaders:
			n, err = s.doSendHeaders()
		case stateSendHeadersComplete:
			n, err = s.doSendHeadersComplete(n, err)
		case stateReadRequestBody:
			n, err = s.doReadRequestBody()
		case stateReadRequestBodyComplete:
			n, err = s.doReadRequestBodyComplete(n, err)
		case stateSendBody:
			n, err = s.doSendBody()
		case stateSendBodyComplete:
			n, err = s.doSendBodyComplete(n, err)
		case stateOpen:
			// Success terminal; nothing to run.
		default:
			panic(fmt.Sprintf("quic: driving loop dispatched unexpected state %s", state))
		}
		if s.nextState == stateNone || s.nextState == stateOpen || errors.Is(err, ErrIOPending) {
			return n, err
		}
	}
}

// doHandlePromise issues the claim against the push-promise index. Rejection
// falls back to a fresh stream; acceptance proceeds (the rendezvous result
// already delivered the stream); pending suspends until the index calls back.
func (s *HTTPStream) doHandlePromise() (int, error) {
	handle, result := s.session.PromiseIndex().Try(s.requestHeaders, s)
	s.log.Debug("push promise claim attempted", logger.LogFields{"result": result.String()})

	switch result {
	case ClaimRejected:
		s.nextState = stateRequestStream
	case ClaimAccepted:
		s.nextState = stateHandlePromiseComplete
	case ClaimPending:
		s.pushHandle = handle
		s.nextState = stateHandlePromiseComplete
		return 0, ErrIOPending
	}
	return 0, nil
}

func (s *HTTPStream) doHandlePromiseComplete(err error) (int, error) {
	if err != nil {
		return 0, err
	}
	s.nextState = stateOpen
	s.log.Info("adopted pushed stream", logger.LogFields{
		"stream_id": uint32(s.stream.ID()),
		"url":       s.requestInfo.URL,
	})
	return 0, nil
}

func (s *HTTPStream) doRequestStream() (int, error) {
	s.nextState = stateRequestStreamComplete
	return 0, s.session.RequestStream(s.requestInfo.Body != nil, s.onIOComplete)
}

func (s *HTTPStream) doRequestStreamComplete(err error) (int, error) {
	if err != nil {
		s.sessionErr = err
		return 0, s.resolveTerminal()
	}

	s.stream = s.session.ReleaseStream(s)
	if s.requestInfo.DisableConnectionMigration {
		s.stream.DisableConnectionMigration()
	}

	if s.responseInfo != nil {
		// A response descriptor is only attached by SendRequest, so this
		// request-stream round came from there (directly, or as the fallback
		// of a failed asynchronous rendezvous) and the send must continue.
		s.nextState = stateSetRequestPriority
	}
	return 0, nil
}

func (s *HTTPStream) doSetRequestPriority() (int, error) {
	s.stream.SetPriority(ConvertRequestPriority(s.priority))
	s.nextState = stateSendHeaders
	return 0, nil
}

func (s *HTTPStream) doSendHeaders() (int, error) {
	if s.stream == nil {
		return 0, s.resolveTerminal()
	}

	hasBody := s.bodySource != nil
	s.nextState = stateSendHeadersComplete
	frameLen, err := s.stream.WriteHeaders(s.requestHeaders, !hasBody)
	if err == nil {
		s.headersBytesSent += int64(frameLen)
	}
	// The header set is single-use; it belongs to the transport now.
	s.requestHeaders = nil
	return frameLen, err
}

func (s *HTTPStream) doSendHeadersComplete(n int, err error) (int, error) {
	if err != nil {
		return n, err
	}
	if s.stream == nil {
		return 0, s.resolveTerminal()
	}
	if s.bodySource != nil {
		s.nextState = stateReadRequestBody
	} else {
		s.nextState = stateOpen
	}
	return 0, nil
}

func (s *HTTPStream) doReadRequestBody() (int, error) {
	s.nextState = stateReadRequestBodyComplete
	return s.bodySource.Read(s.bodyBuf.fillTarget(), s.onIOComplete)
}

func (s *HTTPStream) doReadRequestBodyComplete(n int, err error) (int, error) {
	if s.stream == nil {
		return 0, s.resolveTerminal()
	}
	if err != nil {
		// A failing body source leaves nothing coherent to send; abort the
		// stream rather than leave the peer waiting.
		s.stream.Detach()
		s.stream.Reset(StreamErrorProcessing)
		s.resetStream()
		return 0, err
	}

	s.bodyBuf.setStaged(n)
	s.nextState = stateSendBody
	return 0, nil
}

func (s *HTTPStream) doSendBody() (int, error) {
	if s.stream == nil {
		return 0, s.resolveTerminal()
	}

	eof := s.bodySource.IsExhausted()
	if s.bodyBuf.bytesRemaining() > 0 || eof {
		s.nextState = stateSendBodyComplete
		return s.stream.WriteData(s.bodyBuf.remaining(), eof, s.onIOComplete)
	}

	// Zero bytes staged and the source not yet exhausted: an initially-empty
	// source with nothing to send yet.
	s.nextState = stateOpen
	return 0, nil
}

func (s *HTTPStream) doSendBodyComplete(n int, err error) (int, error) {
	if err != nil {
		return n, err
	}
	if s.stream == nil {
		return 0, s.resolveTerminal()
	}

	s.bodyBuf.didConsume(s.bodyBuf.bytesRemaining())

	if !s.bodySource.IsExhausted() {
		s.nextState = stateReadRequestBody
	} else {
		s.nextState = stateOpen
	}
	return 0, nil
}

// --- Completion plumbing --------------------------------------------------

// onIOComplete resumes the driving loop from a transport completion and
// delivers the stored continuation once the loop settles.
func (s *HTTPStream) onIOComplete(n int, err error) {
	n, err = s.doLoop(n, err)
	if !errors.Is(err, ErrIOPending) && s.callback != nil {
		s.doCallback(n, err)
	}
}

// doCallback hands the result to the stored continuation. The continuation
// can do anything, including destroying the adapter, so it runs only after
// everything else has unwound.
func (s *HTTPStream) doCallback(n int, err error) {
	if errors.Is(err, ErrIOPending) {
		panic("quic: delivering a pending result to the stored continuation")
	}
	if s.callback == nil {
		panic("quic: no stored continuation to deliver to")
	}
	if s.inLoop {
		panic("quic: delivering the stored continuation while the driving loop is running")
	}
	cb := s.callback
	s.callback = nil
	cb(n, err)
}

// checkNoCallback enforces the single-slot continuation contract.
func (s *HTTPStream) checkNoCallback(op string) {
	if s.callback != nil {
		panic("quic: " + op + " called while another operation is pending")
	}
}

// --- Transport notifications ----------------------------------------------

// OnDataAvailable delivers buffered response data to a pending body read.
// Without a pending read the data stays buffered in the transport.
func (s *HTTPStream) OnDataAvailable() {
	if s.callback == nil || s.userBuffer == nil {
		// No body read pending; the data stays buffered in the transport.
		return
	}

	n, err := s.readAvailableData(s.userBuffer)
	if errors.Is(err, ErrIOPending) {
		// Spurious notification; wait for the next one.
		return
	}

	s.userBuffer = nil
	s.doCallback(n, err)
}

// OnTrailingHeaders accepts response trailers. They count toward header
// bytes received and are otherwise ignored; if the response is now fully
// read, the read side closes and the exchange resolves successfully.
func (s *HTTPStream) OnTrailingHeaders(block HeaderBlock, frameLen int) {
	s.headersBytesReceived += int64(frameLen)

	if s.stream != nil && s.stream.IsDoneReading() {
		s.stream.FinRead()
		s.setTerminal(nil)
		s.resetStream()
	}
}

// OnClose records the transport's error codes, resolves the terminal status
// and detaches. A loop in progress delivers the stored continuation itself
// once it unwinds.
func (s *HTTPStream) OnClose() {
	if s.stream != nil {
		s.connErr = s.stream.ConnectionError()
		s.streamErr = s.stream.StreamError()
	}
	s.saveTerminal()
	s.resetStream()

	if s.inLoop {
		return
	}
	if s.callback != nil {
		s.doCallback(0, s.resolveTerminal())
	}
}

// OnError records a session-level failure and tears the stream down. A loop
// in progress delivers the stored continuation itself once it unwinds.
func (s *HTTPStream) OnError(err error) {
	s.resetStream()
	s.sessionErr = err
	s.saveTerminal()

	if s.inLoop {
		return
	}
	if s.callback != nil {
		s.doCallback(0, s.resolveTerminal())
	}
}

// OnRendezvousResult resolves a push claim. A nil stream means the rendezvous
// failed: if this was an asynchronous claim, the driving loop falls back to
// requesting a fresh stream.
func (s *HTTPStream) OnRendezvousResult(stream StreamHandle) {
	s.pushHandle = nil
	if stream != nil {
		stream.Attach(s)
		s.stream = stream
	}

	// A stored continuation exists only for an asynchronous rendezvous; a
	// synchronous result was delivered from inside the claim attempt.
	if s.callback == nil {
		return
	}

	if stream == nil {
		s.log.Info("push rendezvous failed, falling back to a fresh stream", nil)
		s.nextState = stateRequestStream
	}
	s.onIOComplete(0, nil)
}

// onReadResponseHeadersComplete finishes an asynchronous initial-headers
// read.
func (s *HTTPStream) onReadResponseHeadersComplete(block HeaderBlock, frameLen int, err error) {
	if err == nil {
		s.headersBytesReceived += int64(frameLen)
		err = s.processResponseHeaders(block)
	}
	if !errors.Is(err, ErrIOPending) && s.callback != nil {
		s.doCallback(0, err)
	}
}

// --- Response processing --------------------------------------------------

// processResponseHeaders fills the response descriptor from the decoded
// header block and the session's connection metadata. Connect timing is
// captured here rather than at initialization, which covers 0-RTT requests
// sent before the handshake confirmed.
func (s *HTTPStream) processResponseHeaders(block HeaderBlock) error {
	code, err := ParseStatusCode(block)
	if err != nil {
		s.log.Warn("invalid response headers", logger.LogFields{"error": err.Error()})
		return &ExchangeError{Status: StatusProtocolError, Msg: "invalid response headers", Cause: err}
	}

	addr, err := s.session.PeerAddress()
	if err != nil {
		return err
	}

	ri := s.responseInfo
	ri.StatusCode = code
	ri.Headers = block.Clone()
	ri.PeerAddress = addr
	ri.ConnectionInfo = s.session.Version().ConnectionInfo()
	ri.WasALPNNegotiated = true
	ri.ALPNNegotiatedProtocol = ri.ConnectionInfo
	ri.ResponseTime = time.Now()
	ri.RequestTime = s.requestTime
	if s.requestInfo != nil {
		ri.Vary = NewVaryData(s.requestInfo.Headers, block)
	}

	s.responseHeadersReceived = true

	s.connectTiming = s.session.ConnectTiming()
	ri.ConnectTiming = s.connectTiming
	return nil
}

// readAvailableData reads buffered response bytes and, once the stream is
// fully read, consumes the FIN, memoizes success and detaches.
func (s *HTTPStream) readAvailableData(buf []byte) (int, error) {
	n, err := s.stream.Read(buf)
	if s.stream == nil {
		// Reading can surface a close notification that already detached.
		return n, err
	}
	if s.stream.IsDoneReading() {
		s.stream.Detach()
		s.stream.FinRead()
		s.setTerminal(nil)
		s.resetStream()
	}
	return n, err
}

// --- Teardown and status resolution ---------------------------------------

// resetStream cancels any outstanding push claim and, if a stream handle is
// held, freezes its byte totals and detaches it. Any body source read in
// flight is abandoned.
func (s *HTTPStream) resetStream() {
	if s.pushHandle != nil {
		s.pushHandle.Cancel()
		s.pushHandle = nil
	}
	if s.stream == nil {
		return
	}

	s.closedStreamReceivedBytes = s.stream.BytesConsumed()
	s.closedStreamSentBytes = s.stream.BytesWritten()
	s.closedIsFirstStream = s.stream.IsFirstStream()
	s.stream.Detach()
	s.stream = nil

	s.log.Debug("stream detached", logger.LogFields{
		"received_bytes": s.closedStreamReceivedBytes,
		"sent_bytes":     s.closedStreamSentBytes,
	})

	if s.bodySource != nil {
		s.bodySource.Reset()
	}
}

// resolveTerminal memoizes the terminal status if needed and returns it.
func (s *HTTPStream) resolveTerminal() error {
	s.saveTerminal()
	return s.terminalErr
}

func (s *HTTPStream) saveTerminal() {
	if !s.hasTerminal {
		s.setTerminal(s.computeTerminal())
	}
}

func (s *HTTPStream) setTerminal(err error) {
	s.hasTerminal = true
	s.terminalErr = err
}

// computeTerminal folds the independent error sources into one status, in
// strict precedence order.
func (s *HTTPStream) computeTerminal() error {
	// An unconfirmed handshake dominates everything: the caller may retry
	// over a fallback transport.
	if !s.session.HandshakeConfirmed() {
		return NewHandshakeFailedError()
	}

	// A session-level abort passes through as recorded.
	if s.sessionErr != nil {
		return s.sessionErr
	}

	// No response descriptor means the request was never sent; the caller
	// may safely retry.
	if s.responseInfo == nil {
		return NewConnectionClosedError()
	}

	// An explicit stream error is fatal. A bare connection-error code on the
	// stream carries no information of its own.
	if s.streamErr != StreamNoError && s.streamErr != StreamConnectionError {
		return &ExchangeError{
			Status:     StatusProtocolError,
			StreamCode: s.streamErr,
			Msg:        fmt.Sprintf("stream error %s", s.streamErr.String()),
			Cause:      NewStreamCancelledError(s.streamErr),
		}
	}

	return NewProtocolError("connection error during exchange")
}
