package quic

import "fmt"

// ClaimResult is the immediate outcome of a push-promise claim attempt.
type ClaimResult int

const (
	// ClaimRejected: no usable offer; the caller requests a fresh stream.
	ClaimRejected ClaimResult = iota
	// ClaimAccepted: the offer validated and the delegate has already been
	// handed the pushed stream.
	ClaimAccepted
	// ClaimPending: the offer cannot be validated until its response headers
	// arrive; the delegate will be called back.
	ClaimPending
)

// String returns the string representation of the ClaimResult.
func (r ClaimResult) String() string {
	switch r {
	case ClaimRejected:
		return "CLAIM_REJECTED"
	case ClaimAccepted:
		return "CLAIM_ACCEPTED"
	case ClaimPending:
		return "CLAIM_PENDING"
	default:
		return fmt.Sprintf("UNKNOWN_CLAIM_RESULT_%d", int(r))
	}
}

// ClaimHandle tracks one outstanding asynchronous claim. The claiming adapter
// owns it and must Cancel it on teardown if the rendezvous has not resolved;
// after Cancel no callback is delivered.
type ClaimHandle struct {
	promise       *PromisedStream
	delegate      RendezvousDelegate
	clientHeaders HeaderBlock
}

// Cancel withdraws the claim. Safe to call after the claim resolved.
func (h *ClaimHandle) Cancel() {
	if h.promise != nil && h.promise.claim == h {
		h.promise.claim = nil
	}
	h.promise = nil
	h.delegate = nil
}

// PromisedStream is one push offer: a stream the peer opened unsolicited,
// keyed by the URL of the request it predicts. Response headers may arrive
// after the offer itself, so validation can be deferred.
type PromisedStream struct {
	index           *PromiseIndex
	id              StreamID
	url             string
	requestHeaders  HeaderBlock
	responseHeaders HeaderBlock // nil until delivered
	stream          StreamHandle

	// claim is the single outstanding deferred claim, if any.
	claim *ClaimHandle
}

// NewPromisedStream builds an offer from the promised request headers and the
// pushed stream. The promised request must describe a complete URL.
func NewPromisedStream(id StreamID, promisedRequest HeaderBlock, stream StreamHandle) (*PromisedStream, error) {
	url, ok := RequestURL(promisedRequest)
	if !ok {
		return nil, fmt.Errorf("quic: promised request for stream %d does not describe a URL", id)
	}
	return &PromisedStream{
		id:             id,
		url:            url,
		requestHeaders: promisedRequest.Clone(),
		stream:         stream,
	}, nil
}

// ID returns the pushed stream's ID.
func (p *PromisedStream) ID() StreamID { return p.id }

// URL returns the promised request URL this offer is keyed by.
func (p *PromisedStream) URL() string { return p.url }

// HandleClientRequest attempts to claim this offer for an actual client
// request. With response headers on hand the claim validates immediately; on
// acceptance the delegate receives the pushed stream before this returns.
// Without response headers the claim parks until they arrive.
func (p *PromisedStream) HandleClientRequest(clientHeaders HeaderBlock, delegate RendezvousDelegate) (*ClaimHandle, ClaimResult) {
	if p.claim != nil {
		// A second claimant while one is parked; only one adapter may
		// rendezvous with an offer.
		return nil, ClaimRejected
	}

	if p.responseHeaders != nil {
		if !CheckVary(clientHeaders, p.requestHeaders, p.responseHeaders) {
			p.reject()
			return nil, ClaimRejected
		}
		stream := p.adopt()
		delegate.OnRendezvousResult(stream)
		return nil, ClaimAccepted
	}

	h := &ClaimHandle{promise: p, delegate: delegate, clientHeaders: clientHeaders.Clone()}
	p.claim = h
	return h, ClaimPending
}

// OnResponseHeaders records the promised response's header block and resolves
// a parked claim: the delegate receives the pushed stream on a Vary match and
// nil on a mismatch, after which the offer is gone either way.
func (p *PromisedStream) OnResponseHeaders(block HeaderBlock) {
	p.responseHeaders = block.Clone()
	if p.claim == nil {
		return
	}

	h := p.claim
	p.claim = nil
	if !CheckVary(h.clientHeaders, p.requestHeaders, p.responseHeaders) {
		p.reject()
		h.delegate.OnRendezvousResult(nil)
		return
	}
	stream := p.adopt()
	h.delegate.OnRendezvousResult(stream)
}

// Withdraw cancels the offer, resetting the pushed stream with the given
// code. A parked claimant is told the rendezvous failed.
func (p *PromisedStream) Withdraw(code StreamErrorCode) {
	if p.stream != nil {
		p.stream.Reset(code)
		p.stream = nil
	}
	p.removeFromIndex()
	if p.claim != nil {
		h := p.claim
		p.claim = nil
		h.delegate.OnRendezvousResult(nil)
	}
}

// adopt hands the pushed stream over and removes the spent offer.
func (p *PromisedStream) adopt() StreamHandle {
	stream := p.stream
	p.stream = nil
	p.removeFromIndex()
	return stream
}

// reject drops an unusable offer, resetting its pushed stream.
func (p *PromisedStream) reject() {
	if p.stream != nil {
		p.stream.Reset(StreamCancelled)
		p.stream = nil
	}
	p.removeFromIndex()
}

func (p *PromisedStream) removeFromIndex() {
	if p.index != nil {
		delete(p.index.promises, p.url)
		p.index = nil
	}
}

// PromiseIndex is the session-wide registry of outstanding push offers,
// keyed by promised request URL.
//
// Like the rest of the session surface it is confined to the session's event
// goroutine and needs no locking.
type PromiseIndex struct {
	promises map[string]*PromisedStream
}

// NewPromiseIndex creates an empty index.
func NewPromiseIndex() *PromiseIndex {
	return &PromiseIndex{promises: make(map[string]*PromisedStream)}
}

// Promised looks up the pending offer for the exact request URL.
func (ix *PromiseIndex) Promised(url string) *PromisedStream {
	return ix.promises[url]
}

// Add registers an offer. A duplicate URL replaces the previous offer, which
// is withdrawn.
func (ix *PromiseIndex) Add(p *PromisedStream) {
	if prev := ix.promises[p.url]; prev != nil {
		prev.Withdraw(StreamCancelled)
	}
	p.index = ix
	ix.promises[p.url] = p
}

// Try attempts to claim an offer matching the client request headers. The
// URL is reconstructed from the block's pseudo-headers; no offer for it, or
// a malformed block, rejects immediately.
func (ix *PromiseIndex) Try(clientHeaders HeaderBlock, delegate RendezvousDelegate) (*ClaimHandle, ClaimResult) {
	url, ok := RequestURL(clientHeaders)
	if !ok {
		return nil, ClaimRejected
	}
	p := ix.promises[url]
	if p == nil {
		return nil, ClaimRejected
	}
	return p.HandleClientRequest(clientHeaders, delegate)
}

// Withdraw cancels the offer carried by the given pushed stream ID.
func (ix *PromiseIndex) Withdraw(id StreamID, code StreamErrorCode) {
	for _, p := range ix.promises {
		if p.id == id {
			p.Withdraw(code)
			return
		}
	}
}

// Len reports how many offers are outstanding.
func (ix *PromiseIndex) Len() int {
	return len(ix.promises)
}
