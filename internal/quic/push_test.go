package quic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/quicfetch/internal/quic"
	"example.com/quicfetch/internal/quictest"
)

// rendezvousRecorder captures rendezvous outcomes.
type rendezvousRecorder struct {
	called  bool
	streams []quic.StreamHandle
}

func (r *rendezvousRecorder) OnRendezvousResult(stream quic.StreamHandle) {
	r.called = true
	r.streams = append(r.streams, stream)
}

func newPromise(t *testing.T, id quic.StreamID, url string, extra ...string) (*quic.PromisedStream, *quictest.Stream) {
	t.Helper()
	pushed := quictest.NewStream(id)
	block, err := quic.BuildRequestHeaderBlock("GET", url, headersWith(extra...))
	require.NoError(t, err)
	p, err := quic.NewPromisedStream(id, block, pushed)
	require.NoError(t, err)
	return p, pushed
}

func TestNewPromisedStreamRequiresURL(t *testing.T) {
	_, err := quic.NewPromisedStream(7, headersWith(":method", "GET"), quictest.NewStream(7))
	require.Error(t, err)
}

func TestPromiseIndexLookup(t *testing.T) {
	ix := quic.NewPromiseIndex()
	p, _ := newPromise(t, 7, "https://www.example.org/app.js")
	ix.Add(p)

	assert.Same(t, p, ix.Promised("https://www.example.org/app.js"))
	assert.Nil(t, ix.Promised("https://www.example.org/other.js"))
	assert.Equal(t, 1, ix.Len())
}

func TestPromiseIndexDuplicateURLWithdrawsPrevious(t *testing.T) {
	ix := quic.NewPromiseIndex()
	first, firstStream := newPromise(t, 7, "https://www.example.org/app.js")
	ix.Add(first)
	second, _ := newPromise(t, 9, "https://www.example.org/app.js")
	ix.Add(second)

	assert.True(t, firstStream.WasReset)
	assert.Equal(t, quic.StreamCancelled, firstStream.ResetCode)
	assert.Same(t, second, ix.Promised("https://www.example.org/app.js"))
	assert.Equal(t, 1, ix.Len())
}

func TestTryWithNoOfferRejects(t *testing.T) {
	ix := quic.NewPromiseIndex()
	var rec rendezvousRecorder

	client, err := quic.BuildRequestHeaderBlock("GET", "https://www.example.org/app.js", nil)
	require.NoError(t, err)
	handle, result := ix.Try(client, &rec)
	assert.Nil(t, handle)
	assert.Equal(t, quic.ClaimRejected, result)
	assert.False(t, rec.called)

	// A block without a reconstructable URL also rejects.
	handle, result = ix.Try(headersWith(":method", "GET"), &rec)
	assert.Nil(t, handle)
	assert.Equal(t, quic.ClaimRejected, result)
}

func TestTryAcceptsSynchronouslyWithHeadersOnHand(t *testing.T) {
	ix := quic.NewPromiseIndex()
	p, pushed := newPromise(t, 7, "https://www.example.org/app.js")
	ix.Add(p)
	p.OnResponseHeaders(headersWith(":status", "200"))

	var rec rendezvousRecorder
	client, err := quic.BuildRequestHeaderBlock("GET", "https://www.example.org/app.js", nil)
	require.NoError(t, err)
	handle, result := ix.Try(client, &rec)

	assert.Nil(t, handle)
	assert.Equal(t, quic.ClaimAccepted, result)
	// The delegate received the pushed stream before Try returned.
	require.Len(t, rec.streams, 1)
	assert.Equal(t, quic.StreamHandle(pushed), rec.streams[0])
	assert.Zero(t, ix.Len())
}

func TestTryRejectsOnSynchronousVaryMismatch(t *testing.T) {
	ix := quic.NewPromiseIndex()
	p, pushed := newPromise(t, 7, "https://www.example.org/app.js", "accept-encoding", "br")
	ix.Add(p)
	p.OnResponseHeaders(headersWith(":status", "200", "vary", "accept-encoding"))

	var rec rendezvousRecorder
	client, err := quic.BuildRequestHeaderBlock("GET", "https://www.example.org/app.js",
		headersWith("accept-encoding", "gzip"))
	require.NoError(t, err)
	_, result := ix.Try(client, &rec)

	assert.Equal(t, quic.ClaimRejected, result)
	assert.False(t, rec.called)
	// The unusable offer is gone and its stream reset.
	assert.True(t, pushed.WasReset)
	assert.Zero(t, ix.Len())
}

func TestDeferredClaimResolvesWhenHeadersArrive(t *testing.T) {
	ix := quic.NewPromiseIndex()
	p, pushed := newPromise(t, 7, "https://www.example.org/app.js")
	ix.Add(p)

	var rec rendezvousRecorder
	client, err := quic.BuildRequestHeaderBlock("GET", "https://www.example.org/app.js", nil)
	require.NoError(t, err)
	handle, result := ix.Try(client, &rec)
	require.Equal(t, quic.ClaimPending, result)
	require.NotNil(t, handle)
	assert.False(t, rec.called)

	p.OnResponseHeaders(headersWith(":status", "200"))
	require.Len(t, rec.streams, 1)
	assert.Equal(t, quic.StreamHandle(pushed), rec.streams[0])
	assert.Zero(t, ix.Len())
}

func TestDeferredClaimFailsOnVaryMismatch(t *testing.T) {
	ix := quic.NewPromiseIndex()
	p, pushed := newPromise(t, 7, "https://www.example.org/app.js", "accept-encoding", "br")
	ix.Add(p)

	var rec rendezvousRecorder
	client, err := quic.BuildRequestHeaderBlock("GET", "https://www.example.org/app.js",
		headersWith("accept-encoding", "gzip"))
	require.NoError(t, err)
	_, result := ix.Try(client, &rec)
	require.Equal(t, quic.ClaimPending, result)

	p.OnResponseHeaders(headersWith(":status", "200", "vary", "accept-encoding"))
	// The claimant is told the rendezvous failed; the stream is reset.
	require.Len(t, rec.streams, 1)
	assert.Nil(t, rec.streams[0])
	assert.True(t, pushed.WasReset)
	assert.Zero(t, ix.Len())
}

func TestSecondClaimantRejectedWhileOneParked(t *testing.T) {
	ix := quic.NewPromiseIndex()
	p, _ := newPromise(t, 7, "https://www.example.org/app.js")
	ix.Add(p)

	client, err := quic.BuildRequestHeaderBlock("GET", "https://www.example.org/app.js", nil)
	require.NoError(t, err)

	var first, second rendezvousRecorder
	_, result := ix.Try(client, &first)
	require.Equal(t, quic.ClaimPending, result)

	_, result = ix.Try(client.Clone(), &second)
	assert.Equal(t, quic.ClaimRejected, result)
	assert.False(t, second.called)
}

func TestCancelledClaimGetsNoCallback(t *testing.T) {
	ix := quic.NewPromiseIndex()
	p, _ := newPromise(t, 7, "https://www.example.org/app.js")
	ix.Add(p)

	var rec rendezvousRecorder
	client, err := quic.BuildRequestHeaderBlock("GET", "https://www.example.org/app.js", nil)
	require.NoError(t, err)
	handle, result := ix.Try(client, &rec)
	require.Equal(t, quic.ClaimPending, result)

	handle.Cancel()
	p.OnResponseHeaders(headersWith(":status", "200"))
	assert.False(t, rec.called)

	// Cancel after resolution is harmless.
	handle.Cancel()
}

func TestWithdrawNotifiesParkedClaimant(t *testing.T) {
	ix := quic.NewPromiseIndex()
	p, pushed := newPromise(t, 7, "https://www.example.org/app.js")
	ix.Add(p)

	var rec rendezvousRecorder
	client, err := quic.BuildRequestHeaderBlock("GET", "https://www.example.org/app.js", nil)
	require.NoError(t, err)
	_, result := ix.Try(client, &rec)
	require.Equal(t, quic.ClaimPending, result)

	ix.Withdraw(7, quic.StreamCancelled)
	require.Len(t, rec.streams, 1)
	assert.Nil(t, rec.streams[0])
	assert.True(t, pushed.WasReset)
	assert.Equal(t, quic.StreamCancelled, pushed.ResetCode)
	assert.Zero(t, ix.Len())

	// Withdrawing an unknown stream ID is a no-op.
	ix.Withdraw(99, quic.StreamCancelled)
}
