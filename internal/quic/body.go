package quic

// DefaultMaxPacketSize is the transport's maximum packet size assumed when
// the caller does not supply one.
const DefaultMaxPacketSize = 1350

// BodyBufferPackets is how many maximum-size packets the request body staging
// buffer holds. A larger buffer trades memory for fewer partial-packet
// writes.
const BodyBufferPackets = 10

// drainableBuffer is a reusable staging buffer that alternates between being
// filled from the body source and drained onto the stream. A cursor tracks
// how much of the staged region has been written.
type drainableBuffer struct {
	data   []byte
	staged int // Bytes valid from the last fill.
	offset int // Bytes already drained from the staged region.
}

func newDrainableBuffer(capacity int) *drainableBuffer {
	return &drainableBuffer{data: make([]byte, capacity)}
}

// fillTarget exposes the whole buffer for the next body-source read.
func (b *drainableBuffer) fillTarget() []byte {
	return b.data
}

// setStaged records that the first n bytes hold fresh data and resets the
// drain cursor.
func (b *drainableBuffer) setStaged(n int) {
	b.staged = n
	b.offset = 0
}

// remaining returns the staged bytes not yet drained.
func (b *drainableBuffer) remaining() []byte {
	return b.data[b.offset:b.staged]
}

// bytesRemaining is the count of staged bytes not yet drained.
func (b *drainableBuffer) bytesRemaining() int {
	return b.staged - b.offset
}

// didConsume advances the drain cursor after a successful write.
func (b *drainableBuffer) didConsume(n int) {
	if n > b.bytesRemaining() {
		n = b.bytesRemaining()
	}
	b.offset += n
}
