package quic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDrainableBufferFillAndDrain(t *testing.T) {
	b := newDrainableBuffer(8)
	assert.Len(t, b.fillTarget(), 8)
	assert.Zero(t, b.bytesRemaining())

	copy(b.fillTarget(), "abcdef")
	b.setStaged(6)
	assert.Equal(t, 6, b.bytesRemaining())
	assert.Equal(t, "abcdef", string(b.remaining()))

	b.didConsume(4)
	assert.Equal(t, 2, b.bytesRemaining())
	assert.Equal(t, "ef", string(b.remaining()))

	b.didConsume(2)
	assert.Zero(t, b.bytesRemaining())
}

func TestDrainableBufferConsumeClampsToStaged(t *testing.T) {
	b := newDrainableBuffer(8)
	copy(b.fillTarget(), "ab")
	b.setStaged(2)

	b.didConsume(10)
	assert.Zero(t, b.bytesRemaining())
}

func TestDrainableBufferRefillResetsCursor(t *testing.T) {
	b := newDrainableBuffer(8)
	copy(b.fillTarget(), "abcd")
	b.setStaged(4)
	b.didConsume(4)

	copy(b.fillTarget(), "wxyz")
	b.setStaged(4)
	assert.Equal(t, "wxyz", string(b.remaining()))
}
