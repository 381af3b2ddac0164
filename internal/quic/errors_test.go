package quic_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/quicfetch/internal/quic"
)

func TestExchangeErrorUnwrap(t *testing.T) {
	cause := errors.New("socket closed")
	err := quic.NewSessionAbortedError(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "socket closed")
	assert.Contains(t, err.Error(), "SESSION_ABORTED")
}

func TestExchangeErrorIsMatchesStatus(t *testing.T) {
	err := quic.NewProtocolError("bad frame")
	assert.ErrorIs(t, err, quic.NewProtocolError("different message"))
	assert.NotErrorIs(t, err, quic.NewHandshakeFailedError())
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want quic.StatusCode
	}{
		{name: "nil is ok", err: nil, want: quic.StatusOK},
		{name: "handshake failed", err: quic.NewHandshakeFailedError(), want: quic.StatusHandshakeFailed},
		{name: "connection closed", err: quic.NewConnectionClosedError(), want: quic.StatusConnectionClosed},
		{name: "protocol error", err: quic.NewProtocolError("x"), want: quic.StatusProtocolError},
		{name: "stream cancelled", err: quic.NewStreamCancelledError(quic.StreamRefused), want: quic.StatusStreamCancelled},
		{
			name: "wrapped exchange error",
			err:  &quic.ExchangeError{Status: quic.StatusProtocolError, Msg: "outer", Cause: quic.NewHandshakeFailedError()},
			want: quic.StatusProtocolError,
		},
		{name: "plain error is a session abort", err: errors.New("boom"), want: quic.StatusSessionAborted},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, quic.StatusOf(tc.err))
		})
	}
}

func TestStreamCancelledErrorCarriesCode(t *testing.T) {
	err := quic.NewStreamCancelledError(quic.StreamPeerGoingAway)
	require.Equal(t, quic.StreamPeerGoingAway, err.StreamCode)
	assert.Contains(t, err.Error(), "STREAM_PEER_GOING_AWAY")
}

func TestCodeStrings(t *testing.T) {
	assert.Equal(t, "STREAM_CANCELLED", quic.StreamCancelled.String())
	assert.Equal(t, "CONN_HANDSHAKE_TIMEOUT", quic.ConnHandshakeTimeout.String())
	assert.Equal(t, "HANDSHAKE_FAILED", quic.StatusHandshakeFailed.String())
	assert.Equal(t, "UNKNOWN_STREAM_ERROR_CODE_4095", quic.StreamErrorCode(4095).String())
}

func TestConvertRequestPriority(t *testing.T) {
	tests := []struct {
		in   quic.RequestPriority
		want quic.PriorityValue
	}{
		{quic.PriorityHighest, 0},
		{quic.PriorityHigh, 1},
		{quic.PriorityMedium, 2},
		{quic.PriorityLow, 3},
		{quic.PriorityIdle, 4},
		{quic.RequestPriority(-3), 4},
		{quic.RequestPriority(99), 0},
	}
	for _, tc := range tests {
		t.Run(tc.in.String(), func(t *testing.T) {
			assert.Equal(t, tc.want, quic.ConvertRequestPriority(tc.in))
		})
	}
}

func TestVersionConnectionInfo(t *testing.T) {
	assert.Equal(t, "http/2+quic/39", quic.Version(39).ConnectionInfo())
	assert.Equal(t, "http/2+quic/unknown", quic.VersionUnknown.ConnectionInfo())
}
