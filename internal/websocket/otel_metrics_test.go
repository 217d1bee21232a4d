package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOTelMetrics(t *testing.T) {
	m, err := NewOTelMetrics()

	require.NoError(t, err)
	require.NotNil(t, m)
}

func TestOTelMetricsRecording(t *testing.T) {
	m, err := NewOTelMetrics()
	require.NoError(t, err)

	// All recorders must accept the hub's call shapes without panicking
	ctx := context.Background()
	m.RecordConnection(ctx, "client-1", "127.0.0.1:9000")
	m.RecordMessageSent(ctx, "server_message", "client-1", 128)
	m.RecordMessageReceived(ctx, "client_message", "client-1", 64)
	m.RecordRunEvent(ctx, "run-1", TypeRunSnapshot, "update")
	m.RecordQueueDepth(ctx, 3, "broadcast")
	m.RecordQueueDepth(ctx, 0, "broadcast")
	m.RecordDroppedMessage(ctx, "broadcast", "buffer_full")
	m.RecordBroadcast(ctx, "broadcast", 2, 2, 0)
	m.RecordClientCount(ctx, 2)
	m.RecordConnectionError(ctx, "client-1", "upgrade", assert.AnError)
	m.RecordMessageError(ctx, "server_message", "client-1", "write", assert.AnError)
	m.RecordDisconnection(ctx, "client-1", time.Second, "normal")
}

func TestInitOTelMetrics(t *testing.T) {
	require.NoError(t, InitOTelMetrics())
	assert.NotNil(t, GetOTelMetrics())
}
