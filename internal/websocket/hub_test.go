package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recvMessage waits for one frame on the client's send channel and decodes it
func recvMessage(t *testing.T, ch <-chan []byte) map[string]interface{} {
	t.Helper()

	select {
	case raw := <-ch:
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

// registerClient registers a mock-backed client and consumes the greeting
func registerClient(t *testing.T, hub *Hub) *Client {
	t.Helper()

	client := NewClientWithConnection(hub, NewMockConnection(), testLogger())
	hub.Register(client)

	greeting := recvMessage(t, client.send)
	require.Equal(t, TypeConnection, greeting["type"])
	return client
}

func startedHub(t *testing.T) *Hub {
	t.Helper()

	hub := NewHub(testLogger())
	hub.Start()
	t.Cleanup(hub.Stop)
	return hub
}

func TestNewHub(t *testing.T) {
	hub := NewHub(testLogger())

	require.NotNil(t, hub)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestNewHubNilLogger(t *testing.T) {
	hub := NewHub(nil)

	require.NotNil(t, hub)
	require.NotNil(t, hub.logger)
}

func TestHubStartStopIdempotent(t *testing.T) {
	hub := NewHub(testLogger())

	hub.Start()
	hub.Start()
	hub.Stop()
	hub.Stop()

	// Broadcasting after Stop must not block
	done := make(chan struct{})
	go func() {
		hub.BroadcastStatus("idle", "shutting down")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked after hub stop")
	}
}

func TestHubRegisterSendsGreeting(t *testing.T) {
	hub := startedHub(t)

	client := NewClientWithConnection(hub, NewMockConnection(), testLogger())
	hub.Register(client)

	greeting := recvMessage(t, client.send)
	assert.Equal(t, TypeConnection, greeting["type"])

	data, ok := greeting["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "connected", data["status"])
	assert.Equal(t, client.id, data["client_id"])
	assert.Contains(t, data["message"], "CallPulse")

	_, err := time.Parse(time.RFC3339, greeting["timestamp"].(string))
	assert.NoError(t, err)
}

func TestHubRegisterGreetingCarriesTrace(t *testing.T) {
	hub := startedHub(t)

	client := &Client{
		hub:         hub,
		conn:        NewMockConnection(),
		send:        make(chan []byte, 8),
		id:          "traced-client",
		traceID:     "trace-xyz",
		remoteAddr:  "127.0.0.1:9001",
		connectedAt: time.Now(),
		logger:      testLogger(),
	}
	hub.Register(client)

	greeting := recvMessage(t, client.send)
	assert.Equal(t, "trace-xyz", greeting["trace_id"])
}

func TestBroadcastUpdateSnapshotEnvelope(t *testing.T) {
	hub := startedHub(t)
	client := registerClient(t, hub)

	hub.BroadcastUpdate(TypeRunSnapshot, "run-1", "update", map[string]interface{}{
		"run_id": "run-1",
		"status": "running",
	})

	msg := recvMessage(t, client.send)
	assert.Equal(t, TypeRunSnapshot, msg["type"])

	data, ok := msg["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "running", data["status"])

	// Snapshots are self-describing, the envelope stays lean
	_, hasRunID := msg["run_id"]
	assert.False(t, hasRunID)
	_, hasAction := msg["action"]
	assert.False(t, hasAction)
}

func TestBroadcastUpdateEventEnvelope(t *testing.T) {
	hub := startedHub(t)
	client := registerClient(t, hub)

	hub.BroadcastUpdate(TypeRunError, "run-2", "failed", map[string]interface{}{
		"code": "DATA_QUALITY",
	})

	msg := recvMessage(t, client.send)
	assert.Equal(t, TypeRunError, msg["type"])
	assert.Equal(t, "run-2", msg["run_id"])
	assert.Equal(t, "failed", msg["action"])
}

func TestBroadcastUpdateSerializesBeforeReturn(t *testing.T) {
	hub := startedHub(t)
	client := registerClient(t, hub)

	payload := map[string]interface{}{"status": "running"}
	hub.BroadcastUpdate(TypeRunSnapshot, "run-3", "update", payload)

	// Mutating the payload after the call must not affect what clients see
	payload["status"] = "mutated"

	msg := recvMessage(t, client.send)
	data := msg["data"].(map[string]interface{})
	assert.Equal(t, "running", data["status"])
}

func TestBroadcastStatus(t *testing.T) {
	hub := startedHub(t)
	client := registerClient(t, hub)

	hub.BroadcastStatus("ready", "queue drained")

	msg := recvMessage(t, client.send)
	assert.Equal(t, TypeStatus, msg["type"])

	data := msg["data"].(map[string]interface{})
	assert.Equal(t, "ready", data["status"])
	assert.Equal(t, "queue drained", data["message"])
}

func TestBroadcastErrorIncludesRecoveryHint(t *testing.T) {
	hub := startedHub(t)
	client := registerClient(t, hub)

	hub.BroadcastError("DATA_QUALITY", "dataset failed validation", "missing column agent_id", "validate", true)

	msg := recvMessage(t, client.send)
	assert.Equal(t, TypeError, msg["type"])

	data := msg["data"].(map[string]interface{})
	assert.Equal(t, "DATA_QUALITY", data["code"])
	assert.Equal(t, "dataset failed validation", data["message"])
	assert.Equal(t, "missing column agent_id", data["details"])
	assert.Equal(t, "validate", data["step"])
	assert.Equal(t, true, data["recoverable"])
	assert.Equal(t, ErrorRecoveryHints["DATA_QUALITY"], data["hint"])
}

func TestBroadcastErrorDefaultHint(t *testing.T) {
	hub := startedHub(t)
	client := registerClient(t, hub)

	hub.BroadcastError("SOMETHING_ELSE", "boom", "", "", false)

	msg := recvMessage(t, client.send)
	data := msg["data"].(map[string]interface{})
	assert.Equal(t, ErrorRecoveryHints["default"], data["hint"])
}

func TestBroadcastJSONDirect(t *testing.T) {
	hub := startedHub(t)
	client := registerClient(t, hub)

	hub.BroadcastJSON(map[string]interface{}{
		"type": "custom",
		"data": map[string]interface{}{"answer": 42},
	})

	msg := recvMessage(t, client.send)
	assert.Equal(t, "custom", msg["type"])
}

func TestHubDisconnectsSlowClient(t *testing.T) {
	hub := startedHub(t)

	// A client whose buffer is already full cannot take the broadcast
	client := &Client{
		hub:         hub,
		conn:        NewMockConnection(),
		send:        make(chan []byte, 1),
		id:          "slow-client",
		remoteAddr:  "127.0.0.1:9002",
		connectedAt: time.Now(),
		logger:      testLogger(),
	}
	client.send <- []byte("stale")

	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	hub.BroadcastStatus("busy", "queue saturated")

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		time.Second, 10*time.Millisecond)
}

func TestHubUnregisterClosesSend(t *testing.T) {
	hub := startedHub(t)
	client := registerClient(t, hub)

	hub.unregister <- client

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		time.Second, 10*time.Millisecond)

	_, open := <-client.send
	assert.False(t, open)
}

func TestHubClientCount(t *testing.T) {
	hub := startedHub(t)

	assert.Equal(t, 0, hub.ClientCount())

	registerClient(t, hub)
	registerClient(t, hub)

	assert.Equal(t, 2, hub.ClientCount())
}

func TestGetHubMetrics(t *testing.T) {
	hub := startedHub(t)
	client := registerClient(t, hub)

	hub.BroadcastStatus("ready", "warmed up")
	recvMessage(t, client.send)

	metrics := hub.GetHubMetrics()
	assert.Equal(t, 1, metrics["active_clients"])
	assert.Equal(t, int64(1), metrics["total_connections"])
	assert.Equal(t, int64(1), metrics["messages_sent"])
	assert.Equal(t, int64(0), metrics["messages_received"])
}
