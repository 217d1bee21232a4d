package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"callpulse/internal/infrastructure"
	"callpulse/pkg/contracts/events"
)

// Message type constants shared with the dashboard client, defined by
// the events contract package
const (
	TypeConnection  = string(events.MessageTypeConnection)
	TypeRunSnapshot = string(events.MessageTypeRunSnapshot)
	TypeRunError    = string(events.MessageTypeRunError)
	TypeStatus      = string(events.MessageTypeStatus)
	TypeError       = string(events.MessageTypeError)
)

// ErrorRecoveryHints provides user-friendly recovery suggestions
var ErrorRecoveryHints = map[string]string{
	"DATA_QUALITY":    "Check that the CSV has the required columns and enough rows, then upload again",
	"LLM_UNAVAILABLE": "The report was generated from heuristics; configure an LLM provider for narrative insights",
	"QUEUE_FULL":      "The analysis queue is full, retry in a moment",
	"default":         "Please try again or contact support",
}

// Hub maintains the set of active clients and broadcasts messages to the clients
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Inbound messages from the clients
	broadcast chan []byte

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger instance
	logger *slog.Logger

	// Metrics
	totalConnections int64
	messagesSent     int64
	messagesReceived int64

	// Control
	quit        chan struct{}
	running     bool
	metricsQuit chan struct{}
}

// NewHub creates a new Hub instance with dependency injection
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger = logger.With(slog.String("component", "websocket.hub"))

	return &Hub{
		broadcast:   make(chan []byte),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		clients:     make(map[*Client]bool),
		logger:      logger,
		quit:        make(chan struct{}),
		metricsQuit: make(chan struct{}),
	}
}

// Start starts the hub's goroutines
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.Run()
	go h.reportMetrics()
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.logger.Info("Hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.totalConnections++
			h.mu.Unlock()

			ctx := context.Background()
			if client.traceID != "" {
				ctx = infrastructure.WithTraceID(ctx, client.traceID)
			}

			h.logger.InfoContext(ctx, "Client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))

			GetMetrics().RecordConnection()
			if otelMetrics := GetOTelMetrics(); otelMetrics != nil {
				otelMetrics.RecordConnection(ctx, client.id, client.remoteAddr)
				otelMetrics.RecordClientCount(ctx, int64(count))
			}

			// Greet the new client so the dashboard can show stream state
			connMsg := events.Envelope{
				Type: events.MessageTypeConnection,
				Data: events.ConnectionInfo{
					Status:   "connected",
					Message:  "Connected to CallPulse run stream",
					ClientID: client.id,
				},
				Timestamp: time.Now().Format(time.RFC3339),
				TraceID:   client.traceID,
			}

			jsonData, err := json.Marshal(connMsg)
			if err == nil {
				select {
				case client.send <- jsonData:
					h.logger.DebugContext(ctx, "Sent connection message to client",
						slog.String("client_id", client.id))
				default:
					h.logger.WarnContext(ctx, "Failed to send connection message - client buffer full",
						slog.String("client_id", client.id))
				}
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				count := len(h.clients)
				h.mu.Unlock()

				ctx := context.Background()
				if client.traceID != "" {
					ctx = infrastructure.WithTraceID(ctx, client.traceID)
				}

				h.logger.InfoContext(ctx, "Client unregistered",
					slog.Int("total_clients", count),
					slog.String("client_id", client.id),
					slog.Duration("connection_duration", time.Since(client.connectedAt)))

				GetMetrics().RecordDisconnection(time.Since(client.connectedAt))
				if otelMetrics := GetOTelMetrics(); otelMetrics != nil {
					otelMetrics.RecordDisconnection(ctx, client.id, time.Since(client.connectedAt), "normal")
					otelMetrics.RecordClientCount(ctx, int64(count))
				}
			} else {
				h.mu.Unlock()
			}

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			h.logger.Debug("Broadcasting message to clients",
				slog.Int("client_count", len(clients)),
				slog.Int("message_size", len(message)))

			successCount := 0
			failCount := 0

			for _, client := range clients {
				select {
				case client.send <- message:
					successCount++
				default:
					failCount++
					// Client's send channel is full, close it
					h.mu.Lock()
					close(client.send)
					delete(h.clients, client)
					h.mu.Unlock()

					GetMetrics().RecordDroppedMessage()

					ctx := context.Background()
					if client.traceID != "" {
						ctx = infrastructure.WithTraceID(ctx, client.traceID)
					}
					h.logger.WarnContext(ctx, "Client send buffer full, disconnecting",
						slog.String("client_id", client.id))
				}
			}

			if failCount > 0 {
				h.logger.Warn("Some clients failed to receive broadcast",
					slog.Int("success_count", successCount),
					slog.Int("fail_count", failCount))
			}

			if otelMetrics := GetOTelMetrics(); otelMetrics != nil {
				otelMetrics.RecordBroadcast(context.Background(), "broadcast",
					int64(len(clients)), int64(successCount), int64(failCount))
			}
		}
	}
}

// BroadcastUpdate sends an event to all connected clients. Run snapshots
// carry their full state in the payload; other events keep run_id and
// action in the envelope. The payload is serialized before this returns,
// so callers may reuse or mutate it afterwards.
func (h *Hub) BroadcastUpdate(eventType, runID, action string, payload interface{}) {
	h.BroadcastUpdateWithTrace(eventType, runID, action, payload, "")
}

// BroadcastUpdateWithTrace sends an event with a trace ID to all connected clients
func (h *Hub) BroadcastUpdateWithTrace(eventType, runID, action string, payload interface{}, traceID string) {
	message := events.Envelope{
		Type:      events.MessageType(eventType),
		Data:      payload,
		Timestamp: time.Now().Format(time.RFC3339),
		TraceID:   traceID,
	}

	// Snapshots are self-describing, everything else keeps the envelope fields
	if eventType != TypeRunSnapshot && eventType != "" {
		message.RunID = runID
		message.Action = action
	}

	if eventType == TypeRunSnapshot {
		if otelMetrics := GetOTelMetrics(); otelMetrics != nil {
			otelMetrics.RecordRunEvent(context.Background(), runID, eventType, action)
		}
	}

	h.broadcastEnvelope(message)
}

// broadcastEnvelope marshals the envelope in the caller's goroutine and
// hands the bytes to the hub loop
func (h *Hub) broadcastEnvelope(message events.Envelope) {
	jsonData, err := json.Marshal(message)
	if err != nil {
		ctx := context.Background()
		if message.TraceID != "" {
			ctx = infrastructure.WithTraceID(ctx, message.TraceID)
		}
		h.logger.ErrorContext(ctx, "Error marshaling message",
			slog.String("error", err.Error()),
			slog.String("message_type", string(message.Type)))
		return
	}

	h.enqueue(jsonData)
}

func (h *Hub) enqueue(jsonData []byte) {
	select {
	case h.broadcast <- jsonData:
	case <-h.quit:
		return
	}

	h.mu.Lock()
	h.messagesSent++
	h.mu.Unlock()
}

// BroadcastStatus sends a server status message
func (h *Hub) BroadcastStatus(status, message string) {
	h.broadcastEnvelope(events.Envelope{
		Type:      events.MessageTypeStatus,
		Data:      events.StatusInfo{Status: status, Message: message},
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// BroadcastError sends a structured error message
func (h *Hub) BroadcastError(code, message, details, step string, recoverable bool) {
	hint := ErrorRecoveryHints[code]
	if hint == "" {
		hint = ErrorRecoveryHints["default"]
	}

	h.broadcastEnvelope(events.Envelope{
		Type: events.MessageTypeError,
		Data: events.ErrorInfo{
			Code:        code,
			Message:     message,
			Details:     details,
			Step:        step,
			Recoverable: recoverable,
			Hint:        hint,
		},
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// BroadcastJSON sends a pre-formatted JSON message directly
func (h *Hub) BroadcastJSON(message map[string]interface{}) {
	jsonData, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Error marshaling message",
			slog.String("error", err.Error()))
		return
	}

	h.enqueue(jsonData)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop gracefully stops the hub
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
	close(h.metricsQuit)

	// Close all client connections
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// reportMetrics periodically reports hub metrics
func (h *Hub) reportMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.metricsQuit:
			h.logger.Info("Metrics reporting shutting down")
			return

		case <-ticker.C:
			h.mu.RLock()
			activeClients := len(h.clients)
			totalConnections := h.totalConnections
			messagesSent := h.messagesSent
			messagesReceived := h.messagesReceived
			h.mu.RUnlock()

			GetMetrics().RecordQueueDepth(int64(len(h.broadcast)))

			h.logger.Info("WebSocket hub metrics",
				slog.Int("active_clients", activeClients),
				slog.Int64("total_connections", totalConnections),
				slog.Int64("messages_sent", messagesSent),
				slog.Int64("messages_received", messagesReceived),
				slog.Int("broadcast_queue", len(h.broadcast)),
			)
		}
	}
}

// GetHubMetrics returns current hub metrics
func (h *Hub) GetHubMetrics() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"active_clients":    len(h.clients),
		"total_connections": h.totalConnections,
		"messages_sent":     h.messagesSent,
		"messages_received": h.messagesReceived,
	}
}
