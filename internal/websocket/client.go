package websocket

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"callpulse/internal/infrastructure"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Client is a middleman between the websocket connection and the hub
type Client struct {
	hub *Hub

	// The websocket connection
	conn Connection

	// Buffered channel of outbound messages
	send chan []byte

	// Client metadata
	id          string
	traceID     string
	remoteAddr  string
	connectedAt time.Time

	// Logger
	logger *slog.Logger

	// Metrics
	messagesSent     int64
	messagesReceived int64
	bytesSent        int64
	bytesReceived    int64
}

// NewClient creates a new Client with dependency injection
func NewClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	return newClient(hub, NewConnectionWrapper(conn), logger)
}

// NewClientWithConnection creates a new Client with a custom connection (for testing)
func NewClientWithConnection(hub *Hub, conn Connection, logger *slog.Logger) *Client {
	return newClient(hub, conn, logger)
}

// NewClientWithTrace creates a new Client with trace ID and dependency injection
func NewClientWithTrace(hub *Hub, conn *websocket.Conn, traceID string, logger *slog.Logger) *Client {
	client := NewClient(hub, conn, logger)
	client.traceID = traceID
	client.logger = client.logger.With(slog.String("trace_id", traceID))
	return client
}

func newClient(hub *Hub, conn Connection, logger *slog.Logger) *Client {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	id := uuid.New().String()
	logger = logger.With(
		slog.String("component", "websocket.client"),
		slog.String("client_id", id),
	)

	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		id:          id,
		remoteAddr:  conn.RemoteAddr(),
		connectedAt: time.Now(),
		logger:      logger,
	}
}

// ctx returns a context carrying the client's trace ID when present
func (c *Client) ctx() context.Context {
	if c.traceID == "" {
		return context.Background()
	}
	return infrastructure.WithTraceID(context.Background(), c.traceID)
}

// ReadPump pumps messages from the websocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		c.logger.InfoContext(c.ctx(), "WebSocket client disconnected (readPump)",
			slog.Duration("connection_duration", time.Since(c.connectedAt)),
			slog.Int64("messages_received", c.messagesReceived),
			slog.Int64("bytes_received", c.bytesReceived))
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.ErrorContext(c.ctx(), "Unexpected WebSocket close error",
					slog.String("error", err.Error()))
			}
			break
		}
		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))

		c.messagesReceived++
		c.bytesReceived += int64(len(message))
		c.hub.mu.Lock()
		c.hub.messagesReceived++
		c.hub.mu.Unlock()

		GetMetrics().RecordMessage("received", int64(len(message)), true)
		if otelMetrics := GetOTelMetrics(); otelMetrics != nil {
			otelMetrics.RecordMessageReceived(c.ctx(), "client_message", c.id, int64(len(message)))
		}

		// Heartbeats from the dashboard just prove liveness, the pong
		// handler already refreshed the read deadline
		if string(message) == `{"type":"heartbeat"}` {
			c.logger.Debug("Heartbeat received")
			continue
		}

		// Other inbound messages are ignored for now
	}
}

// WritePump pumps messages from the hub to the websocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()

		c.logger.InfoContext(c.ctx(), "WebSocket write pump stopped",
			slog.Int64("messages_sent", c.messagesSent),
			slog.Int64("bytes_sent", c.bytesSent))
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.writeMessage(message); err != nil {
				return
			}

			// Drain any queued messages as separate frames
			n := len(c.send)
			for i := 0; i < n; i++ {
				select {
				case msg := <-c.send:
					c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.writeMessage(msg); err != nil {
						return
					}
				default:
					// Channel was empty
				}
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.DebugContext(c.ctx(), "Failed to send ping message",
					slog.String("error", err.Error()))
				return
			}
		}
	}
}

// writeMessage sends one text frame and records the send metrics
func (c *Client) writeMessage(message []byte) error {
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.ErrorContext(c.ctx(), "Error writing message to WebSocket",
			slog.String("error", err.Error()))
		GetMetrics().RecordMessage("sent", int64(len(message)), false)
		return err
	}

	c.messagesSent++
	c.bytesSent += int64(len(message))

	GetMetrics().RecordMessage("sent", int64(len(message)), true)
	if otelMetrics := GetOTelMetrics(); otelMetrics != nil {
		otelMetrics.RecordMessageSent(c.ctx(), "server_message", c.id, int64(len(message)))
	}
	return nil
}

// ServeWS handles websocket requests from the peer
func ServeWS(hub *Hub, conn *websocket.Conn) {
	client := NewClient(hub, conn, nil)
	client.hub.register <- client

	// All work happens in new goroutines so the HTTP handler can return
	go client.WritePump()
	go client.ReadPump()
}

// ServeWSWithTrace handles websocket requests carrying a trace ID
func ServeWSWithTrace(hub *Hub, conn *websocket.Conn, traceID string) {
	client := NewClientWithTrace(hub, conn, traceID, nil)
	client.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}
