package websocket

import (
	"errors"
	"sync"
	"time"
)

// MockConnection is an in-memory Connection used by tests. Reads are
// scripted with AddReadMessage; writes are captured for inspection.
type MockConnection struct {
	mu sync.Mutex

	// WriteMessage behavior
	WriteMessageFunc func(messageType int, data []byte) error
	WrittenMessages  []MockMessage

	// ReadMessage behavior
	ReadMessageFunc func() (messageType int, p []byte, err error)
	ReadMessages    []MockMessage
	ReadIndex       int

	// Close behavior
	CloseFunc func() error
	Closed    bool

	// Deadlines recorded by the pumps
	ReadDeadline  time.Time
	WriteDeadline time.Time

	// Handlers installed by the pumps
	PongHandler  func(string) error
	PingHandler  func(string) error
	CloseHandler func(code int, text string) error

	RemoteAddress string
	ReadLimit     int64
}

// MockMessage is a single scripted or captured frame.
type MockMessage struct {
	Type int
	Data []byte
	Err  error
}

// NewMockConnection creates a mock connection with an empty read script.
func NewMockConnection() *MockConnection {
	return &MockConnection{
		WrittenMessages: make([]MockMessage, 0),
		ReadMessages:    make([]MockMessage, 0),
		RemoteAddress:   "127.0.0.1:8080",
	}
}

func (m *MockConnection) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Closed {
		return errors.New("connection closed")
	}

	if m.WriteMessageFunc != nil {
		return m.WriteMessageFunc(messageType, data)
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	m.WrittenMessages = append(m.WrittenMessages, MockMessage{
		Type: messageType,
		Data: buf,
	})

	return nil
}

func (m *MockConnection) ReadMessage() (messageType int, p []byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Closed {
		return 0, nil, errors.New("connection closed")
	}

	if m.ReadMessageFunc != nil {
		return m.ReadMessageFunc()
	}

	if m.ReadIndex < len(m.ReadMessages) {
		msg := m.ReadMessages[m.ReadIndex]
		m.ReadIndex++
		return msg.Type, msg.Data, msg.Err
	}

	// Script exhausted; end the read loop.
	return 0, nil, errors.New("no more messages")
}

func (m *MockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CloseFunc != nil {
		return m.CloseFunc()
	}

	m.Closed = true
	return nil
}

func (m *MockConnection) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReadDeadline = t
	return nil
}

func (m *MockConnection) SetWriteDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WriteDeadline = t
	return nil
}

func (m *MockConnection) SetReadLimit(limit int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReadLimit = limit
}

func (m *MockConnection) SetPongHandler(h func(string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PongHandler = h
}

func (m *MockConnection) SetPingHandler(h func(string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PingHandler = h
}

func (m *MockConnection) SetCloseHandler(h func(code int, text string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CloseHandler = h
}

func (m *MockConnection) RemoteAddr() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.RemoteAddress
}

// AddReadMessage appends a frame to the read script.
func (m *MockConnection) AddReadMessage(messageType int, data []byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReadMessages = append(m.ReadMessages, MockMessage{
		Type: messageType,
		Data: data,
		Err:  err,
	})
}

// GetWrittenMessages returns a copy of every frame written so far.
func (m *MockConnection) GetWrittenMessages() []MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]MockMessage, len(m.WrittenMessages))
	copy(result, m.WrittenMessages)
	return result
}

// Reset clears scripted reads, captured writes and connection state.
func (m *MockConnection) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WrittenMessages = make([]MockMessage, 0)
	m.ReadMessages = make([]MockMessage, 0)
	m.ReadIndex = 0
	m.Closed = false
	m.ReadDeadline = time.Time{}
	m.WriteDeadline = time.Time{}
}
