// Package events defines the WebSocket protocol between the CallPulse
// server and dashboard clients. Every frame the server pushes is an
// Envelope; Type selects which payload Data carries.
package events

import "time"

// MessageType identifies the payload carried in an Envelope.
type MessageType string

const (
	// MessageTypeConnection greets a client right after the upgrade.
	// Data is a ConnectionInfo.
	MessageTypeConnection MessageType = "connection"

	// MessageTypeRunSnapshot carries the complete state of one analysis
	// run. Each snapshot supersedes the previous one for the same run,
	// so clients replace rather than merge.
	MessageTypeRunSnapshot MessageType = "run:snapshot"

	// MessageTypeRunError reports a run-scoped failure.
	MessageTypeRunError MessageType = "run:error"

	// MessageTypeRunUpdate signals a change to the run list, such as a
	// newly queued or cancelled run. Clients refetch the list on receipt.
	MessageTypeRunUpdate MessageType = "run_update"

	// MessageTypeStatus carries a server status transition. Data is a
	// StatusInfo.
	MessageTypeStatus MessageType = "status"

	// MessageTypeError carries a structured error. Data is an ErrorInfo.
	MessageTypeError MessageType = "error"
)

// Envelope is the frame for every server push. Timestamp is RFC 3339.
// RunID and Action are set on run-scoped events except snapshots, which
// identify themselves in the payload.
type Envelope struct {
	Type      MessageType `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
	RunID     string      `json:"run_id,omitempty"`
	Action    string      `json:"action,omitempty"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// RunSnapshot is the complete state of a run at a point in time.
type RunSnapshot struct {
	RunID       string         `json:"run_id"`
	Status      string         `json:"status"`
	Progress    int            `json:"progress"`
	CurrentStep string         `json:"current_step,omitempty"`
	Steps       []StepSnapshot `json:"steps"`
	StartedAt   time.Time      `json:"started_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Message     string         `json:"message,omitempty"`
}

// StepSnapshot is the state of a single step within a run snapshot.
// Progress runs 0 to 100.
type StepSnapshot struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ConnectionInfo is the payload of a connection greeting.
type ConnectionInfo struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	ClientID string `json:"client_id"`
}

// StatusInfo is the payload of a server status message.
type StatusInfo struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrorInfo is the payload of an error message. Hint tells the user
// what to do about the failure.
type ErrorInfo struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Details     string `json:"details"`
	Step        string `json:"step"`
	Recoverable bool   `json:"recoverable"`
	Hint        string `json:"hint"`
}
