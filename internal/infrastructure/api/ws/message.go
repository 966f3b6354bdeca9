package ws

import "time"

// Event types pushed from server to client, one per Observer callback.
const (
	EventStateEntered   = "state.entered"
	EventFrameApproved  = "frame.approved"
	EventFrameRejected  = "frame.rejected"
	EventAuditCompleted = "audit.completed"
	EventRetryDecided   = "retry.decided"
	EventRunFinished    = "run.finished"
)

// Command types sent from client to server.
const (
	CmdSubscribe   = "subscribe"
	CmdUnsubscribe = "unsubscribe"
)

// Event is one run-scoped notification pushed to subscribed clients.
type Event struct {
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	RunID      string    `json:"run_id"`
	FrameIndex int       `json:"frame_index,omitempty"`
	State      string    `json:"state,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Score      float64   `json:"score,omitempty"`
	RunStatus  string    `json:"run_status,omitempty"`
}

// NewEvent builds an Event stamped with the current time.
func NewEvent(eventType, runID string) *Event {
	return &Event{Type: eventType, Timestamp: time.Now(), RunID: runID}
}

// Command is a client -> server subscription request.
type Command struct {
	Action string `json:"action"`
	RunID  string `json:"run_id,omitempty"`
}

// Response acknowledges a Command.
type Response struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func successResponse(responseType, message string) *Response {
	return &Response{Type: responseType, Success: true, Message: message}
}

func errorResponse(responseType, errMsg string) *Response {
	return &Response{Type: responseType, Success: false, Error: errMsg}
}
