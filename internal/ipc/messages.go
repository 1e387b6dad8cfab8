// Package ipc implements the hook-to-daemon wire protocol: one JSON object per
// Unix socket connection, optionally answered with one JSON payload.
package ipc

import "encoding/json"

// MessageType is the discriminant carried in the "type" field.
type MessageType string

const (
	TypeRegister     MessageType = "register"
	TypeNotification MessageType = "notification"
	TypeClear        MessageType = "clear"
	TypeDeregister   MessageType = "deregister"
	TypeList         MessageType = "list"
)

// Message is one decoded request.
type Message interface {
	Type() MessageType
}

// RegisterMessage announces a session running in a tmux pane.
type RegisterMessage struct {
	SessionID string `json:"session_id"`
	Tmux      string `json:"tmux"`
	Cwd       string `json:"cwd"`
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp"`
}

// NotificationMessage reports that the assistant is waiting on the user.
type NotificationMessage struct {
	SessionID        string  `json:"session_id"`
	Tmux             string  `json:"tmux"`
	Message          string  `json:"message"`
	NotificationType string  `json:"notification_type"`
	LastMessage      *string `json:"last_message"`
	Timestamp        int64   `json:"timestamp"`
}

// ClearMessage reports that the user answered and work resumed.
type ClearMessage struct {
	SessionID string `json:"session_id"`
	Timestamp int64  `json:"timestamp"`
}

// DeregisterMessage reports that a session ended.
type DeregisterMessage struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}

// ListMessage asks for a snapshot of all sessions.
type ListMessage struct{}

func (*RegisterMessage) Type() MessageType     { return TypeRegister }
func (*NotificationMessage) Type() MessageType { return TypeNotification }
func (*ClearMessage) Type() MessageType        { return TypeClear }
func (*DeregisterMessage) Type() MessageType   { return TypeDeregister }
func (*ListMessage) Type() MessageType         { return TypeList }

// SessionIDOf returns the session id a message refers to, or "" for list.
func SessionIDOf(m Message) string {
	switch msg := m.(type) {
	case *RegisterMessage:
		return msg.SessionID
	case *NotificationMessage:
		return msg.SessionID
	case *ClearMessage:
		return msg.SessionID
	case *DeregisterMessage:
		return msg.SessionID
	default:
		return ""
	}
}

// Encode renders m as a single-line wire object including its "type".
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage, 1)
	}
	tag, _ := json.Marshal(m.Type())
	fields["type"] = tag
	return json.Marshal(fields)
}
