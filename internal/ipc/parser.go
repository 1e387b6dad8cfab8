package ipc

import (
	"bytes"
	"encoding/json"
)

// requiredFields lists the keys each message type must carry with a non-null value.
var requiredFields = map[MessageType][]string{
	TypeRegister:     {"session_id", "tmux", "cwd", "source", "timestamp"},
	TypeNotification: {"session_id", "tmux", "message", "notification_type", "timestamp"},
	TypeClear:        {"session_id", "timestamp"},
	TypeDeregister:   {"session_id", "reason", "timestamp"},
	TypeList:         nil,
}

// Parse decodes one wire payload. The "type" field is decoded first and
// selects the schema for the second pass. Parse either returns a complete
// message or an error wrapping ErrMalformed / ErrUnknownMessageType.
func Parse(data []byte) (Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, malformed("empty payload")
	}

	var envelope struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, malformed("decode envelope: %v", err)
	}
	if envelope.Type == nil {
		return nil, malformed("missing type")
	}

	var msg Message
	switch t := MessageType(*envelope.Type); t {
	case TypeRegister:
		msg = &RegisterMessage{}
	case TypeNotification:
		msg = &NotificationMessage{}
	case TypeClear:
		msg = &ClearMessage{}
	case TypeDeregister:
		msg = &DeregisterMessage{}
	case TypeList:
		return &ListMessage{}, nil
	default:
		return nil, &UnknownTypeError{Type: *envelope.Type}
	}

	if err := checkRequired(data, requiredFields[msg.Type()]); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, malformed("decode %s: %v", msg.Type(), err)
	}
	return msg, nil
}

func checkRequired(data []byte, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return malformed("decode fields: %v", err)
	}
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return malformed("missing required field %q", k)
		}
	}
	return nil
}
