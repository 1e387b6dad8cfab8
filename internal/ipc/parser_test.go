package ipc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegister(t *testing.T) {
	msg, err := Parse([]byte(`{"type":"register","session_id":"abc123","tmux":"dev:editor:%5","cwd":"/Users/test/project","source":"startup","timestamp":1234567890}`))
	require.NoError(t, err)

	reg, ok := msg.(*RegisterMessage)
	require.True(t, ok, "expected *RegisterMessage, got %T", msg)
	assert.Equal(t, "abc123", reg.SessionID)
	assert.Equal(t, "dev:editor:%5", reg.Tmux)
	assert.Equal(t, "/Users/test/project", reg.Cwd)
	assert.Equal(t, "startup", reg.Source)
	assert.Equal(t, int64(1234567890), reg.Timestamp)
	assert.Equal(t, TypeRegister, msg.Type())
}

func TestParseNotification(t *testing.T) {
	msg, err := Parse([]byte(`{"type":"notification","session_id":"abc123","tmux":"dev:editor:%5","message":"Claude needs permission","notification_type":"permission_prompt","last_message":null,"timestamp":1234567890}`))
	require.NoError(t, err)

	n, ok := msg.(*NotificationMessage)
	require.True(t, ok)
	assert.Equal(t, "Claude needs permission", n.Message)
	assert.Equal(t, "permission_prompt", n.NotificationType)
	assert.Nil(t, n.LastMessage)
}

func TestParseNotificationWithLastMessage(t *testing.T) {
	msg, err := Parse([]byte(`{"type":"notification","session_id":"abc","tmux":"a:b:%1","message":"Waiting","notification_type":"idle_prompt","last_message":"What next?","timestamp":1}`))
	require.NoError(t, err)

	n := msg.(*NotificationMessage)
	require.NotNil(t, n.LastMessage)
	assert.Equal(t, "What next?", *n.LastMessage)
}

func TestParseNotificationLastMessageOptional(t *testing.T) {
	msg, err := Parse([]byte(`{"type":"notification","session_id":"abc","tmux":"a:b:%1","message":"m","notification_type":"idle_prompt","timestamp":1}`))
	require.NoError(t, err)
	assert.Nil(t, msg.(*NotificationMessage).LastMessage)
}

func TestParseClearAndDeregister(t *testing.T) {
	msg, err := Parse([]byte(`{"type":"clear","session_id":"abc123","timestamp":1234567890}`))
	require.NoError(t, err)
	assert.Equal(t, &ClearMessage{SessionID: "abc123", Timestamp: 1234567890}, msg)

	msg, err = Parse([]byte(`{"type":"deregister","session_id":"abc123","reason":"logout","timestamp":1234567890}`))
	require.NoError(t, err)
	assert.Equal(t, &DeregisterMessage{SessionID: "abc123", Reason: "logout", Timestamp: 1234567890}, msg)
}

func TestParseList(t *testing.T) {
	msg, err := Parse([]byte(`{"type":"list"}`))
	require.NoError(t, err)
	assert.IsType(t, &ListMessage{}, msg)
}

func TestParseToleratesTrailingNewline(t *testing.T) {
	_, err := Parse([]byte("{\"type\":\"clear\",\"session_id\":\"a\",\"timestamp\":1}\n"))
	require.NoError(t, err)
}

func TestParseUnknownType(t *testing.T) {
	_, err := Parse([]byte(`{"type":"bogus"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownMessageType))
	assert.False(t, errors.Is(err, ErrMalformed))

	var ute *UnknownTypeError
	require.True(t, errors.As(err, &ute))
	assert.Equal(t, "bogus", ute.Type)
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `not valid json`},
		{"empty", ``},
		{"whitespace", "  \n"},
		{"array", `[1,2,3]`},
		{"null", `null`},
		{"missing type", `{"session_id":"a"}`},
		{"type not string", `{"type":5}`},
		{"register missing cwd", `{"type":"register","session_id":"a","tmux":"s:w:%1","source":"startup","timestamp":1}`},
		{"register null session", `{"type":"register","session_id":null,"tmux":"s:w:%1","cwd":"/","source":"startup","timestamp":1}`},
		{"notification missing type field", `{"type":"notification","session_id":"a","tmux":"s:w:%1","message":"m","timestamp":1}`},
		{"clear missing timestamp", `{"type":"clear","session_id":"a"}`},
		{"deregister missing reason", `{"type":"deregister","session_id":"a","timestamp":1}`},
		{"timestamp not integer", `{"type":"clear","session_id":"a","timestamp":1.5}`},
		{"timestamp string", `{"type":"clear","session_id":"a","timestamp":"now"}`},
		{"session id number", `{"type":"clear","session_id":7,"timestamp":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Parse([]byte(tt.payload))
			require.Error(t, err)
			assert.Nil(t, msg)
			assert.True(t, errors.Is(err, ErrMalformed), "expected ErrMalformed, got %v", err)
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	last := "done?"
	in := &NotificationMessage{
		SessionID:        "s1",
		Tmux:             "main:0:%3",
		Message:          "waiting",
		NotificationType: "idle_prompt",
		LastMessage:      &last,
		Timestamp:        42,
	}

	data, err := Encode(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"notification"`)

	out, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	data, err = Encode(&ListMessage{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"list"}`, string(data))
}

func TestSessionIDOf(t *testing.T) {
	assert.Equal(t, "a", SessionIDOf(&RegisterMessage{SessionID: "a"}))
	assert.Equal(t, "b", SessionIDOf(&DeregisterMessage{SessionID: "b"}))
	assert.Equal(t, "", SessionIDOf(&ListMessage{}))
}
