package session

import (
	"fmt"
	"time"
)

// Status is the state of one session as shown to the user.
type Status string

const (
	StatusWorking Status = "working" // assistant is running
	StatusIdle    Status = "idle"    // waiting at the prompt
	StatusBlocked Status = "blocked" // needs permission or an answer
)

// Severity orders statuses from least to most urgent.
func (s Status) Severity() int {
	switch s {
	case StatusBlocked:
		return 2
	case StatusIdle:
		return 1
	default:
		return 0
	}
}

// ParseStatus validates a wire status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusWorking, StatusIdle, StatusBlocked:
		return st, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// NotificationKind is the reason the assistant stopped to notify.
type NotificationKind string

const (
	KindPermissionPrompt  NotificationKind = "permission_prompt"
	KindIdlePrompt        NotificationKind = "idle_prompt"
	KindElicitationDialog NotificationKind = "elicitation_dialog"
)

// kindStatus is the full mapping from notification kind to resulting status.
var kindStatus = map[NotificationKind]Status{
	KindPermissionPrompt:  StatusBlocked,
	KindElicitationDialog: StatusBlocked,
	KindIdlePrompt:        StatusIdle,
}

// ParseNotificationKind maps a wire value to a kind. Unrecognized values
// fall back to KindIdlePrompt; ok reports whether the value was known.
func ParseNotificationKind(s string) (kind NotificationKind, ok bool) {
	k := NotificationKind(s)
	if _, known := kindStatus[k]; known {
		return k, true
	}
	return KindIdlePrompt, false
}

// ResultingStatus is the session status a notification of this kind implies.
func (k NotificationKind) ResultingStatus() Status {
	if st, ok := kindStatus[k]; ok {
		return st
	}
	return StatusIdle
}

// Notification is the last prompt the assistant raised for a session.
type Notification struct {
	Message              string
	Kind                 NotificationKind
	LastAssistantMessage *string
	Timestamp            time.Time
}

// Session is one assistant process living in one tmux pane.
type Session struct {
	ID               string
	Location         Location
	WorkingDirectory string
	Source           string
	Status           Status
	LastNotification *Notification
	RegisteredAt     time.Time
	LastActivityAt   time.Time
}

// clone returns a deep copy safe to hand out of the store.
func (s *Session) clone() Session {
	c := *s
	if s.LastNotification != nil {
		n := *s.LastNotification
		if n.LastAssistantMessage != nil {
			m := *n.LastAssistantMessage
			n.LastAssistantMessage = &m
		}
		c.LastNotification = &n
	}
	return c
}
