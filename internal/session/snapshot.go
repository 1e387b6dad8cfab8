package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// SessionInfo is the flat record returned for a list request.
type SessionInfo struct {
	SessionID        string            `json:"sessionId"`
	PaneID           string            `json:"paneId"`
	Status           Status            `json:"status"`
	Cwd              string            `json:"cwd"`
	Tmux             string            `json:"tmux"`
	RegisteredAt     int64             `json:"registeredAt"`
	LastActivityAt   int64             `json:"lastActivityAt"`
	LastNotification *NotificationInfo `json:"lastNotification,omitempty"`
	Source           string            `json:"source,omitempty"`
	Location         *Location         `json:"location,omitempty"`
}

// NotificationInfo is the notification part of a SessionInfo.
type NotificationInfo struct {
	Message     string           `json:"message"`
	Type        NotificationKind `json:"type"`
	LastMessage *string          `json:"lastMessage"`
}

// Info flattens a session for the wire.
func (s Session) Info() SessionInfo {
	loc := s.Location
	info := SessionInfo{
		SessionID:      s.ID,
		PaneID:         loc.PaneID,
		Status:         s.Status,
		Cwd:            s.WorkingDirectory,
		Tmux:           loc.Display(),
		RegisteredAt:   s.RegisteredAt.Unix(),
		LastActivityAt: s.LastActivityAt.Unix(),
		Source:         s.Source,
		Location:       &loc,
	}
	if n := s.LastNotification; n != nil {
		info.LastNotification = &NotificationInfo{
			Message:     n.Message,
			Type:        n.Kind,
			LastMessage: n.LastAssistantMessage,
		}
	}
	return info
}

// LastActivity returns LastActivityAt as a time.
func (i SessionInfo) LastActivity() time.Time { return time.Unix(i.LastActivityAt, 0) }

// Snapshot returns every session as a flat record, most recently active first.
func (s *Store) Snapshot() []SessionInfo {
	sessions := s.SortedSessions()
	out := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Info())
	}
	return out
}

// SnapshotJSON encodes Snapshot as a JSON array. An empty store encodes as [].
func (s *Store) SnapshotJSON() ([]byte, error) {
	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses the response of a list request.
func DecodeSnapshot(data []byte) ([]SessionInfo, error) {
	var infos []SessionInfo
	if err := json.Unmarshal(data, &infos); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	for i := range infos {
		if _, err := ParseStatus(string(infos[i].Status)); err != nil {
			return nil, fmt.Errorf("decode snapshot: session %s: %w", infos[i].SessionID, err)
		}
	}
	return infos, nil
}

// Aggregate computes the aggregate status of a decoded snapshot, with the
// same rules as Store.AggregateStatus.
func Aggregate(infos []SessionInfo) Status {
	agg := StatusWorking
	for _, info := range infos {
		if info.Status.Severity() > agg.Severity() {
			agg = info.Status
		}
	}
	return agg
}
