package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/starcmd/starcmd/internal/ipc"
	"github.com/starcmd/starcmd/internal/logging"
)

var storeLog = logging.ForComponent(logging.CompStore)

// Outcome describes what a mutation did to the store.
type Outcome string

const (
	OutcomeApplied                Outcome = "applied"
	OutcomeIgnoredUnknownSession  Outcome = "ignored_unknown_session"
	OutcomeIgnoredInvalidLocation Outcome = "ignored_invalid_location"
)

// Change is the result of one mutation.
type Change struct {
	Outcome   Outcome
	SessionID string
	PaneID    string

	// EvictedID is set when a register replaced another session in the pane.
	EvictedID string
	// FromPaneID is set when a register moved the session from another pane.
	FromPaneID string
}

// Applied reports whether the store changed.
func (c Change) Applied() bool { return c.Outcome == OutcomeApplied }

// Store is the authoritative set of live sessions, keyed by pane id.
// All methods are safe for concurrent use; mutations are applied one at a
// time and readers never see a half-applied change.
type Store struct {
	mu     sync.RWMutex
	byPane map[string]*Session // pane id -> session
	byID   map[string]string   // session id -> pane id
	format LocationFormat
	now    func() time.Time

	version uint64

	subMu       sync.Mutex
	subscribers map[chan struct{}]struct{}
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithLocationFormat selects how register locations are parsed.
func WithLocationFormat(f LocationFormat) StoreOption {
	return func(s *Store) { s.format = f }
}

// NewStore returns an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		byPane:      make(map[string]*Session),
		byID:        make(map[string]string),
		format:      FormatPane,
		now:         time.Now,
		subscribers: make(map[chan struct{}]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func epoch(ts int64, fallback time.Time) time.Time {
	if ts <= 0 {
		return fallback
	}
	return time.Unix(ts, 0)
}

// Register installs msg's session in its pane with status working. A session
// already in that pane under another id is evicted; the same id registered
// in another pane is moved. A location that does not parse is ignored: the
// hook is running outside tmux and there is no pane to address.
func (s *Store) Register(msg *ipc.RegisterMessage) Change {
	loc, err := ParseLocation(msg.Tmux, s.format)
	if err != nil {
		storeLog.Info("register_ignored",
			slog.String("session_id", msg.SessionID),
			slog.String("tmux", msg.Tmux),
			slog.String("reason", err.Error()))
		return Change{Outcome: OutcomeIgnoredInvalidLocation, SessionID: msg.SessionID}
	}
	pane := loc.Key()
	change := Change{Outcome: OutcomeApplied, SessionID: msg.SessionID, PaneID: pane}

	s.mu.Lock()
	now := s.now()
	registeredAt := epoch(msg.Timestamp, now)

	if existing, ok := s.byPane[pane]; ok && existing.ID != msg.SessionID {
		delete(s.byID, existing.ID)
		change.EvictedID = existing.ID
	}
	if oldPane, ok := s.byID[msg.SessionID]; ok {
		if prev, ok := s.byPane[oldPane]; ok {
			registeredAt = prev.RegisteredAt
		}
		if oldPane != pane {
			delete(s.byPane, oldPane)
			change.FromPaneID = oldPane
		}
	}

	s.byPane[pane] = &Session{
		ID:               msg.SessionID,
		Location:         loc,
		WorkingDirectory: msg.Cwd,
		Source:           msg.Source,
		Status:           StatusWorking,
		RegisteredAt:     registeredAt,
		LastActivityAt:   now,
	}
	s.byID[msg.SessionID] = pane
	s.version++
	s.mu.Unlock()

	attrs := []any{
		slog.String("session_id", msg.SessionID),
		slog.String("pane", pane),
		slog.String("location", loc.Display()),
		slog.String("source", msg.Source),
	}
	if change.EvictedID != "" {
		attrs = append(attrs, slog.String("evicted", change.EvictedID))
	}
	if change.FromPaneID != "" {
		attrs = append(attrs, slog.String("moved_from", change.FromPaneID))
	}
	storeLog.Info("session_registered", attrs...)

	s.notifyChanged()
	return change
}

// Notify records a notification and moves the session to the status its kind implies.
func (s *Store) Notify(msg *ipc.NotificationMessage) Change {
	kind, known := ParseNotificationKind(msg.NotificationType)
	status := kind.ResultingStatus()

	s.mu.Lock()
	sess, pane, ok := s.lookupLocked(msg.SessionID)
	if !ok {
		s.mu.Unlock()
		storeLog.Info("notification_ignored", slog.String("session_id", msg.SessionID), slog.String("reason", "unknown session"))
		return Change{Outcome: OutcomeIgnoredUnknownSession, SessionID: msg.SessionID}
	}
	now := s.now()
	var last *string
	if msg.LastMessage != nil {
		m := *msg.LastMessage
		last = &m
	}
	sess.Status = status
	sess.LastNotification = &Notification{
		Message:              msg.Message,
		Kind:                 kind,
		LastAssistantMessage: last,
		Timestamp:            epoch(msg.Timestamp, now),
	}
	sess.LastActivityAt = now
	s.version++
	s.mu.Unlock()

	attrs := []any{
		slog.String("session_id", msg.SessionID),
		slog.String("pane", pane),
		slog.String("status", string(status)),
		slog.String("kind", msg.NotificationType),
	}
	if !known {
		attrs = append(attrs, slog.Bool("unknown_kind", true))
	}
	storeLog.Info("session_notified", attrs...)

	s.notifyChanged()
	return Change{Outcome: OutcomeApplied, SessionID: msg.SessionID, PaneID: pane}
}

// Clear returns the session to working and drops its notification.
func (s *Store) Clear(msg *ipc.ClearMessage) Change {
	s.mu.Lock()
	sess, pane, ok := s.lookupLocked(msg.SessionID)
	if !ok {
		s.mu.Unlock()
		storeLog.Info("clear_ignored", slog.String("session_id", msg.SessionID), slog.String("reason", "unknown session"))
		return Change{Outcome: OutcomeIgnoredUnknownSession, SessionID: msg.SessionID}
	}
	sess.Status = StatusWorking
	sess.LastNotification = nil
	sess.LastActivityAt = s.now()
	s.version++
	s.mu.Unlock()

	storeLog.Info("session_cleared", slog.String("session_id", msg.SessionID), slog.String("pane", pane))
	s.notifyChanged()
	return Change{Outcome: OutcomeApplied, SessionID: msg.SessionID, PaneID: pane}
}

// Deregister removes the session entirely.
func (s *Store) Deregister(msg *ipc.DeregisterMessage) Change {
	s.mu.Lock()
	pane, ok := s.byID[msg.SessionID]
	if !ok {
		s.mu.Unlock()
		storeLog.Info("deregister_ignored", slog.String("session_id", msg.SessionID), slog.String("reason", "unknown session"))
		return Change{Outcome: OutcomeIgnoredUnknownSession, SessionID: msg.SessionID}
	}
	delete(s.byPane, pane)
	delete(s.byID, msg.SessionID)
	s.version++
	s.mu.Unlock()

	storeLog.Info("session_deregistered",
		slog.String("session_id", msg.SessionID),
		slog.String("pane", pane),
		slog.String("reason", msg.Reason))
	s.notifyChanged()
	return Change{Outcome: OutcomeApplied, SessionID: msg.SessionID, PaneID: pane}
}

// Prune removes sessions with no activity for longer than maxIdle and
// returns their ids. It covers hooks whose session-end event never arrived.
func (s *Store) Prune(maxIdle time.Duration) []string {
	if maxIdle <= 0 {
		return nil
	}

	s.mu.Lock()
	cutoff := s.now().Add(-maxIdle)
	var removed []string
	for pane, sess := range s.byPane {
		if sess.LastActivityAt.Before(cutoff) {
			delete(s.byPane, pane)
			delete(s.byID, sess.ID)
			removed = append(removed, sess.ID)
		}
	}
	if len(removed) > 0 {
		s.version++
	}
	s.mu.Unlock()

	if len(removed) == 0 {
		return nil
	}
	sort.Strings(removed)
	storeLog.Info("sessions_pruned", slog.Int("count", len(removed)), slog.Duration("max_idle", maxIdle))
	s.notifyChanged()
	return removed
}

func (s *Store) lookupLocked(sessionID string) (*Session, string, bool) {
	pane, ok := s.byID[sessionID]
	if !ok {
		return nil, "", false
	}
	sess, ok := s.byPane[pane]
	if !ok {
		return nil, "", false
	}
	return sess, pane, true
}

// AggregateStatus is the most urgent status across all sessions: blocked
// if any is blocked, else idle if any is idle, else working. An empty
// store is working.
func (s *Store) AggregateStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg := StatusWorking
	for _, sess := range s.byPane {
		switch sess.Status {
		case StatusBlocked:
			return StatusBlocked
		case StatusIdle:
			agg = StatusIdle
		}
	}
	return agg
}

// SortedSessions returns copies of all sessions, most recently active first.
// Ties are ordered by pane id.
func (s *Store) SortedSessions() []Session {
	s.mu.RLock()
	out := make([]Session, 0, len(s.byPane))
	for _, sess := range s.byPane {
		out = append(out, sess.clone())
	}
	s.mu.RUnlock()

	sortSessions(out)
	return out
}

func sortSessions(sessions []Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if !a.LastActivityAt.Equal(b.LastActivityAt) {
			return a.LastActivityAt.After(b.LastActivityAt)
		}
		return a.Location.PaneID < b.Location.PaneID
	})
}

// Get returns a copy of the session with the given id.
func (s *Store) Get(sessionID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, _, ok := s.lookupLocked(sessionID)
	if !ok {
		return Session{}, false
	}
	return sess.clone(), true
}

// GetByPane returns a copy of the session occupying paneID.
func (s *Store) GetByPane(paneID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.byPane[paneID]
	if !ok {
		return Session{}, false
	}
	return sess.clone(), true
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byPane)
}

// Version increases on every applied mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Subscribe returns a channel that receives a signal after mutations, and a
// cancel func. Signals coalesce: a slow reader sees one pending signal, not
// one per change, and should re-read the store when woken.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, ch)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) notifyChanged() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// HandleMessage applies a decoded wire message. It implements ipc.Handler:
// list requests are answered with the snapshot, mutations with no body.
func (s *Store) HandleMessage(_ context.Context, msg ipc.Message) ([]byte, error) {
	switch m := msg.(type) {
	case *ipc.RegisterMessage:
		s.Register(m)
	case *ipc.NotificationMessage:
		s.Notify(m)
	case *ipc.ClearMessage:
		s.Clear(m)
	case *ipc.DeregisterMessage:
		s.Deregister(m)
	case *ipc.ListMessage:
		return s.SnapshotJSON()
	default:
		return nil, fmt.Errorf("unsupported message type %T", msg)
	}
	return nil, nil
}
