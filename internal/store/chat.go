package store

import (
	"sync"

	"github.com/servifast/jobsync/internal/domain"
	"github.com/servifast/jobsync/internal/reconcile"
	"github.com/servifast/jobsync/internal/transport"
)

// ChatSnapshot is a point-in-time view of one conversation.
type ChatSnapshot struct {
	JobID         int64                      `json:"job_id"`
	ApplicationID *int64                     `json:"application_id,omitempty"`
	Messages      []domain.Message           `json:"messages"`
	Pending       []reconcile.PendingMessage `json:"pending"`
	Connected     bool                       `json:"connected"`
}

// ChatStore is the materialized view of one job conversation: the confirmed
// transcript, the optimistic outbox, and the liveness flag the UI shows.
type ChatStore struct {
	mu            sync.Mutex
	jobID         int64
	applicationID *int64
	messages      *reconcile.MessageSet
	outbox        *reconcile.Outbox
	connected     bool
	updates       *transport.Hub[struct{}]
}

// NewChatStore creates an empty conversation view.
func NewChatStore(jobID int64, applicationID *int64) *ChatStore {
	return &ChatStore{
		jobID:         jobID,
		applicationID: applicationID,
		messages:      reconcile.NewMessageSet(),
		outbox:        reconcile.NewOutbox(),
		updates:       transport.NewHub[struct{}](),
	}
}

// JobID returns the conversation's job id.
func (s *ChatStore) JobID() int64 {
	return s.jobID
}

// ApplicationID returns the application scope, if any.
func (s *ChatStore) ApplicationID() *int64 {
	return s.applicationID
}

// Snapshot returns the current conversation state.
func (s *ChatStore) Snapshot() ChatSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return ChatSnapshot{
		JobID:         s.jobID,
		ApplicationID: s.applicationID,
		Messages:      s.messages.Messages(),
		Pending:       s.outbox.Pending(),
		Connected:     s.connected,
	}
}

// AddMessage merges one confirmed message, deduplicating by id. Reports
// whether the transcript changed.
func (s *ChatStore) AddMessage(msg domain.Message) bool {
	s.mu.Lock()
	added := s.messages.Add(msg)
	s.mu.Unlock()
	if added {
		s.updates.Publish(struct{}{})
	}
	return added
}

// AddMessages merges a batch and reports how many were new.
func (s *ChatStore) AddMessages(msgs []domain.Message) int {
	s.mu.Lock()
	added := s.messages.AddAll(msgs)
	s.mu.Unlock()
	if added > 0 {
		s.updates.Publish(struct{}{})
	}
	return added
}

// AddPending registers an optimistic send and returns its local handle.
func (s *ChatStore) AddPending(content string, hasImage bool, imageURL *string) reconcile.PendingMessage {
	s.mu.Lock()
	entry := s.outbox.Add(content, hasImage, imageURL, s.applicationID)
	s.mu.Unlock()
	s.updates.Publish(struct{}{})
	return entry
}

// ConfirmPending resolves an optimistic send with the backend-assigned
// record. The confirmed message enters the transcript; a later socket echo of
// the same id is a no-op.
func (s *ChatStore) ConfirmPending(localID string, confirmed domain.Message) {
	s.mu.Lock()
	s.outbox.Confirm(localID)
	s.messages.Add(confirmed)
	s.mu.Unlock()
	s.updates.Publish(struct{}{})
}

// FailPending marks an optimistic send as rejected.
func (s *ChatStore) FailPending(localID string) {
	s.mu.Lock()
	changed := s.outbox.Fail(localID)
	s.mu.Unlock()
	if changed {
		s.updates.Publish(struct{}{})
	}
}

// RetryPending flips a failed send back to in-flight.
func (s *ChatStore) RetryPending(localID string) bool {
	s.mu.Lock()
	changed := s.outbox.Retry(localID)
	s.mu.Unlock()
	if changed {
		s.updates.Publish(struct{}{})
	}
	return changed
}

// SetConnected records socket liveness for the UI indicator.
func (s *ChatStore) SetConnected(connected bool) {
	s.mu.Lock()
	changed := s.connected != connected
	s.connected = connected
	s.mu.Unlock()
	if changed {
		s.updates.Publish(struct{}{})
	}
}

// Connected reports socket liveness.
func (s *ChatStore) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Subscribe nudges the subscriber after every change.
func (s *ChatStore) Subscribe(buffer int) (<-chan struct{}, func()) {
	return s.updates.Subscribe(buffer)
}

// Drain removes and returns unresolved sends; called when the conversation
// closes.
func (s *ChatStore) Drain() []reconcile.PendingMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outbox.Drain()
}

// Close releases all subscribers.
func (s *ChatStore) Close() {
	s.updates.Close()
}
