// Package reconcile merges job and chat data arriving over multiple delivery
// paths (socket push, poll sweeps, optimistic sends) into one consistent
// view. The structures here are plain value containers; callers serialize
// access.
package reconcile

import (
	"sort"

	"github.com/servifast/jobsync/internal/domain"
)

// MessageSet holds a job conversation deduplicated by message id. The same
// message routinely arrives more than once (socket push plus the next poll
// sweep, or a REST send response plus its socket echo); only the first copy
// is kept. Order is by creation time, ties broken by id ascending, so every
// replica converges on the same sequence no matter the arrival order.
type MessageSet struct {
	byID    map[int64]struct{}
	ordered []domain.Message
}

// NewMessageSet creates an empty set.
func NewMessageSet() *MessageSet {
	return &MessageSet{byID: make(map[int64]struct{})}
}

// Add inserts msg unless a message with the same id is already present.
// Existing entries are never overwritten; messages are immutable once
// created. Reports whether the set changed.
func (s *MessageSet) Add(msg domain.Message) bool {
	if _, ok := s.byID[msg.ID]; ok {
		return false
	}
	s.byID[msg.ID] = struct{}{}
	s.ordered = append(s.ordered, msg)
	sort.SliceStable(s.ordered, func(i, j int) bool {
		a, b := s.ordered[i], s.ordered[j]
		if !a.CreatedAt.Equal(b.CreatedAt.Time) {
			return a.CreatedAt.Before(b.CreatedAt.Time)
		}
		return a.ID < b.ID
	})
	return true
}

// AddAll inserts a batch and reports how many messages were new.
func (s *MessageSet) AddAll(msgs []domain.Message) int {
	added := 0
	for _, msg := range msgs {
		if s.Add(msg) {
			added++
		}
	}
	return added
}

// Has reports whether a message with the given id is present.
func (s *MessageSet) Has(id int64) bool {
	_, ok := s.byID[id]
	return ok
}

// Len returns the number of distinct messages.
func (s *MessageSet) Len() int {
	return len(s.ordered)
}

// Messages returns the conversation in display order. The slice is a copy.
func (s *MessageSet) Messages() []domain.Message {
	out := make([]domain.Message, len(s.ordered))
	copy(out, s.ordered)
	return out
}
