// Package store holds the materialized local views the rest of the process
// reads from. Stores are the single write point for their data: every update
// path (socket-triggered refetch, poll sweep, transition response) lands here
// and subscribers are nudged after each change.
package store

import (
	"sync"

	"github.com/servifast/jobsync/internal/domain"
	"github.com/servifast/jobsync/internal/transport"
)

// JobWithApplications pairs a job with its application list, the unit the
// dashboard renders.
type JobWithApplications struct {
	Job          domain.Job              `json:"job"`
	Applications []domain.JobApplication `json:"applications"`
}

// DashboardStore is the job-list view. Order is whatever the backend returned
// on the last full reload; targeted updates replace an entry in place so the
// list does not jump around.
type DashboardStore struct {
	mu      sync.RWMutex
	jobs    []JobWithApplications
	updates *transport.Hub[struct{}]
}

// NewDashboardStore creates an empty store.
func NewDashboardStore() *DashboardStore {
	return &DashboardStore{updates: transport.NewHub[struct{}]()}
}

// Snapshot returns a copy of the current list.
func (s *DashboardStore) Snapshot() []JobWithApplications {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobWithApplications, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Job returns the entry for one job id.
func (s *DashboardStore) Job(jobID int64) (JobWithApplications, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, entry := range s.jobs {
		if entry.Job.ID == jobID {
			return entry, true
		}
	}
	return JobWithApplications{}, false
}

// ReplaceAll swaps in a freshly fetched list.
func (s *DashboardStore) ReplaceAll(entries []JobWithApplications) {
	s.mu.Lock()
	s.jobs = entries
	s.mu.Unlock()
	s.updates.Publish(struct{}{})
}

// Upsert replaces the entry for entry.Job.ID in place, or appends it when
// the job was not listed yet. Only that one entry changes; the rest of the
// list is untouched.
func (s *DashboardStore) Upsert(entry JobWithApplications) {
	s.mu.Lock()
	replaced := false
	for i := range s.jobs {
		if s.jobs[i].Job.ID == entry.Job.ID {
			s.jobs[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		s.jobs = append(s.jobs, entry)
	}
	s.mu.Unlock()
	s.updates.Publish(struct{}{})
}

// Remove drops the entry for jobID, if present.
func (s *DashboardStore) Remove(jobID int64) {
	s.mu.Lock()
	changed := false
	for i := range s.jobs {
		if s.jobs[i].Job.ID == jobID {
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			changed = true
			break
		}
	}
	s.mu.Unlock()
	if changed {
		s.updates.Publish(struct{}{})
	}
}

// Subscribe nudges the subscriber after every change. The signal carries no
// data; consumers call Snapshot.
func (s *DashboardStore) Subscribe(buffer int) (<-chan struct{}, func()) {
	return s.updates.Subscribe(buffer)
}

// Close releases all subscribers.
func (s *DashboardStore) Close() {
	s.updates.Close()
}
