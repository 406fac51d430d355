package reconcile

import (
	"time"

	"github.com/google/uuid"
)

// PendingStatus is the delivery state of an optimistic send.
type PendingStatus int

const (
	// PendingInFlight means the REST send has not resolved yet.
	PendingInFlight PendingStatus = iota
	// PendingFailed means the send was rejected; the user may retry.
	PendingFailed
)

func (s PendingStatus) String() string {
	switch s {
	case PendingInFlight:
		return "in_flight"
	case PendingFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PendingMessage is a locally composed message shown in the conversation
// before the backend assigns it an id. LocalID never leaves the process.
type PendingMessage struct {
	LocalID       string        `json:"local_id"`
	Content       string        `json:"content"`
	HasImage      bool          `json:"has_image"`
	ImageURL      *string       `json:"image_url,omitempty"`
	ApplicationID *int64        `json:"application_id,omitempty"`
	Status        PendingStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Outbox tracks optimistic sends for one conversation. Entries leave the
// outbox when the backend confirms the send (the confirmed record, with its
// real id, then enters the MessageSet) or when the conversation closes.
type Outbox struct {
	entries []PendingMessage
}

// NewOutbox creates an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{}
}

// Add registers a new in-flight send and returns its local handle.
func (o *Outbox) Add(content string, hasImage bool, imageURL *string, applicationID *int64) PendingMessage {
	entry := PendingMessage{
		LocalID:       uuid.NewString(),
		Content:       content,
		HasImage:      hasImage,
		ImageURL:      imageURL,
		ApplicationID: applicationID,
		Status:        PendingInFlight,
		CreatedAt:     time.Now(),
	}
	o.entries = append(o.entries, entry)
	return entry
}

// Confirm removes the entry once the backend accepted the send. Reports
// whether the local id was known.
func (o *Outbox) Confirm(localID string) bool {
	for i, entry := range o.entries {
		if entry.LocalID == localID {
			o.entries = append(o.entries[:i], o.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Fail marks the entry as rejected so the user can retry or discard it.
func (o *Outbox) Fail(localID string) bool {
	for i, entry := range o.entries {
		if entry.LocalID == localID {
			o.entries[i].Status = PendingFailed
			return true
		}
	}
	return false
}

// Retry flips a failed entry back to in-flight ahead of a resend.
func (o *Outbox) Retry(localID string) bool {
	for i, entry := range o.entries {
		if entry.LocalID == localID && entry.Status == PendingFailed {
			o.entries[i].Status = PendingInFlight
			return true
		}
	}
	return false
}

// Pending returns the entries in send order. The slice is a copy.
func (o *Outbox) Pending() []PendingMessage {
	out := make([]PendingMessage, len(o.entries))
	copy(out, o.entries)
	return out
}

// Len returns the number of unresolved sends.
func (o *Outbox) Len() int {
	return len(o.entries)
}

// Drain removes and returns every unresolved entry. Called when the
// conversation closes so unconfirmed sends can be reported rather than lost
// silently.
func (o *Outbox) Drain() []PendingMessage {
	out := o.entries
	o.entries = nil
	return out
}
