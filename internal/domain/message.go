package domain

// SenderInfo is the denormalized sender attached to a chat message.
type SenderInfo struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// Message is one chat message in a job conversation. The id is assigned once,
// by the backend, and is the sole dedup key: two messages with the same id
// are the same message no matter which delivery path carried them. Messages
// are immutable once created.
type Message struct {
	ID            int64       `json:"id"`
	JobID         int64       `json:"job_id"`
	ApplicationID *int64      `json:"application_id"`
	SenderID      int64       `json:"sender_id"`
	Content       string      `json:"content"`
	HasImage      bool        `json:"has_image"`
	ImageURL      *string     `json:"image_url"`
	Sender        *SenderInfo `json:"sender"`
	CreatedAt     Timestamp   `json:"created_at"`
}

// NotificationEvent is a coarse "something changed" signal from the dashboard
// channel. It only triggers a refetch; it carries no authoritative data and
// is never stored.
type NotificationEvent struct {
	Type  string
	JobID int64 // 0 when the payload carried no resolvable job id
	Data  map[string]any
}

// Dashboard notification types the router handles with a targeted refetch.
// Anything else falls back to a full list reload.
const (
	NotificationNewMessage     = "new_message"
	NotificationNewApplication = "new_application"
)
