package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Timestamp wraps time.Time with JSON decoding tolerant of the backend's
// habit of emitting naive datetimes (no zone suffix) alongside RFC3339.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a JSON string: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return json.Marshal("")
	}
	return json.Marshal(t.Format(time.RFC3339))
}

// Job is the authoritative job record as returned by the backend. The client
// never mutates it locally; every change arrives as a full replacement from a
// transition response or a poll.
//
// Invariant: WorkerID is non-nil for every status except pending.
type Job struct {
	ID            int64            `json:"id"`
	ClientID      int64            `json:"client_id"`
	WorkerID      *int64           `json:"worker_id"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	ServiceType   string           `json:"service_type"`
	Status        Status           `json:"status"`
	PaymentMethod string           `json:"payment_method"`
	BaseFee       decimal.Decimal  `json:"base_fee"`
	Extras        decimal.Decimal  `json:"extras"`
	TotalAmount   decimal.Decimal  `json:"total_amount"`
	Address       string           `json:"address"`
	Latitude      *decimal.Decimal `json:"latitude"`
	Longitude     *decimal.Decimal `json:"longitude"`
	ScheduledAt   *Timestamp       `json:"scheduled_at"`
	StartedAt     *Timestamp       `json:"started_at"`
	CompletedAt   *Timestamp       `json:"completed_at"`
	CreatedAt     Timestamp        `json:"created_at"`
	UpdatedAt     Timestamp        `json:"updated_at"`
}

// UnmarshalJSON normalizes the status string through ParseStatus so that the
// rest of the client only ever sees closed enum values.
func (j *Job) UnmarshalJSON(data []byte) error {
	type alias Job
	aux := struct {
		*alias
		Status string `json:"status"`
	}{alias: (*alias)(j)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	j.Status = ParseStatus(aux.Status)
	return nil
}

// Stage returns the UI stage for the job's current status.
func (j *Job) Stage() Stage {
	return MapStatusToStage(string(j.Status))
}

// JobApplication is a worker's application to a pending job. At most one
// application per job may carry IsAccepted; the backend enforces this and
// rejects further acceptances with ApplicationConflictError.
type JobApplication struct {
	ID         int64     `json:"id"`
	JobID      int64     `json:"job_id"`
	WorkerID   int64     `json:"worker_id"`
	IsAccepted bool      `json:"is_accepted"`
	CreatedAt  Timestamp `json:"created_at"`
	UpdatedAt  Timestamp `json:"updated_at"`
}

// Rating is the review record created by the rate transition.
type Rating struct {
	ID        int64     `json:"id"`
	JobID     int64     `json:"job_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt Timestamp `json:"created_at"`
}
