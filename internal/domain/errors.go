package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job id cannot be resolved.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidAmount is returned by add-extra validation when the amount
	// is not strictly positive. This is rejected locally, without a network
	// round trip.
	ErrInvalidAmount = errors.New("extra amount must be greater than zero")
)

// TransitionErrorKind distinguishes the two ways a lifecycle edge can be
// rejected.
type TransitionErrorKind int

const (
	// TransitionInvalidState means the job is not in a valid predecessor
	// status for the attempted action.
	TransitionInvalidState TransitionErrorKind = iota

	// TransitionForbidden means the caller's role may not trigger the
	// attempted action regardless of status.
	TransitionForbidden
)

func (k TransitionErrorKind) String() string {
	switch k {
	case TransitionForbidden:
		return "forbidden"
	default:
		return "invalid_state"
	}
}

// TransitionError reports a rejected lifecycle transition, either from local
// validation or from the backend. It is never retried automatically and is
// meant to be shown to the user as-is.
type TransitionError struct {
	Kind   TransitionErrorKind
	Action Action
	Status Status
	Role   Role

	// Detail carries the backend's own message when the rejection came from
	// a backend response rather than local validation.
	Detail string
}

func (e *TransitionError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Kind == TransitionForbidden {
		return fmt.Sprintf("action %q is not allowed for role %q", e.Action, e.Role)
	}
	return fmt.Sprintf("action %q is not valid while the job is %q", e.Action, e.Status)
}

// ApplicationConflictError reports a rejected accept-worker call: either the
// job already has an accepted application or the worker is busy on another
// active job. It is surfaced as a distinct condition because the correct user
// action (pick someone else vs. wait) differs from a generic failure.
type ApplicationConflictError struct {
	JobID         int64
	ApplicationID int64
	Code          string
	Detail        string
}

func (e *ApplicationConflictError) Error() string {
	switch e.Code {
	case ConflictWorkerBusy:
		return "this worker is busy on another job; accept them once their current service is done"
	case ConflictAlreadyAccepted:
		return "another worker was already accepted for this job"
	default:
		if e.Detail != "" {
			return e.Detail
		}
		return fmt.Sprintf("application %d for job %d was rejected", e.ApplicationID, e.JobID)
	}
}

// Structured conflict codes returned by the backend on accept-worker
// rejections.
const (
	ConflictWorkerBusy      = "worker_has_active_job"
	ConflictAlreadyAccepted = "application_already_accepted"
)
