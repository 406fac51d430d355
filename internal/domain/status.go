package domain

import "strings"

// Status is the closed set of job lifecycle states. The backend serializes
// statuses as lowercase strings but has historically been inconsistent about
// casing, so all parsing goes through ParseStatus.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusInRoute    Status = "in_route"
	StatusOnSite     Status = "on_site"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusReviewed   Status = "reviewed"
	StatusCancelled  Status = "cancelled"

	// StatusUnknown is assigned to any status string the client does not
	// recognize. Transitions from it are always rejected; stage mapping
	// falls back to the earliest active stage.
	StatusUnknown Status = "unknown"
)

// ParseStatus normalizes a backend status string. Comparison is
// case-insensitive and "arrived" is accepted as a legacy alias for on_site.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending
	case "accepted":
		return StatusAccepted
	case "in_route":
		return StatusInRoute
	case "on_site", "arrived":
		return StatusOnSite
	case "in_progress":
		return StatusInProgress
	case "completed":
		return StatusCompleted
	case "reviewed":
		return StatusReviewed
	case "cancelled", "canceled":
		return StatusCancelled
	default:
		return StatusUnknown
	}
}

func (s Status) String() string {
	return string(s)
}

// Role identifies which side of the marketplace the caller acts as.
type Role string

const (
	RoleClient Role = "client"
	RoleWorker Role = "worker"
)

// Action is a lifecycle edge a caller may attempt on a job.
type Action string

const (
	ActionApply          Action = "apply"
	ActionAcceptWorker   Action = "accept_worker"
	ActionStartRoute     Action = "start_route"
	ActionConfirmArrival Action = "confirm_arrival"
	ActionStartService   Action = "start_service"
	ActionAddExtra       Action = "add_extra"
	ActionComplete       Action = "complete"
	ActionRate           Action = "rate"
	ActionCancel         Action = "cancel"
)

// transitionRule describes one edge of the lifecycle state machine: the
// statuses it may start from, the roles allowed to trigger it, and the
// resulting status. The resulting status is informational only; the client
// never applies it locally, the backend response is the source of truth.
type transitionRule struct {
	from  []Status
	roles []Role
	to    Status
}

var transitions = map[Action]transitionRule{
	ActionApply:          {from: []Status{StatusPending}, roles: []Role{RoleWorker}, to: StatusPending},
	ActionAcceptWorker:   {from: []Status{StatusPending}, roles: []Role{RoleClient}, to: StatusAccepted},
	ActionStartRoute:     {from: []Status{StatusAccepted}, roles: []Role{RoleWorker}, to: StatusInRoute},
	ActionConfirmArrival: {from: []Status{StatusInRoute}, roles: []Role{RoleWorker}, to: StatusOnSite},
	ActionStartService:   {from: []Status{StatusOnSite}, roles: []Role{RoleWorker}, to: StatusInProgress},
	ActionAddExtra:       {from: []Status{StatusInProgress}, roles: []Role{RoleWorker}, to: StatusInProgress},
	ActionComplete:       {from: []Status{StatusInProgress}, roles: []Role{RoleWorker}, to: StatusCompleted},
	ActionRate:           {from: []Status{StatusCompleted}, roles: []Role{RoleClient, RoleWorker}, to: StatusReviewed},
	ActionCancel: {
		from:  []Status{StatusPending, StatusAccepted, StatusInRoute, StatusOnSite, StatusInProgress},
		roles: []Role{RoleClient, RoleWorker},
		to:    StatusCancelled,
	},
}

// Allowed validates a (status, role, action) triple against the transition
// table. It returns nil when the edge is legal, a Forbidden error when the
// role may never trigger the action, and an InvalidState error when the job
// is not in a valid predecessor status.
func Allowed(status Status, role Role, action Action) *TransitionError {
	rule, ok := transitions[action]
	if !ok {
		return &TransitionError{Kind: TransitionInvalidState, Action: action, Status: status, Role: role}
	}

	roleOK := false
	for _, r := range rule.roles {
		if r == role {
			roleOK = true
			break
		}
	}
	if !roleOK {
		return &TransitionError{Kind: TransitionForbidden, Action: action, Status: status, Role: role}
	}

	for _, s := range rule.from {
		if s == status {
			return nil
		}
	}
	return &TransitionError{Kind: TransitionInvalidState, Action: action, Status: status, Role: role}
}

// Stage is the coarse UI stage derived from a job status. The presentation
// layer uses it to drive screen redirection after transitions.
type Stage int

const (
	StageAccepted Stage = iota
	StageOnRoute
	StageArrived
	StageInService
	StageCompleted
	StageReviewed
)

func (s Stage) String() string {
	switch s {
	case StageAccepted:
		return "accepted"
	case StageOnRoute:
		return "on_route"
	case StageArrived:
		return "arrived"
	case StageInService:
		return "in_service"
	case StageCompleted:
		return "completed"
	case StageReviewed:
		return "reviewed"
	default:
		return "accepted"
	}
}

// MapStatusToStage maps any status string to a stage. The mapping is total:
// unrecognized or pre-acceptance statuses map to StageAccepted, the earliest
// active stage. It never fails.
func MapStatusToStage(status string) Stage {
	switch ParseStatus(status) {
	case StatusInRoute:
		return StageOnRoute
	case StatusOnSite:
		return StageArrived
	case StatusInProgress:
		return StageInService
	case StatusCompleted:
		return StageCompleted
	case StatusReviewed:
		return StageReviewed
	default:
		return StageAccepted
	}
}
