// Package lifecycle guards job transitions. Every operation is validated
// against the local state machine before the backend is called, so obviously
// illegal attempts fail fast with a user-actionable error; the backend
// response remains authoritative and is written back to the dashboard view.
package lifecycle

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/servifast/jobsync/internal/domain"
	"github.com/servifast/jobsync/internal/store"
)

// Backend is the subset of the REST client the controller drives.
type Backend interface {
	GetJob(ctx context.Context, jobID int64) (domain.Job, error)
	JobApplications(ctx context.Context, jobID int64) ([]domain.JobApplication, error)
	ApplyToJob(ctx context.Context, jobID int64) (domain.Job, error)
	AcceptWorker(ctx context.Context, jobID, applicationID int64) (domain.Job, error)
	StartRoute(ctx context.Context, jobID int64) (domain.Job, error)
	ConfirmArrival(ctx context.Context, jobID int64) (domain.Job, error)
	StartService(ctx context.Context, jobID int64) (domain.Job, error)
	AddExtra(ctx context.Context, jobID int64, amount decimal.Decimal, description string) (domain.Job, error)
	Complete(ctx context.Context, jobID int64) (domain.Job, error)
	Rate(ctx context.Context, jobID int64, rating int, comment string) (domain.Rating, error)
	Cancel(ctx context.Context, jobID int64) (domain.Job, error)
}

// Cache is the job view the controller reads current status from and writes
// authoritative responses back to.
type Cache interface {
	Job(jobID int64) (store.JobWithApplications, bool)
	Upsert(entry store.JobWithApplications)
}

// Controller executes lifecycle actions for one role.
type Controller struct {
	backend Backend
	cache   Cache
	role    domain.Role
	logger  *slog.Logger
}

// NewController builds a controller acting as role.
func NewController(backend Backend, cache Cache, role domain.Role, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		backend: backend,
		cache:   cache,
		role:    role,
		logger:  logger.With(slog.String("component", "lifecycle"), slog.String("role", string(role))),
	}
}

// current returns the job's cached entry, fetching it from the backend on a
// cache miss so validation never runs against nothing.
func (c *Controller) current(ctx context.Context, jobID int64) (store.JobWithApplications, error) {
	if entry, ok := c.cache.Job(jobID); ok {
		return entry, nil
	}

	job, err := c.backend.GetJob(ctx, jobID)
	if err != nil {
		return store.JobWithApplications{}, err
	}
	entry := store.JobWithApplications{Job: job}
	c.cache.Upsert(entry)
	return entry, nil
}

// run validates action against the current status and, when legal, executes
// call and writes the authoritative response back.
func (c *Controller) run(ctx context.Context, jobID int64, action domain.Action,
	call func(ctx context.Context) (domain.Job, error)) (domain.Job, error) {

	entry, err := c.current(ctx, jobID)
	if err != nil {
		return domain.Job{}, err
	}

	if terr := domain.Allowed(entry.Job.Status, c.role, action); terr != nil {
		c.logger.Warn("Transition rejected locally",
			slog.Int64("job_id", jobID),
			slog.String("action", string(action)),
			slog.String("status", entry.Job.Status.String()),
			slog.String("reason", terr.Error()),
		)
		return domain.Job{}, terr
	}

	job, err := call(ctx)
	if err != nil {
		return domain.Job{}, err
	}

	c.cache.Upsert(store.JobWithApplications{Job: job, Applications: entry.Applications})
	c.logger.Info("Transition applied",
		slog.Int64("job_id", jobID),
		slog.String("action", string(action)),
		slog.String("status", job.Status.String()),
	)
	return job, nil
}

// Apply submits a worker application. The job stays pending; applying never
// assigns the worker.
func (c *Controller) Apply(ctx context.Context, jobID int64) (domain.Job, error) {
	return c.run(ctx, jobID, domain.ActionApply, func(ctx context.Context) (domain.Job, error) {
		return c.backend.ApplyToJob(ctx, jobID)
	})
}

// AcceptWorker accepts one application and refreshes the application list so
// the accepted flag is reflected immediately.
func (c *Controller) AcceptWorker(ctx context.Context, jobID, applicationID int64) (domain.Job, error) {
	job, err := c.run(ctx, jobID, domain.ActionAcceptWorker, func(ctx context.Context) (domain.Job, error) {
		return c.backend.AcceptWorker(ctx, jobID, applicationID)
	})
	if err != nil {
		return domain.Job{}, err
	}

	apps, err := c.backend.JobApplications(ctx, jobID)
	if err != nil {
		// acceptance succeeded; a stale application list self-heals on the
		// next poll
		c.logger.Warn("Failed to refresh applications after acceptance",
			slog.Int64("job_id", jobID), slog.Any("error", err))
		return job, nil
	}
	c.cache.Upsert(store.JobWithApplications{Job: job, Applications: apps})
	return job, nil
}

// StartRoute marks the worker as traveling to the site.
func (c *Controller) StartRoute(ctx context.Context, jobID int64) (domain.Job, error) {
	return c.run(ctx, jobID, domain.ActionStartRoute, func(ctx context.Context) (domain.Job, error) {
		return c.backend.StartRoute(ctx, jobID)
	})
}

// ConfirmArrival marks the worker as on site.
func (c *Controller) ConfirmArrival(ctx context.Context, jobID int64) (domain.Job, error) {
	return c.run(ctx, jobID, domain.ActionConfirmArrival, func(ctx context.Context) (domain.Job, error) {
		return c.backend.ConfirmArrival(ctx, jobID)
	})
}

// StartService marks the service as underway.
func (c *Controller) StartService(ctx context.Context, jobID int64) (domain.Job, error) {
	return c.run(ctx, jobID, domain.ActionStartService, func(ctx context.Context) (domain.Job, error) {
		return c.backend.StartService(ctx, jobID)
	})
}

// AddExtra appends an extra charge. Amounts must be strictly positive; the
// check runs locally before any request is made.
func (c *Controller) AddExtra(ctx context.Context, jobID int64, amount decimal.Decimal, description string) (domain.Job, error) {
	if !amount.IsPositive() {
		return domain.Job{}, domain.ErrInvalidAmount
	}
	return c.run(ctx, jobID, domain.ActionAddExtra, func(ctx context.Context) (domain.Job, error) {
		return c.backend.AddExtra(ctx, jobID, amount, description)
	})
}

// Complete marks the service as finished.
func (c *Controller) Complete(ctx context.Context, jobID int64) (domain.Job, error) {
	return c.run(ctx, jobID, domain.ActionComplete, func(ctx context.Context) (domain.Job, error) {
		return c.backend.Complete(ctx, jobID)
	})
}

// Cancel cancels the job from any active status.
func (c *Controller) Cancel(ctx context.Context, jobID int64) (domain.Job, error) {
	return c.run(ctx, jobID, domain.ActionCancel, func(ctx context.Context) (domain.Job, error) {
		return c.backend.Cancel(ctx, jobID)
	})
}

// Rate submits a review for a completed job, then refetches the job so the
// reviewed status lands in the cache.
func (c *Controller) Rate(ctx context.Context, jobID int64, rating int, comment string) (domain.Rating, error) {
	entry, err := c.current(ctx, jobID)
	if err != nil {
		return domain.Rating{}, err
	}
	if terr := domain.Allowed(entry.Job.Status, c.role, domain.ActionRate); terr != nil {
		return domain.Rating{}, terr
	}

	result, err := c.backend.Rate(ctx, jobID, rating, comment)
	if err != nil {
		return domain.Rating{}, err
	}

	job, err := c.backend.GetJob(ctx, jobID)
	if err != nil {
		c.logger.Warn("Failed to refresh job after rating",
			slog.Int64("job_id", jobID), slog.Any("error", err))
		return result, nil
	}
	c.cache.Upsert(store.JobWithApplications{Job: job, Applications: entry.Applications})
	return result, nil
}
