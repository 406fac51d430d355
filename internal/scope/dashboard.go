// Package scope wires the long-lived sync surfaces together: the dashboard
// scope keeps the job list converged, a chat scope keeps one conversation
// converged. Each scope owns its channel, poller, and store, and runs until
// its context is cancelled.
package scope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/servifast/jobsync/internal/domain"
	"github.com/servifast/jobsync/internal/poll"
	"github.com/servifast/jobsync/internal/router"
	"github.com/servifast/jobsync/internal/store"
	"github.com/servifast/jobsync/internal/transport"
)

// DashboardBackend is the subset of the REST client the dashboard scope
// reads from.
type DashboardBackend interface {
	router.Fetcher
	MyJobs(ctx context.Context) ([]domain.Job, error)
	MyApplications(ctx context.Context) ([]domain.JobApplication, error)
}

// DashboardConfig holds dashboard scope wiring.
type DashboardConfig struct {
	Backend DashboardBackend
	Channel *transport.Channel
	Store   *store.DashboardStore
	Role    domain.Role
	// PollInterval is the fallback sweep cadence while the socket is down.
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Dashboard keeps the job list in sync through three paths: notification
// frames trigger refetches, a poller sweeps while the socket is down, and
// lifecycle responses land in the store directly.
type Dashboard struct {
	backend DashboardBackend
	channel *transport.Channel
	store   *store.DashboardStore
	role    domain.Role
	router  *router.Router
	poller  *poll.Poller
	logger  *slog.Logger
}

// NewDashboard validates cfg and builds the scope.
func NewDashboard(cfg DashboardConfig) (*Dashboard, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if cfg.Channel == nil {
		return nil, fmt.Errorf("channel is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Role != domain.RoleClient && cfg.Role != domain.RoleWorker {
		return nil, fmt.Errorf("unknown role %q", cfg.Role)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	d := &Dashboard{
		backend: cfg.Backend,
		channel: cfg.Channel,
		store:   cfg.Store,
		role:    cfg.Role,
		logger:  cfg.Logger.With(slog.String("scope", "dashboard"), slog.String("role", string(cfg.Role))),
	}
	d.router = router.New(cfg.Backend, cfg.Store, d.Reload, cfg.Logger)
	// the poller is the fallback path; it only sweeps while the socket is
	// not delivering
	d.poller = poll.New(cfg.PollInterval, d.Reload, func() bool {
		return d.channel.State() != transport.StateConnected
	}, cfg.Logger)
	return d, nil
}

// Run blocks until ctx is cancelled. The initial load happens before any
// frame is processed so notifications always splice into a populated list.
func (d *Dashboard) Run(ctx context.Context) error {
	if err := d.Reload(ctx); err != nil {
		// the poller and the first notification will retry; an unreachable
		// backend at startup is not fatal
		d.logger.Warn("Initial dashboard load failed", slog.Any("error", err))
	}

	events, cancelEvents := d.channel.Subscribe(32)
	defer cancelEvents()
	states, cancelStates := d.channel.StateChanges(8)
	defer cancelStates()

	d.channel.Connect(ctx)
	go d.poller.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			notification := router.ParseNotification(event.Data)
			if err := d.router.Route(ctx, notification); err != nil {
				d.logger.Warn("Notification handling failed",
					slog.String("type", notification.Type),
					slog.Any("error", err),
				)
			}
		case state, ok := <-states:
			if !ok {
				return nil
			}
			d.logger.Info("Dashboard channel state", slog.String("state", state.String()))
			if state != transport.StateConnected {
				// sweep immediately so frames lost during the gap are
				// recovered without waiting a full interval
				d.poller.Kick()
			}
		}
	}
}

// Reload refetches the whole job list for the scope's role and replaces the
// store contents.
func (d *Dashboard) Reload(ctx context.Context) error {
	jobs, err := d.backend.MyJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load jobs: %w", err)
	}

	entries := make([]store.JobWithApplications, 0, len(jobs))
	listed := make(map[int64]bool, len(jobs))
	for _, job := range jobs {
		entry := store.JobWithApplications{Job: job}
		// applications only matter while the job is open for selection
		if job.Status == domain.StatusPending {
			apps, err := d.backend.JobApplications(ctx, job.ID)
			if err != nil {
				return fmt.Errorf("failed to load applications for job %d: %w", job.ID, err)
			}
			entry.Applications = apps
		}
		entries = append(entries, entry)
		listed[job.ID] = true
	}

	// a worker also tracks jobs they applied to but are not assigned on
	if d.role == domain.RoleWorker {
		apps, err := d.backend.MyApplications(ctx)
		if err != nil {
			return fmt.Errorf("failed to load applications: %w", err)
		}
		for _, app := range apps {
			if listed[app.JobID] {
				continue
			}
			job, err := d.backend.GetJob(ctx, app.JobID)
			if err != nil {
				if errors.Is(err, domain.ErrJobNotFound) {
					continue
				}
				return fmt.Errorf("failed to load applied job %d: %w", app.JobID, err)
			}
			entries = append(entries, store.JobWithApplications{
				Job:          job,
				Applications: []domain.JobApplication{app},
			})
			listed[app.JobID] = true
		}
	}

	d.store.ReplaceAll(entries)
	d.logger.Debug("Dashboard reloaded", slog.Int("jobs", len(entries)))
	return nil
}
