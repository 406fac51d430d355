// Package router turns dashboard notification frames into refetches. Frames
// are treated as hints only: a notification never carries data into the local
// view, it just decides how much to refetch.
package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/servifast/jobsync/internal/domain"
	"github.com/servifast/jobsync/internal/store"
)

// Fetcher is the subset of the REST client the router needs for targeted
// refetches.
type Fetcher interface {
	GetJob(ctx context.Context, jobID int64) (domain.Job, error)
	JobApplications(ctx context.Context, jobID int64) ([]domain.JobApplication, error)
}

// Target receives refetched entries.
type Target interface {
	Upsert(entry store.JobWithApplications)
}

// Router maps one notification to either a single-job refetch or a full
// reload.
type Router struct {
	fetcher Fetcher
	target  Target
	reload  func(ctx context.Context) error
	logger  *slog.Logger
}

// New builds a router. reload refreshes the whole dashboard list and is the
// fallback for every notification that cannot be resolved to one job.
func New(fetcher Fetcher, target Target, reload func(ctx context.Context) error, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		fetcher: fetcher,
		target:  target,
		reload:  reload,
		logger:  logger.With(slog.String("component", "router")),
	}
}

// ParseNotification decodes a raw dashboard frame. The job id may sit at the
// top level or inside the data payload; when neither resolves, JobID stays
// zero and routing falls back to a full reload.
func ParseNotification(frame []byte) domain.NotificationEvent {
	var raw struct {
		Type  string         `json:"type"`
		JobID *int64         `json:"job_id"`
		Data  map[string]any `json:"data"`
	}
	if err := json.Unmarshal(frame, &raw); err != nil {
		return domain.NotificationEvent{}
	}

	event := domain.NotificationEvent{Type: raw.Type, Data: raw.Data}
	switch {
	case raw.JobID != nil:
		event.JobID = *raw.JobID
	case raw.Data != nil:
		if id, ok := raw.Data["job_id"].(float64); ok {
			event.JobID = int64(id)
		}
	}
	return event
}

// Route handles one notification. Known types with a resolvable job id get a
// targeted refetch of that job and its applications; everything else, and any
// refetch failure, degrades to a full reload so no update is ever lost.
func (r *Router) Route(ctx context.Context, event domain.NotificationEvent) error {
	switch event.Type {
	case domain.NotificationNewMessage, domain.NotificationNewApplication:
		if event.JobID == 0 {
			break
		}

		job, err := r.fetcher.GetJob(ctx, event.JobID)
		if err == nil {
			var apps []domain.JobApplication
			apps, err = r.fetcher.JobApplications(ctx, event.JobID)
			if err == nil {
				r.target.Upsert(store.JobWithApplications{Job: job, Applications: apps})
				r.logger.Debug("Targeted refetch applied",
					slog.String("type", event.Type),
					slog.Int64("job_id", event.JobID),
				)
				return nil
			}
		}
		r.logger.Warn("Targeted refetch failed, falling back to full reload",
			slog.Int64("job_id", event.JobID),
			slog.Any("error", err),
		)
	default:
		r.logger.Debug("Unhandled notification type, reloading",
			slog.String("type", event.Type))
	}

	return r.reload(ctx)
}
