package lifecycle

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servifast/jobsync/internal/domain"
	"github.com/servifast/jobsync/internal/store"
	"github.com/servifast/jobsync/shared/logger"
)

type fakeBackend struct {
	jobs  map[int64]domain.Job
	apps  map[int64][]domain.JobApplication
	calls []string
	err   error
}

func newFakeBackend(jobs ...domain.Job) *fakeBackend {
	f := &fakeBackend{
		jobs: make(map[int64]domain.Job),
		apps: make(map[int64][]domain.JobApplication),
	}
	for _, job := range jobs {
		f.jobs[job.ID] = job
	}
	return f
}

func (f *fakeBackend) record(name string, jobID int64, to domain.Status) (domain.Job, error) {
	f.calls = append(f.calls, name)
	if f.err != nil {
		return domain.Job{}, f.err
	}
	job := f.jobs[jobID]
	job.Status = to
	f.jobs[jobID] = job
	return job, nil
}

func (f *fakeBackend) GetJob(_ context.Context, jobID int64) (domain.Job, error) {
	f.calls = append(f.calls, "get_job")
	job, ok := f.jobs[jobID]
	if !ok {
		return domain.Job{}, domain.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeBackend) JobApplications(_ context.Context, jobID int64) ([]domain.JobApplication, error) {
	f.calls = append(f.calls, "job_applications")
	if f.err != nil {
		return nil, f.err
	}
	return f.apps[jobID], nil
}

func (f *fakeBackend) ApplyToJob(_ context.Context, jobID int64) (domain.Job, error) {
	return f.record("apply", jobID, domain.StatusPending)
}

func (f *fakeBackend) AcceptWorker(_ context.Context, jobID, applicationID int64) (domain.Job, error) {
	f.calls = append(f.calls, "accept_worker")
	if f.err != nil {
		return domain.Job{}, f.err
	}
	job := f.jobs[jobID]
	job.Status = domain.StatusAccepted
	f.jobs[jobID] = job

	apps := f.apps[jobID]
	for i := range apps {
		if apps[i].ID == applicationID {
			apps[i].IsAccepted = true
		}
	}
	return job, nil
}

func (f *fakeBackend) StartRoute(_ context.Context, jobID int64) (domain.Job, error) {
	return f.record("start_route", jobID, domain.StatusInRoute)
}

func (f *fakeBackend) ConfirmArrival(_ context.Context, jobID int64) (domain.Job, error) {
	return f.record("confirm_arrival", jobID, domain.StatusOnSite)
}

func (f *fakeBackend) StartService(_ context.Context, jobID int64) (domain.Job, error) {
	return f.record("start_service", jobID, domain.StatusInProgress)
}

func (f *fakeBackend) AddExtra(_ context.Context, jobID int64, amount decimal.Decimal, _ string) (domain.Job, error) {
	f.calls = append(f.calls, "add_extra")
	if f.err != nil {
		return domain.Job{}, f.err
	}
	job := f.jobs[jobID]
	job.Extras = job.Extras.Add(amount)
	job.TotalAmount = job.BaseFee.Add(job.Extras)
	f.jobs[jobID] = job
	return job, nil
}

func (f *fakeBackend) Complete(_ context.Context, jobID int64) (domain.Job, error) {
	return f.record("complete", jobID, domain.StatusCompleted)
}

func (f *fakeBackend) Rate(_ context.Context, jobID int64, rating int, comment string) (domain.Rating, error) {
	f.calls = append(f.calls, "rate")
	if f.err != nil {
		return domain.Rating{}, f.err
	}
	job := f.jobs[jobID]
	job.Status = domain.StatusReviewed
	f.jobs[jobID] = job
	return domain.Rating{ID: 1, JobID: jobID, Rating: rating, Comment: comment}, nil
}

func (f *fakeBackend) Cancel(_ context.Context, jobID int64) (domain.Job, error) {
	return f.record("cancel", jobID, domain.StatusCancelled)
}

func newController(t *testing.T, backend *fakeBackend, role domain.Role, seed ...store.JobWithApplications) (*Controller, *store.DashboardStore) {
	t.Helper()
	cache := store.NewDashboardStore()
	t.Cleanup(cache.Close)
	cache.ReplaceAll(seed)
	return NewController(backend, cache, role, logger.Nop().Logger), cache
}

func TestController_LegalTransitionUpdatesCache(t *testing.T) {
	backend := newFakeBackend(domain.Job{ID: 42, Status: domain.StatusAccepted})
	ctrl, cache := newController(t, backend, domain.RoleWorker,
		store.JobWithApplications{Job: domain.Job{ID: 42, Status: domain.StatusAccepted}})

	job, err := ctrl.StartRoute(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInRoute, job.Status)

	cached, ok := cache.Job(42)
	require.True(t, ok)
	assert.Equal(t, domain.StatusInRoute, cached.Job.Status)
	assert.Equal(t, []string{"start_route"}, backend.calls)
}

func TestController_IllegalTransitionNeverReachesBackend(t *testing.T) {
	backend := newFakeBackend(domain.Job{ID: 42, Status: domain.StatusAccepted})
	ctrl, _ := newController(t, backend, domain.RoleWorker,
		store.JobWithApplications{Job: domain.Job{ID: 42, Status: domain.StatusAccepted}})

	_, err := ctrl.Complete(context.Background(), 42)

	var terr *domain.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, domain.TransitionInvalidState, terr.Kind)
	assert.Empty(t, backend.calls)
}

func TestController_RoleIsChecked(t *testing.T) {
	backend := newFakeBackend(domain.Job{ID: 42, Status: domain.StatusAccepted})
	ctrl, _ := newController(t, backend, domain.RoleClient,
		store.JobWithApplications{Job: domain.Job{ID: 42, Status: domain.StatusAccepted}})

	_, err := ctrl.StartRoute(context.Background(), 42)

	var terr *domain.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, domain.TransitionForbidden, terr.Kind)
	assert.Empty(t, backend.calls)
}

func TestController_CacheMissFetchesBeforeValidating(t *testing.T) {
	backend := newFakeBackend(domain.Job{ID: 42, Status: domain.StatusPending})
	backend.apps[42] = []domain.JobApplication{{ID: 7, JobID: 42}}
	ctrl, cache := newController(t, backend, domain.RoleClient)

	job, err := ctrl.AcceptWorker(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, job.Status)
	assert.Equal(t, []string{"get_job", "accept_worker", "job_applications"}, backend.calls)

	cached, ok := cache.Job(42)
	require.True(t, ok)
	require.Len(t, cached.Applications, 1)
	assert.True(t, cached.Applications[0].IsAccepted)
}

func TestController_StaleAcceptedJobRejectsAcceptWorker(t *testing.T) {
	// the cached copy already shows the job accepted, so accepting
	// application 7 again must fail locally
	backend := newFakeBackend(domain.Job{ID: 42, Status: domain.StatusAccepted})
	ctrl, _ := newController(t, backend, domain.RoleClient,
		store.JobWithApplications{Job: domain.Job{ID: 42, Status: domain.StatusAccepted}})

	_, err := ctrl.AcceptWorker(context.Background(), 42, 7)

	var terr *domain.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, domain.TransitionInvalidState, terr.Kind)
	assert.Empty(t, backend.calls)
}

func TestController_ConflictPassesThrough(t *testing.T) {
	backend := newFakeBackend(domain.Job{ID: 42, Status: domain.StatusPending})
	backend.err = &domain.ApplicationConflictError{
		JobID: 42, ApplicationID: 7, Code: domain.ConflictWorkerBusy,
	}
	ctrl, _ := newController(t, backend, domain.RoleClient,
		store.JobWithApplications{Job: domain.Job{ID: 42, Status: domain.StatusPending}})

	_, err := ctrl.AcceptWorker(context.Background(), 42, 7)

	var conflict *domain.ApplicationConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, domain.ConflictWorkerBusy, conflict.Code)
}

func TestController_AddExtra(t *testing.T) {
	base := decimal.RequireFromString("100")
	backend := newFakeBackend(domain.Job{
		ID: 42, Status: domain.StatusInProgress, BaseFee: base, TotalAmount: base,
	})
	ctrl, _ := newController(t, backend, domain.RoleWorker,
		store.JobWithApplications{Job: backend.jobs[42]})

	tests := []struct {
		name   string
		amount string
		wantOK bool
	}{
		{name: "positive amount", amount: "50.25", wantOK: true},
		{name: "zero amount", amount: "0", wantOK: false},
		{name: "negative amount", amount: "-5", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := ctrl.AddExtra(context.Background(), 42, decimal.RequireFromString(tt.amount), "parts")
			if !tt.wantOK {
				assert.ErrorIs(t, err, domain.ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.True(t, job.TotalAmount.Equal(decimal.RequireFromString("150.25")))
		})
	}

	// only the positive amount reached the backend
	assert.Equal(t, []string{"add_extra"}, backend.calls)
}

func TestController_RateRefreshesJob(t *testing.T) {
	backend := newFakeBackend(domain.Job{ID: 42, Status: domain.StatusCompleted})
	ctrl, cache := newController(t, backend, domain.RoleClient,
		store.JobWithApplications{Job: domain.Job{ID: 42, Status: domain.StatusCompleted}})

	rating, err := ctrl.Rate(context.Background(), 42, 5, "excellent")
	require.NoError(t, err)
	assert.Equal(t, 5, rating.Rating)

	cached, ok := cache.Job(42)
	require.True(t, ok)
	assert.Equal(t, domain.StatusReviewed, cached.Job.Status)
}

func TestController_RateRequiresCompleted(t *testing.T) {
	backend := newFakeBackend(domain.Job{ID: 42, Status: domain.StatusInProgress})
	ctrl, _ := newController(t, backend, domain.RoleClient,
		store.JobWithApplications{Job: domain.Job{ID: 42, Status: domain.StatusInProgress}})

	_, err := ctrl.Rate(context.Background(), 42, 5, "")

	var terr *domain.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Empty(t, backend.calls)
}

func TestController_CancelFromActiveStatuses(t *testing.T) {
	for _, status := range []domain.Status{
		domain.StatusPending, domain.StatusAccepted, domain.StatusInRoute,
		domain.StatusOnSite, domain.StatusInProgress,
	} {
		t.Run(status.String(), func(t *testing.T) {
			backend := newFakeBackend(domain.Job{ID: 42, Status: status})
			ctrl, _ := newController(t, backend, domain.RoleClient,
				store.JobWithApplications{Job: domain.Job{ID: 42, Status: status}})

			job, err := ctrl.Cancel(context.Background(), 42)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusCancelled, job.Status)
		})
	}

	for _, status := range []domain.Status{
		domain.StatusCompleted, domain.StatusReviewed, domain.StatusCancelled, domain.StatusUnknown,
	} {
		t.Run(status.String(), func(t *testing.T) {
			backend := newFakeBackend(domain.Job{ID: 42, Status: status})
			ctrl, _ := newController(t, backend, domain.RoleClient,
				store.JobWithApplications{Job: domain.Job{ID: 42, Status: status}})

			_, err := ctrl.Cancel(context.Background(), 42)
			var terr *domain.TransitionError
			require.ErrorAs(t, err, &terr)
		})
	}
}
