package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servifast/jobsync/internal/domain"
)

func entry(jobID int64, status domain.Status, appIDs ...int64) JobWithApplications {
	apps := make([]domain.JobApplication, 0, len(appIDs))
	for _, id := range appIDs {
		apps = append(apps, domain.JobApplication{ID: id, JobID: jobID})
	}
	return JobWithApplications{
		Job:          domain.Job{ID: jobID, Status: status},
		Applications: apps,
	}
}

func TestDashboardStore_UpsertReplacesInPlace(t *testing.T) {
	store := NewDashboardStore()
	defer store.Close()

	store.ReplaceAll([]JobWithApplications{
		entry(1, domain.StatusPending),
		entry(2, domain.StatusAccepted),
		entry(3, domain.StatusPending),
	})

	store.Upsert(entry(2, domain.StatusInRoute))

	snapshot := store.Snapshot()
	require.Len(t, snapshot, 3)
	// position is preserved
	assert.Equal(t, int64(2), snapshot[1].Job.ID)
	assert.Equal(t, domain.StatusInRoute, snapshot[1].Job.Status)
	// neighbors untouched
	assert.Equal(t, domain.StatusPending, snapshot[0].Job.Status)
	assert.Equal(t, domain.StatusPending, snapshot[2].Job.Status)
}

func TestDashboardStore_UpsertAppendsUnknownJob(t *testing.T) {
	store := NewDashboardStore()
	defer store.Close()

	store.ReplaceAll([]JobWithApplications{entry(1, domain.StatusPending)})
	store.Upsert(entry(9, domain.StatusPending, 71))

	snapshot := store.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, int64(9), snapshot[1].Job.ID)
	require.Len(t, snapshot[1].Applications, 1)
}

func TestDashboardStore_UpdateToOneJobLeavesOthersAlone(t *testing.T) {
	store := NewDashboardStore()
	defer store.Close()

	store.ReplaceAll([]JobWithApplications{
		entry(1, domain.StatusPending, 10, 11),
		entry(2, domain.StatusPending, 20),
	})

	before, ok := store.Job(2)
	require.True(t, ok)

	store.Upsert(entry(1, domain.StatusPending, 10, 11, 12))

	after, ok := store.Job(2)
	require.True(t, ok)
	assert.Equal(t, before, after)
}

func TestDashboardStore_Remove(t *testing.T) {
	store := NewDashboardStore()
	defer store.Close()

	store.ReplaceAll([]JobWithApplications{
		entry(1, domain.StatusPending),
		entry(2, domain.StatusPending),
	})

	store.Remove(1)

	snapshot := store.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, int64(2), snapshot[0].Job.ID)

	_, ok := store.Job(1)
	assert.False(t, ok)
}

func TestDashboardStore_SubscribeSignalsChanges(t *testing.T) {
	store := NewDashboardStore()
	defer store.Close()

	updates, cancel := store.Subscribe(4)
	defer cancel()

	store.ReplaceAll(nil)
	store.Upsert(entry(1, domain.StatusPending))

	assert.Len(t, updates, 2)
}
