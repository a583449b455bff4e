package jobs

import (
	"context"
	"database/sql"
	"testing"

	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/strataserver/strata/pkg/errcodes"
	"github.com/strataserver/strata/pkg/migrations"
	"github.com/strataserver/strata/pkg/models"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func newScanJob(t *testing.T, svc *Service, status string, libraryID *int) *models.Job {
	t.Helper()

	job := &models.Job{
		Type:       models.JobTypeScan,
		Status:     status,
		DataParsed: &models.JobScanData{Reason: models.ScanReasonManual},
		LibraryID:  libraryID,
	}
	err := svc.CreateJob(context.Background(), job)
	require.NoError(t, err)

	return job
}

func TestCreateJob(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	job := &models.Job{
		Type:       models.JobTypeScan,
		Status:     models.JobStatusPending,
		DataParsed: &models.JobScanData{Reason: models.ScanReasonStructureChange},
	}
	err := svc.CreateJob(ctx, job)
	require.NoError(t, err)

	assert.NotEqual(t, 0, job.ID)
	assert.False(t, job.CreatedAt.IsZero())
	assert.Equal(t, job.CreatedAt, job.UpdatedAt)
	assert.JSONEq(t, `{"reason":"structure_change"}`, job.Data)
}

func TestRetrieveJob(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	created := newScanJob(t, svc, models.JobStatusPending, pointerutil.Int(7))

	job, err := svc.RetrieveJob(ctx, RetrieveJobOptions{ID: &created.ID})
	require.NoError(t, err)

	assert.Equal(t, created.ID, job.ID)
	assert.Equal(t, models.JobTypeScan, job.Type)
	require.NotNil(t, job.LibraryID)
	assert.Equal(t, 7, *job.LibraryID)

	data, ok := job.DataParsed.(*models.JobScanData)
	require.True(t, ok)
	assert.Equal(t, models.ScanReasonManual, data.Reason)
}

func TestRetrieveJob_NotFound(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	id := 999
	_, err := svc.RetrieveJob(ctx, RetrieveJobOptions{ID: &id})
	assert.ErrorIs(t, err, errcodes.NotFound("Job"))
}

func TestListJobs_Statuses(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	newScanJob(t, svc, models.JobStatusPending, nil)
	newScanJob(t, svc, models.JobStatusCompleted, nil)
	inProgress := newScanJob(t, svc, models.JobStatusInProgress, nil)

	jobs, err := svc.ListJobs(ctx, ListJobsOptions{
		Statuses: []string{models.JobStatusInProgress},
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, inProgress.ID, jobs[0].ID)
}

func TestListJobs_ProcessIDToExclude(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	mine := newScanJob(t, svc, models.JobStatusInProgress, nil)
	mine.ProcessID = pointerutil.String("abcd1234")
	err := svc.UpdateJob(ctx, mine, UpdateJobOptions{Columns: []string{"process_id"}})
	require.NoError(t, err)

	unclaimed := newScanJob(t, svc, models.JobStatusPending, nil)

	jobs, err := svc.ListJobs(ctx, ListJobsOptions{
		ProcessIDToExclude: pointerutil.String("abcd1234"),
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, unclaimed.ID, jobs[0].ID)
}

func TestListJobsWithTotal(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		newScanJob(t, svc, models.JobStatusPending, nil)
	}

	limit := 2
	jobs, total, err := svc.ListJobsWithTotal(ctx, ListJobsOptions{Limit: &limit})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
	assert.Equal(t, 3, total)
}

func TestListJobs_LibraryIDOrGlobal(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	global := newScanJob(t, svc, models.JobStatusPending, nil)
	scoped := newScanJob(t, svc, models.JobStatusPending, pointerutil.Int(1))
	newScanJob(t, svc, models.JobStatusPending, pointerutil.Int(2))

	jobs, err := svc.ListJobs(ctx, ListJobsOptions{
		LibraryIDOrGlobal: pointerutil.Int(1),
	})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, global.ID, jobs[0].ID)
	assert.Equal(t, scoped.ID, jobs[1].ID)
}

func TestUpdateJob(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	job := newScanJob(t, svc, models.JobStatusPending, nil)

	job.Status = models.JobStatusCompleted
	job.Progress = 100
	err := svc.UpdateJob(ctx, job, UpdateJobOptions{Columns: []string{"status", "progress"}})
	require.NoError(t, err)

	updated, err := svc.RetrieveJob(ctx, RetrieveJobOptions{ID: &job.ID})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, updated.Status)
	assert.Equal(t, 100, updated.Progress)
}

func TestHasActiveJob_NoJobs(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	hasActive, err := svc.HasActiveJob(ctx, models.JobTypeScan, nil)
	require.NoError(t, err)
	assert.False(t, hasActive)
}

func TestHasActiveJob_PendingGlobalJob(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	newScanJob(t, svc, models.JobStatusPending, nil)

	hasActive, err := svc.HasActiveJob(ctx, models.JobTypeScan, nil)
	require.NoError(t, err)
	assert.True(t, hasActive)

	// A whole-catalog job covers every library.
	hasActive, err = svc.HasActiveJob(ctx, models.JobTypeScan, pointerutil.Int(3))
	require.NoError(t, err)
	assert.True(t, hasActive)
}

func TestHasActiveJob_ScopedJob(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	newScanJob(t, svc, models.JobStatusInProgress, pointerutil.Int(1))

	hasActive, err := svc.HasActiveJob(ctx, models.JobTypeScan, pointerutil.Int(1))
	require.NoError(t, err)
	assert.True(t, hasActive)

	hasActive, err = svc.HasActiveJob(ctx, models.JobTypeScan, pointerutil.Int(2))
	require.NoError(t, err)
	assert.False(t, hasActive)

	// A scoped job doesn't stand in for a whole-catalog one.
	hasActive, err = svc.HasActiveJob(ctx, models.JobTypeScan, nil)
	require.NoError(t, err)
	assert.False(t, hasActive)
}

func TestHasActiveJob_FinishedJobsDontCount(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	newScanJob(t, svc, models.JobStatusCompleted, nil)
	newScanJob(t, svc, models.JobStatusFailed, nil)

	hasActive, err := svc.HasActiveJob(ctx, models.JobTypeScan, nil)
	require.NoError(t, err)
	assert.False(t, hasActive)
}
