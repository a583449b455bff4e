package worker

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/robinjoseph08/golib/logger"
	"github.com/strataserver/strata/pkg/config"
	"github.com/strataserver/strata/pkg/events"
	"github.com/strataserver/strata/pkg/joblogs"
	"github.com/strataserver/strata/pkg/jobs"
	"github.com/strataserver/strata/pkg/libraries"
	"github.com/strataserver/strata/pkg/mediafiles"
	"github.com/strataserver/strata/pkg/migrations"
	"github.com/strataserver/strata/pkg/models"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// fakePauser records the pause and resume calls a scan makes against the
// filesystem monitor.
type fakePauser struct {
	mu      sync.Mutex
	paused  bool
	pauses  int
	resumes int
}

func (p *fakePauser) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	p.pauses++
}

func (p *fakePauser) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	p.resumes++
}

func (p *fakePauser) counts() (pauses, resumes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pauses, p.resumes
}

// testContext holds all the dependencies needed for testing the worker.
type testContext struct {
	t                *testing.T
	ctx              context.Context
	db               *bun.DB
	cfg              *config.Config
	worker           *Worker
	bus              *events.Bus
	pauser           *fakePauser
	jobService       *jobs.Service
	jobLogService    *joblogs.Service
	libraryService   *libraries.Service
	mediaFileService *mediafiles.Service
}

// newTestContext creates a new test context with an in-memory SQLite database
// and a fully wired worker.
func newTestContext(t *testing.T) *testContext {
	t.Helper()

	// Create in-memory SQLite database
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	// Run migrations
	_, err = migrations.BringUpToDate(context.Background(), db)
	if err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	cfg := config.NewForTest()
	cfg.LibraryRootDirectory = t.TempDir()

	pauser := &fakePauser{}
	bus := events.New(logger.New())
	w := New(cfg, db, pauser, bus)

	// Create context with logger
	ctx := logger.New().WithContext(context.Background())

	tc := &testContext{
		t:                t,
		ctx:              ctx,
		db:               db,
		cfg:              cfg,
		worker:           w,
		bus:              bus,
		pauser:           pauser,
		jobService:       w.jobService,
		jobLogService:    w.jobLogService,
		libraryService:   w.libraryService,
		mediaFileService: w.mediaFileService,
	}

	t.Cleanup(func() {
		db.Close()
	})

	return tc
}

// createLibrary creates a test library backed by the given media paths.
func (tc *testContext) createLibrary(name string, paths ...string) *models.Library {
	tc.t.Helper()

	libraryPaths := make([]*models.LibraryPath, len(paths))
	for i, p := range paths {
		libraryPaths[i] = &models.LibraryPath{
			Filepath: p,
		}
	}

	library := &models.Library{
		Name:         name,
		LibraryPaths: libraryPaths,
	}

	err := tc.libraryService.CreateLibrary(tc.ctx, library)
	if err != nil {
		tc.t.Fatalf("failed to create library: %v", err)
	}
	return library
}

// createScanJob creates a pending scan job scoped to the given library; nil
// means the whole catalog.
func (tc *testContext) createScanJob(libraryID *int) *models.Job {
	tc.t.Helper()

	job := &models.Job{
		Type:       models.JobTypeScan,
		Status:     models.JobStatusPending,
		DataParsed: &models.JobScanData{Reason: models.ScanReasonManual},
		LibraryID:  libraryID,
	}

	err := tc.jobService.CreateJob(tc.ctx, job)
	if err != nil {
		tc.t.Fatalf("failed to create job: %v", err)
	}
	return job
}

// listFiles returns the cataloged media files for a library.
func (tc *testContext) listFiles(libraryID int) []*models.MediaFile {
	tc.t.Helper()

	files, err := tc.mediaFileService.ListMediaFiles(tc.ctx, mediafiles.ListMediaFilesOptions{
		LibraryID: &libraryID,
	})
	if err != nil {
		tc.t.Fatalf("failed to list media files: %v", err)
	}
	return files
}

// listJobs returns all jobs in the database.
func (tc *testContext) listJobs() []*models.Job {
	tc.t.Helper()

	allJobs, err := tc.jobService.ListJobs(tc.ctx, jobs.ListJobsOptions{})
	if err != nil {
		tc.t.Fatalf("failed to list jobs: %v", err)
	}
	return allJobs
}

// runScan executes the scan process function for the given job.
func (tc *testContext) runScan(job *models.Job) error {
	return tc.worker.ProcessScanJob(tc.ctx, job)
}
