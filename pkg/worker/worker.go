package worker

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/uptrace/bun"

	"github.com/strataserver/strata/pkg/config"
	"github.com/strataserver/strata/pkg/events"
	"github.com/strataserver/strata/pkg/joblogs"
	"github.com/strataserver/strata/pkg/jobs"
	"github.com/strataserver/strata/pkg/libraries"
	"github.com/strataserver/strata/pkg/mediafiles"
	"github.com/strataserver/strata/pkg/models"
)

var processID = randStringBytes(8)

// Pauser quiets the filesystem monitor while a scan rewrites the catalog.
type Pauser interface {
	Pause()
	Resume()
}

type Worker struct {
	config *config.Config
	log    logger.Logger

	// baseCtx is cancelled on Shutdown so in-flight scans stop walking
	// instead of holding the process open.
	baseCtx context.Context
	cancel  context.CancelFunc

	processFuncs map[string]func(ctx context.Context, job *models.Job) error

	jobService       *jobs.Service
	jobLogService    *joblogs.Service
	libraryService   *libraries.Service
	mediaFileService *mediafiles.Service

	pauser Pauser

	queue          chan *models.Job
	shutdown       chan struct{}
	doneFetching   chan struct{}
	doneScheduling chan struct{}
	doneProcessing chan struct{}
}

func New(cfg *config.Config, db *bun.DB, pauser Pauser, bus *events.Bus) *Worker {
	jobService := jobs.NewService(db)
	jobLogService := joblogs.NewService(db)
	libraryService := libraries.NewService(db)
	mediaFileService := mediafiles.NewService(db)

	baseCtx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		config:  cfg,
		log:     logger.New(),
		baseCtx: baseCtx,
		cancel:  cancel,

		jobService:       jobService,
		jobLogService:    jobLogService,
		libraryService:   libraryService,
		mediaFileService: mediaFileService,

		pauser: pauser,

		queue:          make(chan *models.Job, cfg.WorkerProcesses),
		shutdown:       make(chan struct{}),
		doneFetching:   make(chan struct{}),
		doneScheduling: make(chan struct{}),
		doneProcessing: make(chan struct{}, cfg.WorkerProcesses),
	}

	w.processFuncs = map[string]func(ctx context.Context, job *models.Job) error{
		models.JobTypeScan: w.ProcessScanJob,
	}

	if bus != nil {
		bus.Subscribe(w.handleEvent)
	}

	return w
}

func (w *Worker) Start() {
	go w.fetchJobs()
	go w.scheduleScans()
	for i := 0; i < w.config.WorkerProcesses; i++ {
		go w.processJobs()
	}
}

func (w *Worker) fetchJobs() {
	duration := 5 * time.Second
	timer := time.NewTimer(duration)

	for {
		select {
		case <-w.shutdown:
			// We're shutting down, so stop adding more jobs to the queue.
			w.doneFetching <- struct{}{}
			return
		case <-timer.C:
			j, err := w.jobService.ListJobs(context.Background(), jobs.ListJobsOptions{
				Limit:              pointerutil.Int(1),
				Statuses:           []string{models.JobStatusPending, models.JobStatusInProgress},
				ProcessIDToExclude: &processID,
			})
			if err != nil {
				w.log.Err(err).Error("list jobs error")
				timer.Reset(duration)
				continue
			}
			for _, job := range j {
				w.queue <- job
			}
			timer.Reset(duration)
		}
	}
}

func (w *Worker) scheduleScans() {
	if w.config.ScanIntervalMinutes <= 0 {
		// Periodic scans are disabled.
		<-w.shutdown
		w.doneScheduling <- struct{}{}
		return
	}

	duration := time.Duration(w.config.ScanIntervalMinutes) * time.Minute
	timer := time.NewTimer(duration)

	for {
		select {
		case <-w.shutdown:
			w.doneScheduling <- struct{}{}
			return
		case <-timer.C:
			ctx := w.log.WithContext(context.Background())
			err := w.enqueueScan(ctx, nil, models.ScanReasonScheduled)
			if err != nil {
				w.log.Err(err).Error("schedule scan error")
			}
			timer.Reset(duration)
		}
	}
}

func (w *Worker) processJobs() {
	for {
		select {
		case <-w.shutdown:
			w.doneProcessing <- struct{}{}
			return
		case job := <-w.queue:
			// Prep the context to be passed down to the process function.
			id, err := uuid.NewRandom()
			if err != nil {
				w.log.Err(err).Error("new uuid error")
				continue
			}
			log := w.log.ID(id.String()).Root(logger.Data{"job_id": job.ID, "type": job.Type, "process_id": processID})
			ctx := log.WithContext(w.baseCtx)

			// Update job to be in progress and claimed by this process.
			job.Status = models.JobStatusInProgress
			job.ProcessID = &processID

			err = w.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{
				Columns: []string{"status", "process_id"},
			})
			if err != nil {
				log.Err(err).Error("update job error")
				continue
			}

			// Find and invoke the appropriate process function.
			fn, ok := w.processFuncs[job.Type]
			if !ok {
				log.Error("can't find process function for type")
				continue
			}
			err = fn(ctx, job)
			if err != nil {
				log.Err(err).Error("process error")

				job.Status = models.JobStatusFailed
				err = w.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{
					Columns: []string{"status"},
				})
				if err != nil {
					log.Err(err).Error("update job error")
				}
				continue
			}

			// Update job to be completed so that it's not picked up anymore.
			job.Status = models.JobStatusCompleted

			err = w.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{
				Columns: []string{"status"},
			})
			if err != nil {
				log.Err(err).Error("update job error")
				continue
			}
		}
	}
}

func (w *Worker) Shutdown() {
	close(w.shutdown)
	w.cancel()

	<-w.doneFetching
	<-w.doneScheduling
	for i := 0; i < w.config.WorkerProcesses; i++ {
		<-w.doneProcessing
	}
}

// Revalidate queues a whole-catalog scan. Structural mutations request this
// through their follow-up when a refresh was asked for.
func (w *Worker) Revalidate(ctx context.Context) error {
	return w.enqueueScan(ctx, nil, models.ScanReasonStructureChange)
}

// handleEvent reacts to debounced monitor activity by queueing a scan of the
// affected library. Activity under the managed root can touch any folder, so
// it queues a whole-catalog scan instead.
func (w *Worker) handleEvent(e events.Event) {
	change, ok := e.(events.PathChanged)
	if !ok {
		return
	}

	ctx := w.log.WithContext(context.Background())

	libraryID, matched, err := w.resolveChangedPath(ctx, change.Path)
	if err != nil {
		w.log.Err(err).Error("resolve changed path error")
		return
	}
	if !matched {
		w.log.Debug("change outside any library path", logger.Data{"path": change.Path})
		return
	}

	err = w.enqueueScan(ctx, libraryID, models.ScanReasonMonitorEvent)
	if err != nil {
		w.log.Err(err).Error("enqueue scan error")
	}
}

func (w *Worker) resolveChangedPath(ctx context.Context, path string) (*int, bool, error) {
	if path == w.config.LibraryRootDirectory {
		return nil, true, nil
	}

	allLibraries, err := w.libraryService.ListLibraries(ctx, libraries.ListLibrariesOptions{})
	if err != nil {
		return nil, false, err
	}

	for _, library := range allLibraries {
		for _, libraryPath := range library.LibraryPaths {
			if libraryPath.Filepath == path {
				id := library.ID
				return &id, true, nil
			}
		}
	}

	return nil, false, nil
}

// enqueueScan creates a pending scan job unless an active one already covers
// the same scope.
func (w *Worker) enqueueScan(ctx context.Context, libraryID *int, reason string) error {
	hasActive, err := w.jobService.HasActiveJob(ctx, models.JobTypeScan, libraryID)
	if err != nil {
		return err
	}
	if hasActive {
		logger.FromContext(ctx).Debug("scan already queued", logger.Data{"reason": reason})
		return nil
	}

	job := &models.Job{
		Type:       models.JobTypeScan,
		Status:     models.JobStatusPending,
		DataParsed: &models.JobScanData{Reason: reason},
		LibraryID:  libraryID,
	}
	return w.jobService.CreateJob(ctx, job)
}

const letterBytes = "abcdef0123456789"

func randStringBytes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.Intn(len(letterBytes))]
	}
	return string(b)
}
