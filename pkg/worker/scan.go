package worker

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"

	"github.com/strataserver/strata/pkg/joblogs"
	"github.com/strataserver/strata/pkg/jobs"
	"github.com/strataserver/strata/pkg/libraries"
	"github.com/strataserver/strata/pkg/models"
)

// Extensions the scan catalogs without sniffing the file contents. Anything
// not listed here is handed to mimetype detection and kept if it turns out to
// be audio, video, or an image.
var mediaTypesByExtension = map[string]string{
	".avi":  "video/x-msvideo",
	".flac": "audio/flac",
	".jpeg": "image/jpeg",
	".jpg":  "image/jpeg",
	".m4a":  "audio/mp4",
	".m4v":  "video/mp4",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	".mp3":  "audio/mpeg",
	".mp4":  "video/mp4",
	".ogg":  "audio/ogg",
	".png":  "image/png",
	".ts":   "video/mp2t",
	".wav":  "audio/wav",
	".webm": "video/webm",
}

var sniffedTypePrefixes = []string{"audio/", "video/", "image/"}

func (w *Worker) ProcessScanJob(ctx context.Context, job *models.Job) error {
	log := logger.FromContext(ctx)
	log.Info("processing scan job")

	jobLog := w.jobLogService.NewJobLogger(ctx, job.ID, log)

	librariesToScan, err := w.librariesForJob(ctx, job)
	if err != nil {
		jobLog.Error("resolve scan scope error", err, nil)
		return errors.WithStack(err)
	}

	log.Info("processing libraries", logger.Data{"count": len(librariesToScan)})

	// The monitor stays quiet while the scan rewrites the catalog; activity
	// the scan itself causes would only schedule another scan.
	w.pauser.Pause()
	defer w.pauser.Resume()

	for i, library := range librariesToScan {
		err := w.scanLibrary(ctx, jobLog, library)
		if err != nil {
			jobLog.Error("scan library error", err, logger.Data{"library": library.Name})
			return errors.WithStack(err)
		}

		job.Progress = (i + 1) * 100 / len(librariesToScan)
		err = w.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{Columns: []string{"progress"}})
		if err != nil {
			return errors.WithStack(err)
		}
	}

	jobLog.Info("finished scan job", logger.Data{"libraries": len(librariesToScan)})
	return nil
}

func (w *Worker) librariesForJob(ctx context.Context, job *models.Job) ([]*models.Library, error) {
	if job.LibraryID != nil {
		library, err := w.libraryService.RetrieveLibrary(ctx, libraries.RetrieveLibraryOptions{ID: job.LibraryID})
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return []*models.Library{library}, nil
	}

	allLibraries, err := w.libraryService.ListLibraries(ctx, libraries.ListLibrariesOptions{})
	return allLibraries, errors.WithStack(err)
}

func (w *Worker) scanLibrary(ctx context.Context, jobLog *joblogs.JobLogger, library *models.Library) error {
	scanStart := time.Now()
	found := 0

	jobLog.Info("scanning library", logger.Data{"library": library.Name, "paths": len(library.LibraryPaths)})

	for _, libraryPath := range library.LibraryPaths {
		err := filepath.WalkDir(libraryPath.Filepath, func(path string, entry fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				// An unreadable media path shouldn't sink the whole scan;
				// record it and keep walking.
				jobLog.Warn("walk error", logger.Data{"path": path, "error": err.Error()})
				if entry != nil && entry.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if entry.IsDir() {
				if strings.HasPrefix(entry.Name(), ".") && path != libraryPath.Filepath {
					return fs.SkipDir
				}
				return nil
			}

			mediaType, ok := detectMediaType(path)
			if !ok {
				return nil
			}

			info, err := entry.Info()
			if err != nil {
				jobLog.Warn("stat error", logger.Data{"path": path, "error": err.Error()})
				return nil
			}

			err = w.mediaFileService.UpsertMediaFile(ctx, &models.MediaFile{
				LibraryID: library.ID,
				Filepath:  path,
				SizeBytes: info.Size(),
				MediaType: mediaType,
			})
			if err != nil {
				return errors.WithStack(err)
			}

			found++
			return nil
		})
		if err != nil {
			return errors.WithStack(err)
		}
	}

	pruned, err := w.mediaFileService.PruneMediaFiles(ctx, library.ID, scanStart)
	if err != nil {
		return errors.WithStack(err)
	}

	jobLog.Info("library scanned", logger.Data{"library": library.Name, "files": found, "pruned": pruned})
	return nil
}

// detectMediaType reports the MIME type to catalog a file under, or false
// when the file isn't media.
func detectMediaType(path string) (string, bool) {
	if mediaType, ok := mediaTypesByExtension[strings.ToLower(filepath.Ext(path))]; ok {
		return mediaType, true
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", false
	}
	for _, prefix := range sniffedTypePrefixes {
		if strings.HasPrefix(mtype.String(), prefix) {
			return mtype.String(), true
		}
	}

	return "", false
}
