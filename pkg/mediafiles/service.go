package mediafiles

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"github.com/strataserver/strata/pkg/errcodes"
	"github.com/strataserver/strata/pkg/models"
)

type ListMediaFilesOptions struct {
	Limit     *int
	Offset    *int
	LibraryID *int

	includeTotal bool
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// UpsertMediaFile records a discovered file. When the file is already
// cataloged its size, detected type, and updated_at are refreshed, which is
// what lets PruneMediaFiles tell survivors from leftovers.
func (svc *Service) UpsertMediaFile(ctx context.Context, file *models.MediaFile) error {
	now := time.Now()
	if file.CreatedAt.IsZero() {
		file.CreatedAt = now
	}
	file.UpdatedAt = now

	_, err := svc.db.
		NewInsert().
		Model(file).
		On("CONFLICT (filepath, library_id) DO UPDATE").
		Set("updated_at = EXCLUDED.updated_at").
		Set("size_bytes = EXCLUDED.size_bytes").
		Set("media_type = EXCLUDED.media_type").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) RetrieveMediaFile(ctx context.Context, libraryID int, path string) (*models.MediaFile, error) {
	file := &models.MediaFile{}

	err := svc.db.
		NewSelect().
		Model(file).
		Where("mf.library_id = ?", libraryID).
		Where("mf.filepath = ?", path).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Media file")
		}
		return nil, errors.WithStack(err)
	}

	return file, nil
}

func (svc *Service) ListMediaFiles(ctx context.Context, opts ListMediaFilesOptions) ([]*models.MediaFile, error) {
	f, _, err := svc.listMediaFilesWithTotal(ctx, opts)
	return f, errors.WithStack(err)
}

func (svc *Service) ListMediaFilesWithTotal(ctx context.Context, opts ListMediaFilesOptions) ([]*models.MediaFile, int, error) {
	opts.includeTotal = true
	return svc.listMediaFilesWithTotal(ctx, opts)
}

func (svc *Service) listMediaFilesWithTotal(ctx context.Context, opts ListMediaFilesOptions) ([]*models.MediaFile, int, error) {
	files := []*models.MediaFile{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&files).
		Order("mf.filepath ASC")

	if opts.LibraryID != nil {
		q = q.Where("mf.library_id = ?", *opts.LibraryID)
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return files, total, nil
}

// PruneMediaFiles deletes catalog rows a scan didn't touch. Every file the
// scan saw had its updated_at bumped by the upsert, so anything still older
// than the scan's start time is gone from disk.
func (svc *Service) PruneMediaFiles(ctx context.Context, libraryID int, before time.Time) (int, error) {
	res, err := svc.db.
		NewDelete().
		Model((*models.MediaFile)(nil)).
		Where("library_id = ?", libraryID).
		Where("updated_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, errors.WithStack(err)
	}

	return int(deleted), nil
}
