package libraries

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/strataserver/strata/pkg/errcodes"
	"github.com/strataserver/strata/pkg/models"
	"github.com/uptrace/bun"
)

type RetrieveLibraryOptions struct {
	ID             *int
	Name           *string
	IncludeDeleted bool
}

type ListLibrariesOptions struct {
	Limit          *int
	Offset         *int
	IncludeDeleted bool

	includeTotal bool
}

type UpdateLibraryOptions struct {
	Columns []string
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) CreateLibrary(ctx context.Context, library *models.Library) error {
	now := time.Now()
	if library.CreatedAt.IsZero() {
		library.CreatedAt = now
	}
	library.UpdatedAt = library.CreatedAt

	// The options blob is stored verbatim; it's already JSON.
	if library.Options == "" && library.OptionsParsed != nil {
		library.Options = string(library.OptionsParsed)
	}

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		// Library names become directory names, and those collide
		// case-insensitively on some filesystems.
		exists, err := tx.
			NewSelect().
			Model((*models.Library)(nil)).
			Where("name = ? COLLATE NOCASE", library.Name).
			Where("deleted_at IS NULL").
			Exists(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if exists {
			return errcodes.ValidationError(fmt.Sprintf("A library named %q already exists.", library.Name))
		}

		_, err = tx.
			NewInsert().
			Model(library).
			Returning("*").
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		for _, path := range library.LibraryPaths {
			path.LibraryID = library.ID
			path.CreatedAt = library.CreatedAt
			path.UpdatedAt = library.CreatedAt
		}

		if len(library.LibraryPaths) > 0 {
			_, err := tx.
				NewInsert().
				Model(&library.LibraryPaths).
				Returning("*").
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}

		return nil
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// NameInUse reports whether a live library other than excludeID already uses
// the name. The comparison is case-insensitive because library names become
// directory names.
func (svc *Service) NameInUse(ctx context.Context, name string, excludeID int) (bool, error) {
	q := svc.db.
		NewSelect().
		Model((*models.Library)(nil)).
		Where("name = ? COLLATE NOCASE", name).
		Where("deleted_at IS NULL")

	if excludeID != 0 {
		q = q.Where("id != ?", excludeID)
	}

	exists, err := q.Exists(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}

	return exists, nil
}

func (svc *Service) RetrieveLibrary(ctx context.Context, opts RetrieveLibraryOptions) (*models.Library, error) {
	library := &models.Library{}

	q := svc.db.
		NewSelect().
		Model(library).
		Column("l.*").
		Relation("LibraryPaths", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("filepath ASC")
		}).
		Group("l.id")

	if opts.ID != nil {
		q = q.Where("l.id = ?", *opts.ID)
	}
	if opts.Name != nil {
		q = q.Where("l.name = ?", *opts.Name)
	}
	if !opts.IncludeDeleted {
		q = q.Where("deleted_at IS NULL")
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Library")
		}
		return nil, errors.WithStack(err)
	}

	library.UnmarshalOptions()

	return library, nil
}

func (svc *Service) ListLibraries(ctx context.Context, opts ListLibrariesOptions) ([]*models.Library, error) {
	l, _, err := svc.listLibrariesWithTotal(ctx, opts)
	return l, errors.WithStack(err)
}

func (svc *Service) ListLibrariesWithTotal(ctx context.Context, opts ListLibrariesOptions) ([]*models.Library, int, error) {
	opts.includeTotal = true
	return svc.listLibrariesWithTotal(ctx, opts)
}

func (svc *Service) listLibrariesWithTotal(ctx context.Context, opts ListLibrariesOptions) ([]*models.Library, int, error) {
	libraries := []*models.Library{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&libraries).
		Column("l.*").
		Relation("LibraryPaths", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("filepath ASC")
		}).
		Group("l.id").
		Order("l.name ASC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if !opts.IncludeDeleted {
		q = q.Where("deleted_at IS NULL")
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	for _, library := range libraries {
		library.UnmarshalOptions()
	}

	return libraries, total, nil
}

func (svc *Service) UpdateLibrary(ctx context.Context, library *models.Library, opts UpdateLibraryOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	// Update updated_at.
	now := time.Now()
	library.UpdatedAt = now
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(library).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errcodes.NotFound("Library")
		}
		return errors.WithStack(err)
	}

	return nil
}

// UpdateLibraryOptions replaces the stored options blob for a library.
func (svc *Service) UpdateLibraryOptions(ctx context.Context, id int, options string) error {
	library, err := svc.RetrieveLibrary(ctx, RetrieveLibraryOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	library.Options = options

	err = svc.UpdateLibrary(ctx, library, UpdateLibraryOptions{Columns: []string{"options"}})
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) DeleteLibrary(ctx context.Context, library *models.Library) error {
	now := time.Now()

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		library.DeletedAt = &now
		library.UpdatedAt = now

		_, err := tx.
			NewUpdate().
			Model(library).
			Column("deleted_at", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		// Path mappings and cataloged files don't outlive the library; only
		// the library row itself sticks around as a tombstone.
		_, err = tx.
			NewDelete().
			Model((*models.LibraryPath)(nil)).
			Where("library_id = ?", library.ID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = tx.
			NewDelete().
			Model((*models.MediaFile)(nil)).
			Where("library_id = ?", library.ID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		return nil
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) AddLibraryPath(ctx context.Context, library *models.Library, path *models.LibraryPath) error {
	exists, err := svc.db.
		NewSelect().
		Model((*models.LibraryPath)(nil)).
		Where("library_id = ?", library.ID).
		Where("filepath = ?", path.Filepath).
		Exists(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if exists {
		return errcodes.ValidationError(fmt.Sprintf("The path %q is already part of this library.", path.Filepath))
	}

	now := time.Now()
	path.LibraryID = library.ID
	if path.CreatedAt.IsZero() {
		path.CreatedAt = now
	}
	path.UpdatedAt = path.CreatedAt

	_, err = svc.db.
		NewInsert().
		Model(path).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// UpdateLibraryPath updates the mutable fields of an existing path mapping.
// The filepath itself is the identity of the mapping and never changes.
func (svc *Service) UpdateLibraryPath(ctx context.Context, library *models.Library, path *models.LibraryPath) error {
	existing := &models.LibraryPath{}

	err := svc.db.
		NewSelect().
		Model(existing).
		Where("library_id = ?", library.ID).
		Where("filepath = ?", path.Filepath).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errcodes.ValidationError(fmt.Sprintf("The path %q is not part of this library.", path.Filepath))
		}
		return errors.WithStack(err)
	}

	existing.NetworkPath = path.NetworkPath
	existing.UpdatedAt = time.Now()

	_, err = svc.db.
		NewUpdate().
		Model(existing).
		Column("network_path", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) RemoveLibraryPath(ctx context.Context, library *models.Library, filepath string) error {
	res, err := svc.db.
		NewDelete().
		Model((*models.LibraryPath)(nil)).
		Where("library_id = ?", library.ID).
		Where("filepath = ?", filepath).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if affected == 0 {
		return errcodes.ValidationError(fmt.Sprintf("The path %q is not part of this library.", filepath))
	}

	return nil
}
