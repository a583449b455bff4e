package structure

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/strataserver/strata/pkg/config"
	"github.com/strataserver/strata/pkg/errcodes"
	"github.com/strataserver/strata/pkg/events"
	"github.com/strataserver/strata/pkg/libraries"
	"github.com/strataserver/strata/pkg/models"
	"github.com/uptrace/bun"
)

// Pauser controls the filesystem monitor around structural mutations.
type Pauser interface {
	Pause()
	Resume()
}

// Revalidator requests a full rescan of the library catalog.
type Revalidator interface {
	Revalidate(ctx context.Context) error
}

type AddFolderOptions struct {
	Name           string
	CollectionType *string
	Paths          []string
	LibraryOptions string
	RefreshLibrary bool
}

// MediaPathInfo is one physical directory plus optional network metadata.
type MediaPathInfo struct {
	Path        string
	NetworkPath *string
}

// Service coordinates structural changes to the library: creating, renaming,
// and removing folders, and editing their media path sets. Every mutation
// that touches disk or the watched path set runs with the monitor paused and
// finishes by scheduling a follow-up, either a full rescan or a delayed
// monitor resume.
type Service struct {
	config      *config.Config
	registry    *libraries.Service
	resolver    *Resolver
	mover       *Mover
	pauser      Pauser
	revalidator Revalidator
	bus         *events.Bus

	// mu serializes structural mutations. Concurrent mutations would race
	// each other's pause/resume cycles on the shared monitor.
	mu         sync.Mutex
	pauseEpoch uint64
}

func NewService(cfg *config.Config, db *bun.DB, pauser Pauser, revalidator Revalidator, bus *events.Bus) *Service {
	resolver := NewResolver(cfg.LibraryRootDirectory)

	return &Service{
		config:      cfg,
		registry:    libraries.NewService(db),
		resolver:    resolver,
		mover:       NewMover(resolver),
		pauser:      pauser,
		revalidator: revalidator,
		bus:         bus,
	}
}

// ListFolders returns all library folders ordered by name.
func (svc *Service) ListFolders(ctx context.Context) ([]*models.Library, error) {
	l, err := svc.registry.ListLibraries(ctx, libraries.ListLibrariesOptions{})
	return l, errors.WithStack(err)
}

func (svc *Service) AddFolder(ctx context.Context, opts AddFolderOptions) (*models.Library, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if err := validateFolderName(opts.Name); err != nil {
		return nil, err
	}
	for _, p := range opts.Paths {
		if err := validateMediaPath(p); err != nil {
			return nil, err
		}
	}

	inUse, err := svc.registry.NameInUse(ctx, opts.Name, 0)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	folderPath := svc.resolver.FolderPath(opts.Name)
	if inUse || svc.resolver.Exists(folderPath) {
		return nil, errcodes.ValidationError(fmt.Sprintf("A library named %q already exists.", opts.Name))
	}

	svc.pause()
	defer svc.scheduleFollowUp(ctx, opts.RefreshLibrary)

	if err := svc.mover.CreateFolder(folderPath); err != nil {
		return nil, err
	}

	library := &models.Library{
		Name:           opts.Name,
		CollectionType: opts.CollectionType,
		Options:        opts.LibraryOptions,
		LibraryPaths:   make([]*models.LibraryPath, 0, len(opts.Paths)),
	}
	for _, p := range opts.Paths {
		library.LibraryPaths = append(library.LibraryPaths, &models.LibraryPath{
			Filepath: p,
		})
	}

	if err := svc.registry.CreateLibrary(ctx, library); err != nil {
		// Best-effort rollback of the directory created above.
		if rmErr := os.Remove(folderPath); rmErr != nil {
			logger.FromContext(ctx).Warn("folder rollback error", logger.Data{"path": folderPath, "error": rmErr.Error()})
		}
		return nil, errors.WithStack(err)
	}

	svc.bus.Publish(events.FolderAdded{Folder: opts.Name, Paths: opts.Paths})

	library, err = svc.registry.RetrieveLibrary(ctx, libraries.RetrieveLibraryOptions{ID: &library.ID})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return library, nil
}

func (svc *Service) RemoveFolder(ctx context.Context, name string, refreshLibrary bool) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if err := validateFolderName(name); err != nil {
		return err
	}

	library, err := svc.registry.RetrieveLibrary(ctx, libraries.RetrieveLibraryOptions{Name: &name})
	if err != nil {
		return errors.WithStack(err)
	}

	svc.pause()
	defer svc.scheduleFollowUp(ctx, refreshLibrary)

	if err := svc.mover.RemoveFolder(svc.resolver.FolderPath(name)); err != nil {
		return err
	}

	if err := svc.registry.DeleteLibrary(ctx, library); err != nil {
		return errors.WithStack(err)
	}

	svc.bus.Publish(events.FolderRemoved{Folder: name, Paths: libraryPathStrings(library)})

	return nil
}

func (svc *Service) RenameFolder(ctx context.Context, name, newName string, refreshLibrary bool) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if err := validateFolderName(name); err != nil {
		return err
	}
	if err := validateFolderName(newName); err != nil {
		return err
	}

	library, err := svc.registry.RetrieveLibrary(ctx, libraries.RetrieveLibraryOptions{Name: &name})
	if err != nil {
		return errors.WithStack(err)
	}

	current := svc.resolver.FolderPath(name)
	target := svc.resolver.FolderPath(newName)

	// NotFound and Conflict are decided before the monitor is ever paused.
	if err := svc.mover.CheckMove(current, target); err != nil {
		return err
	}
	inUse, err := svc.registry.NameInUse(ctx, newName, library.ID)
	if err != nil {
		return errors.WithStack(err)
	}
	if inUse {
		return errcodes.Conflict(fmt.Sprintf("A library named %q already exists.", newName))
	}

	svc.pause()
	defer svc.scheduleFollowUp(ctx, refreshLibrary)

	if err := svc.mover.Move(current, target); err != nil {
		return err
	}

	library.Name = newName
	if err := svc.registry.UpdateLibrary(ctx, library, libraries.UpdateLibraryOptions{Columns: []string{"name"}}); err != nil {
		return errors.WithStack(err)
	}

	svc.bus.Publish(events.FolderRenamed{
		OldFolder: name,
		NewFolder: newName,
		OldPath:   current,
		NewPath:   target,
	})

	return nil
}

func (svc *Service) AddPath(ctx context.Context, name string, info MediaPathInfo, refreshLibrary bool) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if err := validateFolderName(name); err != nil {
		return err
	}
	if err := validateMediaPath(info.Path); err != nil {
		return err
	}

	library, err := svc.registry.RetrieveLibrary(ctx, libraries.RetrieveLibraryOptions{Name: &name})
	if err != nil {
		return errors.WithStack(err)
	}

	for _, p := range library.LibraryPaths {
		if p.Filepath == info.Path {
			return errcodes.ValidationError(fmt.Sprintf("The path %q is already part of this library.", info.Path))
		}
	}

	svc.pause()
	defer svc.scheduleFollowUp(ctx, refreshLibrary)

	path := &models.LibraryPath{
		Filepath:    info.Path,
		NetworkPath: info.NetworkPath,
	}
	if err := svc.registry.AddLibraryPath(ctx, library, path); err != nil {
		return errors.WithStack(err)
	}

	svc.bus.Publish(events.MediaPathAdded{Folder: name, Path: info.Path})

	return nil
}

// UpdatePath edits the metadata of an existing media path. Only metadata
// changes here, so there's nothing for the monitor or the scanner to react
// to and the pause/follow-up cycle is skipped.
func (svc *Service) UpdatePath(ctx context.Context, name string, info MediaPathInfo) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if err := validateFolderName(name); err != nil {
		return err
	}
	if strings.TrimSpace(info.Path) == "" {
		return errcodes.ValidationError("Media path can't be blank.")
	}

	library, err := svc.registry.RetrieveLibrary(ctx, libraries.RetrieveLibraryOptions{Name: &name})
	if err != nil {
		return errors.WithStack(err)
	}

	path := &models.LibraryPath{
		Filepath:    info.Path,
		NetworkPath: info.NetworkPath,
	}
	if err := svc.registry.UpdateLibraryPath(ctx, library, path); err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) RemovePath(ctx context.Context, name, path string, refreshLibrary bool) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if err := validateFolderName(name); err != nil {
		return err
	}
	if strings.TrimSpace(path) == "" {
		return errcodes.ValidationError("Media path can't be blank.")
	}

	library, err := svc.registry.RetrieveLibrary(ctx, libraries.RetrieveLibraryOptions{Name: &name})
	if err != nil {
		return errors.WithStack(err)
	}

	found := false
	for _, p := range library.LibraryPaths {
		if p.Filepath == path {
			found = true
			break
		}
	}
	if !found {
		return errcodes.ValidationError(fmt.Sprintf("The path %q is not part of this library.", path))
	}

	svc.pause()
	defer svc.scheduleFollowUp(ctx, refreshLibrary)

	if err := svc.registry.RemoveLibraryPath(ctx, library, path); err != nil {
		return errors.WithStack(err)
	}

	svc.bus.Publish(events.MediaPathRemoved{Folder: name, Path: path})

	return nil
}

// UpdateOptions replaces a library's options blob. Options are opaque to the
// server: they are stored and returned verbatim, never interpreted.
func (svc *Service) UpdateOptions(ctx context.Context, id int, options string) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	return errors.WithStack(svc.registry.UpdateLibraryOptions(ctx, id, options))
}

// pause stops the monitor and stamps this mutation as the current owner of
// the paused state. Delayed resumes from older mutations check the stamp so
// they don't resume the monitor out from under a newer mutation.
func (svc *Service) pause() {
	svc.pauser.Pause()
	svc.pauseEpoch++
}

func libraryPathStrings(library *models.Library) []string {
	paths := make([]string, 0, len(library.LibraryPaths))
	for _, p := range library.LibraryPaths {
		paths = append(paths, p.Filepath)
	}
	return paths
}
