package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/strataserver/strata/pkg/config"
	"github.com/strataserver/strata/pkg/database"
	"github.com/strataserver/strata/pkg/events"
	"github.com/strataserver/strata/pkg/libraries"
	"github.com/strataserver/strata/pkg/migrations"
	"github.com/strataserver/strata/pkg/monitor"
	"github.com/strataserver/strata/pkg/server"
	"github.com/strataserver/strata/pkg/structure"
	"github.com/strataserver/strata/pkg/version"
	"github.com/strataserver/strata/pkg/worker"
	"github.com/uptrace/bun"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting strata", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	if err := initDirectories(cfg); err != nil {
		log.Err(err).Fatal("directory error")
	}

	// Two instances mutating the same registry and managed root would race
	// each other, so the data directory is locked for the process lifetime.
	lock := flock.New(filepath.Join(cfg.DataDirectory, "strata.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		log.Err(err).Fatal("data directory lock error")
	}
	if !locked {
		log.Fatal("data directory is locked by another instance", logger.Data{"path": lock.Path()})
	}
	defer lock.Unlock() //nolint:errcheck

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	bus := events.New(log)

	mon := monitor.New(cfg, log, bus)
	wrkr := worker.New(cfg, db, mon, bus)
	structureService := structure.NewService(cfg, db, mon, wrkr, bus)

	srv, err := server.New(cfg, db, structureService)
	if err != nil {
		log.Err(err).Fatal("server error")
	}

	watchPaths, err := collectWatchPaths(ctx, cfg, db)
	if err != nil {
		log.Err(err).Fatal("watch path error")
	}
	err = mon.Start(watchPaths)
	if err != nil {
		log.Err(err).Fatal("monitor error")
	}
	log.Info("monitor started", logger.Data{"paths": len(watchPaths)})

	graceful := signals.Setup()

	go func() {
		lc := net.ListenConfig{}
		listener, err := lc.Listen(ctx, "tcp", srv.Addr)
		if err != nil {
			log.Err(err).Fatal("failed to bind port")
		}

		// Extract actual port (useful when ServerPort is 0)
		actualPort := listener.Addr().(*net.TCPAddr).Port
		log.Info("server started", logger.Data{"port": actualPort})

		// Write port file for Vite to read
		if err := writePortFile(actualPort); err != nil {
			log.Err(err).Error("failed to write port file")
		}

		err = srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
		log.Info("server stopped")
	}()

	wrkr.Start()
	log.Info("worker started")

	<-graceful
	log.Info("starting graceful shutdown")

	err = srv.Shutdown(ctx)
	if err != nil {
		log.Err(err).Error("server shutdown error")
	}
	log.Info("server shutdown")

	wrkr.Shutdown()
	log.Info("worker shutdown")

	mon.Shutdown()
	log.Info("monitor shutdown")

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}

// initDirectories creates the data directory and the managed library root,
// and verifies the data directory is writable.
func initDirectories(cfg *config.Config) error {
	for _, dir := range []string{cfg.DataDirectory, cfg.LibraryRootDirectory} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create directory: %s", dir)
		}
	}

	// Verify write permissions by creating and removing a temp file
	testFile := filepath.Join(cfg.DataDirectory, ".write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return errors.Wrapf(err, "data directory is not writable: %s", cfg.DataDirectory)
	}
	f.Close()

	if err := os.Remove(testFile); err != nil {
		return errors.Wrapf(err, "failed to clean up write test file: %s", testFile)
	}

	return nil
}

// collectWatchPaths gathers the managed library root plus every registered
// media path so the monitor covers them from the start.
func collectWatchPaths(ctx context.Context, cfg *config.Config, db *bun.DB) ([]string, error) {
	libraryService := libraries.NewService(db)

	allLibraries, err := libraryService.ListLibraries(ctx, libraries.ListLibrariesOptions{})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	paths := []string{cfg.LibraryRootDirectory}
	for _, library := range allLibraries {
		for _, libraryPath := range library.LibraryPaths {
			paths = append(paths, libraryPath.Filepath)
		}
	}
	return paths, nil
}

// writePortFile writes the server's actual port to tmp/api.port for frontend dev server.
// Skips silently if tmp/ directory doesn't exist (e.g., in Docker).
func writePortFile(port int) error {
	if _, err := os.Stat("tmp"); os.IsNotExist(err) {
		return nil
	}
	return os.WriteFile("tmp/api.port", []byte(strconv.Itoa(port)), 0600)
}
