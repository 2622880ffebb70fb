package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"

	"github.com/mangabako/mangabako/pkg/config"
	"github.com/mangabako/mangabako/pkg/database"
	"github.com/mangabako/mangabako/pkg/ingest"
	"github.com/mangabako/mangabako/pkg/library"
	"github.com/mangabako/mangabako/pkg/migrations"
	"github.com/mangabako/mangabako/pkg/progress"
	"github.com/mangabako/mangabako/pkg/queue"
	"github.com/mangabako/mangabako/pkg/server"
	"github.com/mangabako/mangabako/pkg/storage"
	"github.com/mangabako/mangabako/pkg/version"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting mangabako", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	if err := initStorageRoot(cfg.StorageRoot); err != nil {
		log.Err(err).Fatal("storage root error")
	}
	log.Info("storage root initialized", logger.Data{"path": cfg.StorageRoot})

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

	q := queue.New(cfg)
	if err := q.Ping(ctx); err != nil {
		log.Err(err).Fatal("queue connection error")
	}
	log.Info("queue connected", logger.Data{"addr": cfg.RedisAddr})

	store, err := storage.New(cfg.StorageRoot, cfg.BaseURL)
	if err != nil {
		log.Err(err).Fatal("storage error")
	}
	libraryService := library.NewService(db, store)
	finalizer := ingest.NewFinalizer(libraryService, store, q)
	hub := progress.NewHub()
	broadcaster := progress.NewBroadcaster(db, hub, finalizer)

	progressCtx, cancelProgress := context.WithCancel(ctx)
	events, err := q.SubscribeProgress(progressCtx)
	if err != nil {
		cancelProgress()
		log.Err(err).Fatal("progress subscription error")
	}
	go broadcaster.Run(progressCtx, events)
	log.Info("progress broadcaster started")

	srv, err := server.New(cfg, db, store, q, hub)
	if err != nil {
		cancelProgress()
		log.Err(err).Fatal("server error")
	}

	graceful := signals.Setup()

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
		lc := net.ListenConfig{}
		listener, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			log.Err(err).Fatal("failed to bind port")
		}

		actualPort := listener.Addr().(*net.TCPAddr).Port
		log.Info("server started", logger.Data{"port": actualPort})

		err = srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
		log.Info("server stopped")
	}()

	<-graceful
	log.Info("starting graceful shutdown")

	err = srv.Shutdown(ctx)
	if err != nil {
		log.Err(err).Error("server shutdown error")
	}
	log.Info("server shutdown")

	cancelProgress()
	if err := q.Close(); err != nil {
		log.Err(err).Error("queue close error")
	}
	log.Info("queue closed")

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}

// initStorageRoot creates the storage tree and verifies write permissions.
func initStorageRoot(dir string) error {
	if err := os.MkdirAll(filepath.Join(dir, "manga"), 0755); err != nil {
		return errors.Wrapf(err, "failed to create storage directory: %s", dir)
	}

	testFile := filepath.Join(dir, ".write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return errors.Wrapf(err, "storage root is not writable: %s", dir)
	}
	f.Close()

	if err := os.Remove(testFile); err != nil {
		return errors.Wrapf(err, "failed to clean up write test file: %s", testFile)
	}

	return nil
}
