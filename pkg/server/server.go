package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/uptrace/bun"

	"github.com/mangabako/mangabako/pkg/binder"
	"github.com/mangabako/mangabako/pkg/config"
	"github.com/mangabako/mangabako/pkg/errcodes"
	"github.com/mangabako/mangabako/pkg/ingest"
	"github.com/mangabako/mangabako/pkg/library"
	"github.com/mangabako/mangabako/pkg/progress"
	"github.com/mangabako/mangabako/pkg/queue"
	"github.com/mangabako/mangabako/pkg/storage"
)

func New(cfg *config.Config, db *bun.DB, store *storage.Manager, q *queue.Queue, hub *progress.Hub) (*http.Server, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	health.RegisterRoutes(e)

	libraryService := library.NewService(db, store)
	gate := ingest.NewGate(libraryService, store, q)

	library.RegisterRoutes(e, libraryService)
	ingest.RegisterRoutes(e, gate)
	progress.RegisterRoutes(e, hub)

	// Page images and covers are served straight off the storage tree.
	e.Static("/files", store.Root())

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
