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
	"github.com/strataserver/strata/pkg/binder"
	"github.com/strataserver/strata/pkg/config"
	"github.com/strataserver/strata/pkg/errcodes"
	"github.com/strataserver/strata/pkg/filesystem"
	"github.com/strataserver/strata/pkg/joblogs"
	"github.com/strataserver/strata/pkg/jobs"
	"github.com/strataserver/strata/pkg/structure"
	"github.com/uptrace/bun"
)

func New(cfg *config.Config, db *bun.DB, structureService *structure.Service) (*http.Server, error) {
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

	structure.RegisterRoutes(e, structureService)
	jobs.RegisterRoutes(e, db)
	joblogs.RegisterRoutes(e, db)
	filesystem.RegisterRoutes(e)

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
