package joblogs

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"

	"github.com/strataserver/strata/pkg/jobs"
)

func RegisterRoutes(e *echo.Echo, db *bun.DB) {
	jobLogService := NewService(db)
	jobService := jobs.NewService(db)

	h := &handler{
		jobLogService: jobLogService,
		jobService:    jobService,
	}

	e.GET("/jobs/:id/logs", h.listLogs)
}
