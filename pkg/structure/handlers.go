package structure

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/strataserver/strata/pkg/models"
)

type handler struct {
	structureService *Service
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	folders, err := h.structureService.ListFolders(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Folders []*models.Library `json:"folders"`
		Total   int               `json:"total"`
	}{folders, len(folders)}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) addFolder(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := AddFolderPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	library, err := h.structureService.AddFolder(ctx, AddFolderOptions{
		Name:           params.Name,
		CollectionType: params.CollectionType,
		Paths:          params.Paths,
		LibraryOptions: string(params.LibraryOptions),
		RefreshLibrary: params.RefreshLibrary,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, library))
}

func (h *handler) removeFolder(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := RemoveFolderQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	err := h.structureService.RemoveFolder(ctx, params.Name, params.RefreshLibrary)
	if err != nil {
		return errors.WithStack(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *handler) renameFolder(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := RenameFolderPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	err := h.structureService.RenameFolder(ctx, params.Name, params.NewName, params.RefreshLibrary)
	if err != nil {
		return errors.WithStack(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *handler) addPath(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := AddPathPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	info := MediaPathInfo{
		Path:        params.PathInfo.Path,
		NetworkPath: params.PathInfo.NetworkPath,
	}
	err := h.structureService.AddPath(ctx, params.Name, info, params.RefreshLibrary)
	if err != nil {
		return errors.WithStack(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *handler) updatePath(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := UpdatePathPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	info := MediaPathInfo{
		Path:        params.PathInfo.Path,
		NetworkPath: params.PathInfo.NetworkPath,
	}
	err := h.structureService.UpdatePath(ctx, params.Name, info)
	if err != nil {
		return errors.WithStack(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *handler) removePath(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := RemovePathQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	err := h.structureService.RemovePath(ctx, params.Name, params.Path, params.RefreshLibrary)
	if err != nil {
		return errors.WithStack(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *handler) updateOptions(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := UpdateOptionsPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	err := h.structureService.UpdateOptions(ctx, params.ID, string(params.LibraryOptions))
	if err != nil {
		return errors.WithStack(err)
	}

	return c.NoContent(http.StatusNoContent)
}
