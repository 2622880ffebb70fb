package library

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/mangabako/mangabako/pkg/models"
)

// DefaultUserID scopes requests that don't name a user. The server is
// single-tenant by default.
const DefaultUserID = "local"

type handler struct {
	libraryService *Service
}

func (h *handler) listManga(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListMangaQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	userID := DefaultUserID
	if params.UserID != nil {
		userID = *params.UserID
	}

	mangaList, err := h.libraryService.ListManga(ctx, ListMangaOptions{UserID: &userID})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, mangaList))
}

func (h *handler) createManga(c echo.Context) error {
	ctx := c.Request().Context()

	params := CreateMangaPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	manga := &models.Manga{
		Title:       params.Title,
		UserID:      DefaultUserID,
		Author:      params.Author,
		Description: params.Description,
	}
	if params.UserID != nil {
		manga.UserID = *params.UserID
	}
	if params.Status != nil {
		manga.Status = *params.Status
	}

	if err := h.libraryService.CreateManga(ctx, manga); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusCreated, manga))
}

func (h *handler) retrieveManga(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	manga, err := h.libraryService.RetrieveManga(ctx, RetrieveMangaOptions{
		ID:             &id,
		IncludeVolumes: true,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, manga))
}

func (h *handler) updateManga(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	params := UpdateMangaPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	manga, err := h.libraryService.RetrieveManga(ctx, RetrieveMangaOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	// Keep track of what's been changed
	opts := UpdateMangaOptions{Columns: []string{}}

	if params.Title != nil && *params.Title != manga.Title {
		manga.Title = *params.Title
		opts.Columns = append(opts.Columns, "title")
	}
	if params.Author != nil {
		manga.Author = params.Author
		opts.Columns = append(opts.Columns, "author")
	}
	if params.Description != nil {
		manga.Description = params.Description
		opts.Columns = append(opts.Columns, "description")
	}
	if params.Status != nil && *params.Status != manga.Status {
		manga.Status = *params.Status
		opts.Columns = append(opts.Columns, "status")
	}
	if params.CoverURL != nil {
		manga.CoverURL = params.CoverURL
		opts.Columns = append(opts.Columns, "cover_url")
	}

	if err := h.libraryService.UpdateManga(ctx, manga, opts); err != nil {
		return errors.WithStack(err)
	}

	manga, err = h.libraryService.RetrieveManga(ctx, RetrieveMangaOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, manga))
}

func (h *handler) deleteManga(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	manga, err := h.libraryService.RetrieveManga(ctx, RetrieveMangaOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	if err := h.libraryService.DeleteManga(ctx, manga); err != nil {
		return errors.WithStack(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *handler) mangaVolumes(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	// 404 for an unknown manga rather than an empty list.
	if _, err := h.libraryService.RetrieveManga(ctx, RetrieveMangaOptions{ID: &id}); err != nil {
		return errors.WithStack(err)
	}

	volumes, err := h.libraryService.ListVolumes(ctx, ListVolumesOptions{MangaID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, volumes))
}

func (h *handler) retrieveVolume(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	volume, err := h.libraryService.RetrieveVolume(ctx, RetrieveVolumeOptions{
		ID:           &id,
		IncludePages: true,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	for _, page := range volume.Pages {
		if err := page.UnmarshalTextBlocks(); err != nil {
			return errors.WithStack(err)
		}
	}

	return errors.WithStack(c.JSON(http.StatusOK, volume))
}

func (h *handler) updateVolume(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	params := UpdateVolumePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	volume, err := h.libraryService.RetrieveVolume(ctx, RetrieveVolumeOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	// Keep track of what's been changed
	opts := UpdateVolumeOptions{Columns: []string{}}

	if params.Title != nil && *params.Title != volume.Title {
		volume.Title = *params.Title
		opts.Columns = append(opts.Columns, "title")
	}
	if params.CoverURL != nil {
		volume.CoverURL = params.CoverURL
		opts.Columns = append(opts.Columns, "cover_url")
	}

	if len(opts.Columns) > 0 {
		if err := h.libraryService.UpdateVolume(ctx, volume, opts); err != nil {
			return errors.WithStack(err)
		}
	}

	if params.IsRead != nil {
		if err := h.libraryService.SetVolumeRead(ctx, volume.ID, *params.IsRead); err != nil {
			return errors.WithStack(err)
		}
	}

	volume, err = h.libraryService.RetrieveVolume(ctx, RetrieveVolumeOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, volume))
}

func (h *handler) deleteVolume(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	volume, err := h.libraryService.RetrieveVolume(ctx, RetrieveVolumeOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	if err := h.libraryService.DeleteVolume(ctx, volume); err != nil {
		return errors.WithStack(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *handler) moveVolume(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	params := MoveVolumePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	volume, err := h.libraryService.RetrieveVolume(ctx, RetrieveVolumeOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	err = h.libraryService.MoveVolume(ctx, volume, MoveVolumeOptions{
		TargetMangaID: params.TargetMangaID,
		VolumeNumber:  params.VolumeNumber,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	volume, err = h.libraryService.RetrieveVolume(ctx, RetrieveVolumeOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, volume))
}

func (h *handler) volumePages(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if _, err := h.libraryService.RetrieveVolume(ctx, RetrieveVolumeOptions{ID: &id}); err != nil {
		return errors.WithStack(err)
	}

	pages, err := h.libraryService.ListPages(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, pages))
}

func (h *handler) markPageRead(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	page, err := h.libraryService.RetrievePage(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	if err := h.libraryService.MarkPageRead(ctx, page); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, page))
}
