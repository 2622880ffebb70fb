package ingest

import (
	"io"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/mangabako/mangabako/pkg/errcodes"
	"github.com/mangabako/mangabako/pkg/models"
)

type handler struct {
	gate *Gate
}

func (h *handler) upload(c echo.Context) error {
	ctx := c.Request().Context()

	params := UploadVolumePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	fh := params.FormFiles["file"]
	if fh == nil {
		return errcodes.ValidationError("An archive file is required.")
	}

	src, err := fh.Open()
	if err != nil {
		return errors.WithStack(err)
	}
	defer src.Close()

	// Spool the upload to disk; classification needs random access.
	tmp, err := os.CreateTemp("", "upload-*.zip")
	if err != nil {
		return errors.WithStack(err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, src); err != nil {
		return errors.WithStack(err)
	}
	if err := tmp.Close(); err != nil {
		return errors.WithStack(err)
	}

	opts := UploadOptions{
		ArchivePath:  tmp.Name(),
		Filename:     fh.Filename,
		Title:        params.Title,
		VolumeNumber: params.VolumeNumber,
	}
	if params.UserID != nil {
		opts.UserID = *params.UserID
	}

	result, err := h.gate.IngestUpload(ctx, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	code := http.StatusCreated
	if result.Status == models.VolumeStatusProcessing {
		code = http.StatusAccepted
	}
	return errors.WithStack(c.JSON(code, result))
}

func (h *handler) processingStatus(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	status, err := h.gate.ProcessingStatus(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, status))
}
