// Package ingest is the single entry point for volume uploads. It classifies
// each archive as ready (manifest plus images, imported synchronously) or raw
// (images only, handed to the OCR worker), and reconciles completed jobs back
// into the library.
package ingest

import (
	"archive/zip"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"

	"github.com/mangabako/mangabako/pkg/errcodes"
	"github.com/mangabako/mangabako/pkg/library"
	"github.com/mangabako/mangabako/pkg/manifest"
	"github.com/mangabako/mangabako/pkg/models"
	"github.com/mangabako/mangabako/pkg/naming"
	"github.com/mangabako/mangabako/pkg/queue"
	"github.com/mangabako/mangabako/pkg/storage"
)

// JobQueue is the slice of the queue the ingestion pipeline uses.
// *queue.Queue satisfies it.
type JobQueue interface {
	Enqueue(ctx context.Context, job *queue.Job) error
	Length(ctx context.Context) (int64, error)
	Result(ctx context.Context, jobID string) (*queue.Result, error)
}

type Gate struct {
	library *library.Service
	store   *storage.Manager
	queue   JobQueue
	log     logger.Logger
}

func NewGate(libraryService *library.Service, store *storage.Manager, q JobQueue) *Gate {
	return &Gate{
		library: libraryService,
		store:   store,
		queue:   q,
		log:     logger.New(),
	}
}

type UploadOptions struct {
	// ArchivePath is the absolute path of the uploaded archive on local disk.
	ArchivePath string
	// Filename is the name the archive was uploaded under, used for title and
	// volume number derivation.
	Filename string
	UserID   string
	// Title overrides the filename-derived title when set.
	Title *string
	// VolumeNumber overrides the filename-derived volume number when set.
	VolumeNumber *int
}

type UploadResult struct {
	MangaID   string  `json:"manga_id"`
	VolumeID  string  `json:"volume_id"`
	Status    string  `json:"status"`
	JobID     *string `json:"job_id,omitempty"`
	PageCount int     `json:"page_count,omitempty"`
}

// IngestUpload classifies and imports one uploaded archive. A ready archive
// (manifest paired with a folder of images) is imported synchronously; a raw
// archive is persisted and queued for the OCR worker. Re-uploading a volume
// that already exists replaces it.
func (g *Gate) IngestUpload(ctx context.Context, opts UploadOptions) (*UploadResult, error) {
	mt, err := mimetype.DetectFile(opts.ArchivePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !mt.Is("application/zip") {
		return nil, errcodes.UnsupportedMediaType()
	}

	zr, err := zip.OpenReader(opts.ArchivePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer zr.Close()

	// Validate the archive before touching the library. A rejected upload
	// must leave a previous import of the same volume intact.
	info := inspectArchive(&zr.Reader)
	var manifestPages []manifest.Page
	if info != nil {
		data, err := readEntry(info.Entry)
		if err != nil {
			return nil, err
		}
		manifestPages, err = manifest.Parse(data)
		if err != nil {
			return nil, errcodes.ValidationError(err.Error())
		}
	}

	stem := strings.TrimSuffix(path.Base(opts.Filename), path.Ext(opts.Filename))
	title := naming.ExtractTitle(stem)
	if opts.Title != nil && *opts.Title != "" {
		title = *opts.Title
	}
	volumeNumber := naming.ExtractVolumeNumber(stem)
	if opts.VolumeNumber != nil {
		volumeNumber = *opts.VolumeNumber
	}

	userID := opts.UserID
	if userID == "" {
		userID = library.DefaultUserID
	}

	manga, err := g.library.FindOrCreateManga(ctx, title, userID)
	if err != nil {
		return nil, err
	}

	volume, err := g.findOrResetVolume(ctx, manga, volumeNumber)
	if err != nil {
		return nil, err
	}

	if info != nil {
		return g.ingestReady(ctx, &zr.Reader, info, manifestPages, manga, volume)
	}
	return g.ingestRaw(ctx, opts, manga, volume)
}

// findOrResetVolume returns the volume slot for the given number, wiping the
// pages and storage of a previous import when the slot is occupied.
func (g *Gate) findOrResetVolume(ctx context.Context, manga *models.Manga, volumeNumber int) (*models.Volume, error) {
	volume, err := g.library.RetrieveVolume(ctx, library.RetrieveVolumeOptions{
		MangaID:      &manga.ID,
		VolumeNumber: &volumeNumber,
	})
	if err != nil {
		if !errors.Is(err, errcodes.NotFound("Volume")) {
			return nil, err
		}
		volume = &models.Volume{
			MangaID:      manga.ID,
			VolumeNumber: volumeNumber,
			Title:        fmt.Sprintf("Volume %d", volumeNumber),
			Status:       models.VolumeStatusUploaded,
		}
		if err := g.library.CreateVolume(ctx, volume); err != nil {
			return nil, err
		}
		return volume, nil
	}

	// Re-import: replace the previous contents.
	if err := g.library.DeletePages(ctx, volume.ID); err != nil {
		return nil, err
	}
	if volume.StoragePath != nil {
		if err := g.store.Delete(*volume.StoragePath, true); err != nil {
			g.log.Err(err).Warn("failed to clear volume storage for re-import", logger.Data{"volume_id": volume.ID})
		}
	}
	volume.Status = models.VolumeStatusUploaded
	volume.Progress = 0
	volume.IsRead = false
	volume.PageCount = 0
	volume.ProcessingMessage = nil
	err = g.library.UpdateVolume(ctx, volume, library.UpdateVolumeOptions{
		Columns: []string{"status", "progress", "is_read", "page_count", "processing_message"},
	})
	if err != nil {
		return nil, err
	}
	return volume, nil
}

func (g *Gate) ingestReady(ctx context.Context, zr *zip.Reader, info *archiveManifest, manifestPages []manifest.Page, manga *models.Manga, volume *models.Volume) (*UploadResult, error) {
	volumeDir := library.VolumeStoragePath(manga.ID, volume.VolumeNumber)
	if _, err := g.store.CreateDirectory(volumeDir); err != nil {
		return nil, err
	}

	// Missing images are dropped, never fatal. An archive where every image
	// is missing still completes, just with no pages.
	pages, err := g.importPages(ctx, zr, info.ImageDir, manifestPages, volume, volumeDir)
	if err != nil {
		return nil, err
	}

	coverURL, err := g.resolveCover(zr, volumeDir, pages)
	if err != nil {
		return nil, err
	}

	volume.Status = models.VolumeStatusCompleted
	volume.PageCount = len(pages)
	volume.StoragePath = &volumeDir
	volume.CoverURL = coverURL
	volume.Progress = 0
	volume.IsRead = false
	err = g.library.UpdateVolume(ctx, volume, library.UpdateVolumeOptions{
		Columns: []string{"status", "page_count", "storage_path", "cover_url", "progress", "is_read"},
	})
	if err != nil {
		return nil, err
	}

	if err := g.refreshManga(ctx, manga.ID, coverURL); err != nil {
		return nil, err
	}

	return &UploadResult{
		MangaID:   manga.ID,
		VolumeID:  volume.ID,
		Status:    models.VolumeStatusCompleted,
		PageCount: len(pages),
	}, nil
}

func (g *Gate) ingestRaw(ctx context.Context, opts UploadOptions, manga *models.Manga, volume *models.Volume) (*UploadResult, error) {
	archiveRel := fmt.Sprintf("manga/%s/archives/volume-%d.zip", manga.ID, volume.VolumeNumber)
	if err := g.store.Copy(opts.ArchivePath, archiveRel); err != nil {
		return nil, err
	}

	jobID := uuid.NewString()
	err := volume.MergeMetadata(map[string]interface{}{
		models.MetadataJobIDKey:       jobID,
		models.MetadataArchivePathKey: archiveRel,
	})
	if err != nil {
		return nil, err
	}

	volume.Status = models.VolumeStatusProcessing
	volume.Progress = 0
	volume.ProcessingMessage = nil
	err = g.library.UpdateVolume(ctx, volume, library.UpdateVolumeOptions{
		Columns: []string{"status", "progress", "processing_message", "metadata"},
	})
	if err != nil {
		return nil, err
	}

	if err := g.library.RecomputeMangaStats(ctx, manga.ID); err != nil {
		return nil, err
	}

	job := &queue.Job{
		JobID:        jobID,
		VolumeID:     volume.ID,
		ArchivePath:  g.store.FullPath(archiveRel),
		OutputPath:   g.store.FullPath(library.VolumeStoragePath(manga.ID, volume.VolumeNumber) + "/volume" + manifest.FileExt),
		UserID:       manga.UserID,
		Title:        &manga.Title,
		VolumeNumber: &volume.VolumeNumber,
	}
	if err := g.queue.Enqueue(ctx, job); err != nil {
		// The worker will never see this job; don't leave the volume stuck.
		msg := "Failed to queue the volume for processing."
		volume.Status = models.VolumeStatusFailed
		volume.ProcessingMessage = &msg
		updateErr := g.library.UpdateVolume(ctx, volume, library.UpdateVolumeOptions{
			Columns: []string{"status", "processing_message"},
		})
		if updateErr != nil {
			g.log.Err(updateErr).Error("failed to mark volume failed after enqueue error", logger.Data{"volume_id": volume.ID})
		}
		return nil, err
	}

	return &UploadResult{
		MangaID:  manga.ID,
		VolumeID: volume.ID,
		Status:   models.VolumeStatusProcessing,
		JobID:    &jobID,
	}, nil
}

// importPages copies each manifest page's image into the volume directory and
// inserts the page rows. Pages whose image is missing from the archive are
// dropped with a warning; the survivors are renumbered sequentially.
func (g *Gate) importPages(ctx context.Context, zr *zip.Reader, imageDir string, manifestPages []manifest.Page, volume *models.Volume, volumeDir string) ([]*models.Page, error) {
	pages := []*models.Page{}
	for _, mp := range manifestPages {
		imageName := mp.ImageName()
		entry := findImageEntry(zr, imageDir, imageName)
		if entry == nil {
			g.log.Warn("manifest references an image missing from the archive", logger.Data{
				"volume_id": volume.ID,
				"image":     imageName,
			})
			continue
		}

		r, err := entry.Open()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		imagePath := volumeDir + "/" + imageName
		_, err = g.store.SaveFile(imagePath, r)
		r.Close()
		if err != nil {
			return nil, err
		}

		pages = append(pages, &models.Page{
			VolumeID:   volume.ID,
			PageNumber: len(pages) + 1,
			ImagePath:  imagePath,
			ImageURL:   g.store.FileURL(imagePath),
			TextBlocksParsed: &models.PageTextBlocks{
				Blocks:    mp.Blocks,
				ImgWidth:  mp.ImgWidth,
				ImgHeight: mp.ImgHeight,
				Version:   mp.Version,
			},
		})
	}

	if err := g.library.CreatePages(ctx, pages); err != nil {
		return nil, err
	}
	return pages, nil
}

// resolveCover picks the volume cover: an explicit cover image in the archive
// wins, then the first page, then none.
func (g *Gate) resolveCover(zr *zip.Reader, volumeDir string, pages []*models.Page) (*string, error) {
	if entry := findCoverEntry(zr); entry != nil {
		name := "cover" + strings.ToLower(path.Ext(entryName(entry)))
		r, err := entry.Open()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		rel := volumeDir + "/" + name
		_, err = g.store.SaveFile(rel, r)
		r.Close()
		if err != nil {
			return nil, err
		}
		url := g.store.FileURL(rel)
		return &url, nil
	}

	if len(pages) > 0 {
		url := pages[0].ImageURL
		return &url, nil
	}
	return nil, nil
}

// refreshManga recomputes the manga's counters and backfills its cover from
// the new volume if it has none.
func (g *Gate) refreshManga(ctx context.Context, mangaID string, coverURL *string) error {
	if err := g.library.RecomputeMangaStats(ctx, mangaID); err != nil {
		return err
	}
	if coverURL == nil {
		return nil
	}

	manga, err := g.library.RetrieveManga(ctx, library.RetrieveMangaOptions{ID: &mangaID})
	if err != nil {
		return err
	}
	if manga.CoverURL != nil {
		return nil
	}
	manga.CoverURL = coverURL
	return g.library.UpdateManga(ctx, manga, library.UpdateMangaOptions{Columns: []string{"cover_url"}})
}

// ProcessingStatus is the polling view of a volume's pipeline state.
type ProcessingStatus struct {
	VolumeID    string  `json:"volume_id"`
	Status      string  `json:"status"`
	Progress    float64 `json:"progress"`
	Message     *string `json:"message,omitempty"`
	QueueLength int64   `json:"queue_length"`
}

func (g *Gate) ProcessingStatus(ctx context.Context, volumeID string) (*ProcessingStatus, error) {
	volume, err := g.library.RetrieveVolume(ctx, library.RetrieveVolumeOptions{ID: &volumeID})
	if err != nil {
		return nil, err
	}

	status := &ProcessingStatus{
		VolumeID: volume.ID,
		Status:   volume.Status,
		Progress: volume.Progress,
		Message:  volume.ProcessingMessage,
	}

	if g.queue != nil {
		n, err := g.queue.Length(ctx)
		if err != nil {
			g.log.Err(err).Warn("failed to read queue length", logger.Data{"volume_id": volumeID})
		} else {
			status.QueueLength = n
		}
	}
	return status, nil
}
