package ingest

import (
	"archive/zip"
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"

	"github.com/mangabako/mangabako/pkg/library"
	"github.com/mangabako/mangabako/pkg/models"
	"github.com/mangabako/mangabako/pkg/queue"
	"github.com/mangabako/mangabako/pkg/storage"
)

// Finalizer turns a completed OCR job into page rows and a laid-out storage
// directory. Any failure marks the volume failed; a volume is never left
// stuck in processing.
type Finalizer struct {
	library *library.Service
	store   *storage.Manager
	queue   JobQueue
	log     logger.Logger
}

func NewFinalizer(libraryService *library.Service, store *storage.Manager, q JobQueue) *Finalizer {
	return &Finalizer{
		library: libraryService,
		store:   store,
		queue:   q,
		log:     logger.New(),
	}
}

func (f *Finalizer) FinalizeVolume(ctx context.Context, volume *models.Volume, jobID string) {
	if err := f.finalize(ctx, volume, jobID); err != nil {
		f.log.Err(err).Error("failed to finalize volume", logger.Data{
			"volume_id": volume.ID,
			"job_id":    jobID,
		})

		msg := err.Error()
		volume.Status = models.VolumeStatusFailed
		volume.ProcessingMessage = &msg
		updateErr := f.library.UpdateVolume(ctx, volume, library.UpdateVolumeOptions{
			Columns: []string{"status", "processing_message"},
		})
		if updateErr != nil {
			f.log.Err(updateErr).Error("failed to mark volume failed", logger.Data{"volume_id": volume.ID})
		}
	}

	if err := f.library.RecomputeMangaStats(ctx, volume.MangaID); err != nil {
		f.log.Err(err).Error("failed to recompute manga stats", logger.Data{"manga_id": volume.MangaID})
	}
}

func (f *Finalizer) finalize(ctx context.Context, volume *models.Volume, jobID string) error {
	result, err := f.queue.Result(ctx, jobID)
	if err != nil {
		if errors.Is(err, queue.ErrNoResult) {
			return errors.Errorf("no result recorded for job %s", jobID)
		}
		return err
	}
	if !result.Success {
		if result.Error != "" {
			return errors.Errorf("worker reported failure: %s", result.Error)
		}
		return errors.New("worker reported failure")
	}
	if result.Data == nil {
		return errors.New("job result carries no payload")
	}

	archiveRel := volume.ArchivePath()
	if archiveRel == "" {
		archiveRel = fmt.Sprintf("manga/%s/archives/volume-%d.zip", volume.MangaID, volume.VolumeNumber)
	}
	if !f.store.Exists(archiveRel) {
		return errors.Errorf("source archive %s is missing from storage", archiveRel)
	}

	zr, err := zip.OpenReader(f.store.FullPath(archiveRel))
	if err != nil {
		return errors.WithStack(err)
	}
	defer zr.Close()

	volumeDir := library.VolumeStoragePath(volume.MangaID, volume.VolumeNumber)
	if _, err := f.store.CreateDirectory(volumeDir); err != nil {
		return err
	}

	// Re-finalizing after a duplicate completed event must not double pages.
	if err := f.library.DeletePages(ctx, volume.ID); err != nil {
		return err
	}

	pages := []*models.Page{}
	for _, mp := range result.Data.Pages {
		imageName := mp.ImageName()
		entry := findImageEntry(&zr.Reader, "", imageName)
		if entry == nil {
			f.log.Warn("job result references an image missing from the archive", logger.Data{
				"volume_id": volume.ID,
				"image":     imageName,
			})
			continue
		}

		r, err := entry.Open()
		if err != nil {
			return errors.WithStack(err)
		}
		imagePath := volumeDir + "/" + imageName
		_, err = f.store.SaveFile(imagePath, r)
		r.Close()
		if err != nil {
			return err
		}

		version := mp.Version
		if version == "" {
			version = result.Data.Version
		}
		pages = append(pages, &models.Page{
			VolumeID:   volume.ID,
			PageNumber: len(pages) + 1,
			ImagePath:  imagePath,
			ImageURL:   f.store.FileURL(imagePath),
			TextBlocksParsed: &models.PageTextBlocks{
				Blocks:    mp.Blocks,
				ImgWidth:  mp.ImgWidth,
				ImgHeight: mp.ImgHeight,
				Version:   version,
			},
		})
	}
	if err := f.library.CreatePages(ctx, pages); err != nil {
		return err
	}

	coverURL, err := f.resolveCover(&zr.Reader, volumeDir, pages)
	if err != nil {
		return err
	}

	err = volume.MergeMetadata(map[string]interface{}{
		"ocr_version": result.Data.Version,
	})
	if err != nil {
		return err
	}

	volume.Status = models.VolumeStatusCompleted
	volume.PageCount = len(pages)
	volume.StoragePath = &volumeDir
	volume.CoverURL = coverURL
	volume.Progress = 0
	volume.IsRead = false
	volume.ProcessingMessage = nil
	err = f.library.UpdateVolume(ctx, volume, library.UpdateVolumeOptions{
		Columns: []string{"status", "page_count", "storage_path", "cover_url", "progress", "is_read", "processing_message", "metadata"},
	})
	if err != nil {
		return err
	}

	if manga, err := f.library.RetrieveManga(ctx, library.RetrieveMangaOptions{ID: &volume.MangaID}); err == nil {
		if manga.CoverURL == nil && coverURL != nil {
			manga.CoverURL = coverURL
			if err := f.library.UpdateManga(ctx, manga, library.UpdateMangaOptions{Columns: []string{"cover_url"}}); err != nil {
				return err
			}
		}
	}

	return nil
}

// resolveCover mirrors the synchronous import path: explicit cover image,
// then first page, then none.
func (f *Finalizer) resolveCover(zr *zip.Reader, volumeDir string, pages []*models.Page) (*string, error) {
	g := &Gate{library: f.library, store: f.store, log: f.log}
	return g.resolveCover(zr, volumeDir, pages)
}
