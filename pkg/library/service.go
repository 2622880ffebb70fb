// Package library owns manga, volume, and page records and the consistency
// rules between the database and the storage tree: delete cascades, volume
// moves, and aggregate counter recomputation.
package library

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"

	"github.com/mangabako/mangabako/pkg/errcodes"
	"github.com/mangabako/mangabako/pkg/models"
	"github.com/mangabako/mangabako/pkg/storage"
)

type RetrieveMangaOptions struct {
	ID             *string
	Title          *string
	UserID         *string
	IncludeVolumes bool
}

type ListMangaOptions struct {
	UserID *string
}

type UpdateMangaOptions struct {
	Columns []string
}

type RetrieveVolumeOptions struct {
	ID           *string
	MangaID      *string
	VolumeNumber *int
	IncludePages bool
}

type ListVolumesOptions struct {
	MangaID *string
}

type UpdateVolumeOptions struct {
	Columns []string
}

type MoveVolumeOptions struct {
	TargetMangaID string
	VolumeNumber  *int
}

type Service struct {
	db    *bun.DB
	store *storage.Manager
	log   logger.Logger
}

func NewService(db *bun.DB, store *storage.Manager) *Service {
	return &Service{
		db:    db,
		store: store,
		log:   logger.New(),
	}
}

// VolumeStoragePath is the canonical storage directory for a volume's assets.
func VolumeStoragePath(mangaID string, volumeNumber int) string {
	return fmt.Sprintf("manga/%s/volume-%d", mangaID, volumeNumber)
}

// MangaStoragePath is the storage root holding all of a manga's volumes.
func MangaStoragePath(mangaID string) string {
	return "manga/" + mangaID
}

func (svc *Service) CreateManga(ctx context.Context, manga *models.Manga) error {
	now := time.Now()
	if manga.ID == "" {
		manga.ID = uuid.NewString()
	}
	if manga.Status == "" {
		manga.Status = models.MangaStatusOngoing
	}
	if manga.CreatedAt.IsZero() {
		manga.CreatedAt = now
	}
	manga.UpdatedAt = manga.CreatedAt

	_, err := svc.db.
		NewInsert().
		Model(manga).
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) RetrieveManga(ctx context.Context, opts RetrieveMangaOptions) (*models.Manga, error) {
	manga := &models.Manga{}

	q := svc.db.
		NewSelect().
		Model(manga)

	if opts.ID != nil {
		q = q.Where("m.id = ?", *opts.ID)
	}
	if opts.Title != nil {
		q = q.Where("m.title = ?", *opts.Title)
	}
	if opts.UserID != nil {
		q = q.Where("m.user_id = ?", *opts.UserID)
	}
	if opts.IncludeVolumes {
		q = q.Relation("Volumes", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("volume_number ASC")
		})
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Manga")
		}
		return nil, errors.WithStack(err)
	}

	return manga, nil
}

func (svc *Service) ListManga(ctx context.Context, opts ListMangaOptions) ([]*models.Manga, error) {
	manga := []*models.Manga{}

	q := svc.db.
		NewSelect().
		Model(&manga).
		Order("m.last_read DESC NULLS LAST").
		Order("m.title ASC")

	if opts.UserID != nil {
		q = q.Where("m.user_id = ?", *opts.UserID)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	return manga, nil
}

// FindOrCreateManga looks up a manga by title within a user's scope, creating
// it when absent.
func (svc *Service) FindOrCreateManga(ctx context.Context, title, userID string) (*models.Manga, error) {
	manga, err := svc.RetrieveManga(ctx, RetrieveMangaOptions{Title: &title, UserID: &userID})
	if err == nil {
		return manga, nil
	}
	if !errors.Is(err, errcodes.NotFound("Manga")) {
		return nil, err
	}

	manga = &models.Manga{
		UserID: userID,
		Title:  title,
		Status: models.MangaStatusOngoing,
	}
	if err := svc.CreateManga(ctx, manga); err != nil {
		return nil, err
	}
	return manga, nil
}

func (svc *Service) UpdateManga(ctx context.Context, manga *models.Manga, opts UpdateMangaOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	manga.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(manga).
		Column(columns...).
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}

// DeleteManga removes a manga, its volumes, and their pages, from both
// storage and the database. Storage deletes are best effort: an orphaned
// directory is preferred over a dangling database row, so a storage failure
// is logged and never blocks the database delete.
func (svc *Service) DeleteManga(ctx context.Context, manga *models.Manga) error {
	volumes, err := svc.ListVolumes(ctx, ListVolumesOptions{MangaID: &manga.ID})
	if err != nil {
		return err
	}

	for _, volume := range volumes {
		if volume.StoragePath == nil {
			continue
		}
		if err := svc.store.Delete(*volume.StoragePath, true); err != nil {
			svc.log.Err(err).Warn("failed to delete volume storage", logger.Data{"volume_id": volume.ID})
		}
	}
	if err := svc.store.Delete(MangaStoragePath(manga.ID), true); err != nil {
		svc.log.Err(err).Warn("failed to delete manga storage", logger.Data{"manga_id": manga.ID})
	}

	// Depth first: pages, volumes, manga.
	_, err = svc.db.NewDelete().
		Model((*models.Page)(nil)).
		Where("volume_id IN (SELECT id FROM volumes WHERE manga_id = ?)", manga.ID).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = svc.db.NewDelete().
		Model((*models.Volume)(nil)).
		Where("manga_id = ?", manga.ID).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = svc.db.NewDelete().
		Model(manga).
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) CreateVolume(ctx context.Context, volume *models.Volume) error {
	now := time.Now()
	if volume.ID == "" {
		volume.ID = uuid.NewString()
	}
	if volume.Status == "" {
		volume.Status = models.VolumeStatusUploaded
	}
	if volume.CreatedAt.IsZero() {
		volume.CreatedAt = now
	}
	volume.UpdatedAt = volume.CreatedAt

	_, err := svc.db.
		NewInsert().
		Model(volume).
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) RetrieveVolume(ctx context.Context, opts RetrieveVolumeOptions) (*models.Volume, error) {
	volume := &models.Volume{}

	q := svc.db.
		NewSelect().
		Model(volume)

	if opts.ID != nil {
		q = q.Where("v.id = ?", *opts.ID)
	}
	if opts.MangaID != nil {
		q = q.Where("v.manga_id = ?", *opts.MangaID)
	}
	if opts.VolumeNumber != nil {
		q = q.Where("v.volume_number = ?", *opts.VolumeNumber)
	}
	if opts.IncludePages {
		q = q.Relation("Pages", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("page_number ASC")
		})
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Volume")
		}
		return nil, errors.WithStack(err)
	}

	return volume, nil
}

func (svc *Service) ListVolumes(ctx context.Context, opts ListVolumesOptions) ([]*models.Volume, error) {
	volumes := []*models.Volume{}

	q := svc.db.
		NewSelect().
		Model(&volumes).
		Order("v.volume_number ASC")

	if opts.MangaID != nil {
		q = q.Where("v.manga_id = ?", *opts.MangaID)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	return volumes, nil
}

func (svc *Service) UpdateVolume(ctx context.Context, volume *models.Volume, opts UpdateVolumeOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	volume.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(volume).
		Column(columns...).
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}

// DeleteVolume removes one volume and its pages, storage first (best effort),
// then recomputes the owning manga's counters.
func (svc *Service) DeleteVolume(ctx context.Context, volume *models.Volume) error {
	if volume.StoragePath != nil {
		if err := svc.store.Delete(*volume.StoragePath, true); err != nil {
			svc.log.Err(err).Warn("failed to delete volume storage", logger.Data{"volume_id": volume.ID})
		}
	}

	_, err := svc.db.NewDelete().
		Model((*models.Page)(nil)).
		Where("volume_id = ?", volume.ID).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = svc.db.NewDelete().
		Model(volume).
		WherePK().
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return svc.RecomputeMangaStats(ctx, volume.MangaID)
}

// MoveVolume reassigns a volume to another manga. Storage moves first; the
// database is only touched once the files are in place, so a crash mid-move
// leaves rows pointing at the still-valid old location. The final volume row
// change lands in a single write.
func (svc *Service) MoveVolume(ctx context.Context, volume *models.Volume, opts MoveVolumeOptions) error {
	target, err := svc.RetrieveManga(ctx, RetrieveMangaOptions{ID: &opts.TargetMangaID})
	if err != nil {
		return err
	}

	newNumber := volume.VolumeNumber
	if opts.VolumeNumber != nil {
		newNumber = *opts.VolumeNumber
	}

	// No implicit renumbering: an occupied slot is the caller's problem.
	existing, err := svc.RetrieveVolume(ctx, RetrieveVolumeOptions{
		MangaID:      &target.ID,
		VolumeNumber: &newNumber,
	})
	if err != nil && !errors.Is(err, errcodes.NotFound("Volume")) {
		return err
	}
	if err == nil && existing.ID != volume.ID {
		return errcodes.Conflict(fmt.Sprintf("Volume %d already exists in the target manga.", newNumber))
	}

	sourceMangaID := volume.MangaID
	newStoragePath := VolumeStoragePath(target.ID, newNumber)

	if volume.StoragePath != nil && *volume.StoragePath != newStoragePath {
		if err := svc.store.Move(*volume.StoragePath, newStoragePath); err != nil {
			// Storage failed; abort before any database mutation.
			return err
		}
	}

	// Rewrite page paths and URLs, filename preserving.
	pages, err := svc.ListPages(ctx, volume.ID)
	if err != nil {
		return err
	}
	for _, page := range pages {
		filename := path.Base(page.ImagePath)
		page.ImagePath = newStoragePath + "/" + filename
		page.ImageURL = svc.store.FileURL(page.ImagePath)

		_, err := svc.db.NewUpdate().
			Model(page).
			Column("image_path", "image_url").
			WherePK().
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	if volume.CoverURL != nil {
		coverName := path.Base(*volume.CoverURL)
		coverURL := svc.store.FileURL(newStoragePath + "/" + coverName)
		volume.CoverURL = &coverURL
	}

	volume.MangaID = target.ID
	volume.VolumeNumber = newNumber
	volume.StoragePath = &newStoragePath
	err = svc.UpdateVolume(ctx, volume, UpdateVolumeOptions{
		Columns: []string{"manga_id", "volume_number", "storage_path", "cover_url"},
	})
	if err != nil {
		return err
	}

	if err := svc.RecomputeMangaStats(ctx, sourceMangaID); err != nil {
		return err
	}
	if err := svc.RecomputeMangaStats(ctx, target.ID); err != nil {
		return err
	}

	// Backfill the destination's cover from the moved volume if it has none.
	if target.CoverURL == nil && volume.CoverURL != nil {
		target.CoverURL = volume.CoverURL
		if err := svc.UpdateManga(ctx, target, UpdateMangaOptions{Columns: []string{"cover_url"}}); err != nil {
			return err
		}
	}

	return nil
}

// CreatePages inserts a volume's page rows in one batch.
func (svc *Service) CreatePages(ctx context.Context, pages []*models.Page) error {
	if len(pages) == 0 {
		return nil
	}

	now := time.Now()
	for _, page := range pages {
		if page.ID == "" {
			page.ID = uuid.NewString()
		}
		if page.CreatedAt.IsZero() {
			page.CreatedAt = now
		}
		if err := page.MarshalTextBlocks(); err != nil {
			return err
		}
	}

	_, err := svc.db.
		NewInsert().
		Model(&pages).
		Exec(ctx)
	return errors.WithStack(err)
}

// DeletePages removes every page row belonging to a volume.
func (svc *Service) DeletePages(ctx context.Context, volumeID string) error {
	_, err := svc.db.NewDelete().
		Model((*models.Page)(nil)).
		Where("volume_id = ?", volumeID).
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) ListPages(ctx context.Context, volumeID string) ([]*models.Page, error) {
	pages := []*models.Page{}

	err := svc.db.
		NewSelect().
		Model(&pages).
		Where("p.volume_id = ?", volumeID).
		Order("p.page_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	for _, page := range pages {
		if err := page.UnmarshalTextBlocks(); err != nil {
			return nil, err
		}
	}
	return pages, nil
}

func (svc *Service) RetrievePage(ctx context.Context, id string) (*models.Page, error) {
	page := &models.Page{}

	err := svc.db.
		NewSelect().
		Model(page).
		Where("p.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Page")
		}
		return nil, errors.WithStack(err)
	}

	if err := page.UnmarshalTextBlocks(); err != nil {
		return nil, err
	}
	return page, nil
}

// MarkPageRead flags a page as read and rolls the change up: the volume's
// read progress, the manga's counters, and the manga's last-read timestamp.
func (svc *Service) MarkPageRead(ctx context.Context, page *models.Page) error {
	page.IsRead = true
	_, err := svc.db.NewUpdate().
		Model(page).
		Column("is_read").
		WherePK().
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return svc.RecomputeVolumeProgress(ctx, page.VolumeID)
}

// SetVolumeRead marks every page in a volume read or unread, then rolls the
// change up through the volume and manga.
func (svc *Service) SetVolumeRead(ctx context.Context, volumeID string, read bool) error {
	_, err := svc.db.NewUpdate().
		Model((*models.Page)(nil)).
		Set("is_read = ?", read).
		Where("volume_id = ?", volumeID).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return svc.RecomputeVolumeProgress(ctx, volumeID)
}

// RecomputeVolumeProgress recalculates a volume's read progress from a full
// scan of its pages, then refreshes the owning manga.
func (svc *Service) RecomputeVolumeProgress(ctx context.Context, volumeID string) error {
	volume, err := svc.RetrieveVolume(ctx, RetrieveVolumeOptions{ID: &volumeID})
	if err != nil {
		return err
	}

	pages, err := svc.ListPages(ctx, volumeID)
	if err != nil {
		return err
	}

	read := 0
	for _, page := range pages {
		if page.IsRead {
			read++
		}
	}

	progress := 0.0
	if len(pages) > 0 {
		progress = float64(read) / float64(len(pages)) * 100
	}
	volume.Progress = progress
	volume.IsRead = len(pages) > 0 && read == len(pages)

	err = svc.UpdateVolume(ctx, volume, UpdateVolumeOptions{Columns: []string{"progress", "is_read"}})
	if err != nil {
		return err
	}

	if err := svc.RecomputeMangaStats(ctx, volume.MangaID); err != nil {
		return err
	}

	now := time.Now()
	manga := &models.Manga{ID: volume.MangaID, LastRead: &now}
	_, err = svc.db.NewUpdate().
		Model(manga).
		Column("last_read").
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}

// RecomputeMangaStats derives volume_count, unread_count, and
// processing_count from a full scan of the manga's volumes. Counters are
// never patched incrementally; concurrent writers converge instead of drift.
func (svc *Service) RecomputeMangaStats(ctx context.Context, mangaID string) error {
	volumes, err := svc.ListVolumes(ctx, ListVolumesOptions{MangaID: &mangaID})
	if err != nil {
		return err
	}

	volumeCount := len(volumes)
	unreadCount := 0
	processingCount := 0
	for _, volume := range volumes {
		if !volume.IsRead {
			unreadCount++
		}
		if volume.Status == models.VolumeStatusProcessing {
			processingCount++
		}
	}

	manga := &models.Manga{
		ID:              mangaID,
		VolumeCount:     volumeCount,
		UnreadCount:     unreadCount,
		ProcessingCount: processingCount,
		UpdatedAt:       time.Now(),
	}
	_, err = svc.db.NewUpdate().
		Model(manga).
		Column("volume_count", "unread_count", "processing_count", "updated_at").
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}
