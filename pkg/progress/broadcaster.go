// Package progress relays worker progress events to persisted volume state
// and to realtime clients.
package progress

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"

	"github.com/mangabako/mangabako/pkg/models"
	"github.com/mangabako/mangabako/pkg/queue"
)

// Finalizer reconciles a completed job's result into page records and storage
// layout. Implemented by the ingest package.
type Finalizer interface {
	FinalizeVolume(ctx context.Context, volume *models.Volume, jobID string)
}

// Broadcaster consumes worker progress events. Each event is mirrored to
// connected clients fire-and-forget, and folded into the owning volume's
// persisted state. Events arrive with no ordering guarantee relative to
// concurrent writes on the same volume; last applied wins.
type Broadcaster struct {
	db        *bun.DB
	hub       *Hub
	finalizer Finalizer
	log       logger.Logger
}

func NewBroadcaster(db *bun.DB, hub *Hub, finalizer Finalizer) *Broadcaster {
	return &Broadcaster{
		db:        db,
		hub:       hub,
		finalizer: finalizer,
		log:       logger.New(),
	}
}

// Run consumes events until the channel closes or ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context, events <-chan queue.ProgressUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-events:
			if !ok {
				return
			}
			b.Handle(ctx, update)
		}
	}
}

// Handle processes one progress event.
func (b *Broadcaster) Handle(ctx context.Context, update queue.ProgressUpdate) {
	// Mirror the raw event outward before touching the database; clients
	// only use it as a cue to re-fetch, so it never waits on persistence.
	b.hub.Broadcast(TopicProcessingProgress, update)

	// The job ID lives inside the volume's metadata blob; this is a
	// structural lookup, not an indexed join.
	volume := &models.Volume{}
	err := b.db.NewSelect().
		Model(volume).
		Where("json_extract(v.metadata, '$.job_id') = ?", update.JobID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			b.log.Warn("no volume for progress event", logger.Data{"job_id": update.JobID})
			return
		}
		b.log.Err(err).Error("volume lookup failed for progress event")
		return
	}

	volume.Progress = update.Progress

	switch update.Status {
	case queue.StatusCompleted:
		b.finalizer.FinalizeVolume(ctx, volume, update.JobID)
	case queue.StatusFailed:
		volume.Status = models.VolumeStatusFailed
		if update.Message != "" {
			volume.ProcessingMessage = &update.Message
		}
		b.persist(ctx, volume, "status", "progress", "processing_message")
	default:
		b.persist(ctx, volume, "progress")
	}
}

func (b *Broadcaster) persist(ctx context.Context, volume *models.Volume, columns ...string) {
	volume.UpdatedAt = time.Now()
	columns = append(columns, "updated_at")

	_, err := b.db.NewUpdate().
		Model(volume).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		b.log.Err(err).Error("failed to persist progress update", logger.Data{"volume_id": volume.ID})
	}
}
