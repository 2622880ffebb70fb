package models

import (
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

const (
	VolumeStatusUploaded   = "uploaded"
	VolumeStatusProcessing = "processing"
	VolumeStatusCompleted  = "completed"
	VolumeStatusFailed     = "failed"
)

// MetadataJobIDKey is the metadata key holding the OCR job ID. It is the only
// link between a volume row and an in-flight job.
const MetadataJobIDKey = "job_id"

// MetadataArchivePathKey is the metadata key holding the storage-relative
// path of the uploaded archive a processing volume was created from.
const MetadataArchivePathKey = "archive_path"

type Volume struct {
	bun.BaseModel `bun:"table:volumes,alias:v"`

	ID                string    `bun:",pk,nullzero" json:"id"`
	MangaID           string    `bun:",nullzero" json:"manga_id"`
	Manga             *Manga    `bun:"rel:belongs-to,join:manga_id=id" json:"manga,omitempty"`
	VolumeNumber      int       `json:"volume_number"`
	Title             string    `bun:",nullzero" json:"title"`
	CoverURL          *string   `json:"cover_url"`
	Status            string    `bun:",nullzero" json:"status"`
	IsRead            bool      `json:"is_read"`
	Progress          float64   `json:"progress"`
	PageCount         int       `json:"page_count"`
	StoragePath       *string   `json:"storage_path"`
	Metadata          string    `bun:",nullzero" json:"-"`
	ProcessingMessage *string   `json:"processing_message,omitempty"`
	Pages             []*Page   `bun:"rel:has-many,join:id=volume_id" json:"pages,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// MetadataMap decodes the metadata blob. A missing or empty blob yields an
// empty map.
func (v *Volume) MetadataMap() (map[string]interface{}, error) {
	meta := map[string]interface{}{}
	if v.Metadata == "" {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(v.Metadata), &meta); err != nil {
		return nil, errors.WithStack(err)
	}
	return meta, nil
}

// MergeMetadata folds the given keys into the metadata blob without dropping
// keys already present, so the job ID stored at enqueue time survives the
// worker's metadata arriving at finalize time.
func (v *Volume) MergeMetadata(extra map[string]interface{}) error {
	meta, err := v.MetadataMap()
	if err != nil {
		return err
	}
	for k, val := range extra {
		meta[k] = val
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return errors.WithStack(err)
	}
	v.Metadata = string(data)
	return nil
}

// JobID returns the OCR job ID from the metadata blob, or "" if none is set.
func (v *Volume) JobID() string {
	return v.metadataString(MetadataJobIDKey)
}

// ArchivePath returns the storage-relative archive path from the metadata
// blob, or "" if none is set.
func (v *Volume) ArchivePath() string {
	return v.metadataString(MetadataArchivePathKey)
}

func (v *Volume) metadataString(key string) string {
	meta, err := v.MetadataMap()
	if err != nil {
		return ""
	}
	s, _ := meta[key].(string)
	return s
}
