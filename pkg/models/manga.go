package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	MangaStatusOngoing   = "ongoing"
	MangaStatusCompleted = "completed"
	MangaStatusHiatus    = "hiatus"
	MangaStatusCancelled = "cancelled"
)

// ValidMangaStatus reports whether s is one of the recognized manga statuses.
func ValidMangaStatus(s string) bool {
	switch s {
	case MangaStatusOngoing, MangaStatusCompleted, MangaStatusHiatus, MangaStatusCancelled:
		return true
	}
	return false
}

type Manga struct {
	bun.BaseModel `bun:"table:manga,alias:m"`

	ID              string     `bun:",pk,nullzero" json:"id"`
	UserID          string     `bun:",nullzero" json:"user_id"`
	Title           string     `bun:",nullzero" json:"title"`
	Author          *string    `json:"author"`
	Description     *string    `json:"description"`
	CoverURL        *string    `json:"cover_url"`
	Status          string     `bun:",nullzero" json:"status"`
	VolumeCount     int        `json:"volume_count"`
	UnreadCount     int        `json:"unread_count"`
	ProcessingCount int        `json:"processing_count"`
	LastRead        *time.Time `json:"last_read"`
	Volumes         []*Volume  `bun:"rel:has-many,join:id=manga_id" json:"volumes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
