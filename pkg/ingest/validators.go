package ingest

import "mime/multipart"

type UploadVolumePayload struct {
	Title        *string                          `form:"title" json:"title,omitempty" validate:"omitempty,max=300"`
	VolumeNumber *int                             `form:"volume_number" json:"volume_number,omitempty" validate:"omitempty,min=1"`
	UserID       *string                          `form:"user_id" json:"user_id,omitempty" validate:"omitempty,max=100"`
	FormFiles    map[string]*multipart.FileHeader `json:"-"`
}
