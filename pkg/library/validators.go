package library

type ListMangaQuery struct {
	UserID *string `query:"user_id" json:"user_id,omitempty" validate:"omitempty,max=100"`
}

type CreateMangaPayload struct {
	Title       string  `json:"title" validate:"required,max=300"`
	UserID      *string `json:"user_id,omitempty" validate:"omitempty,max=100"`
	Author      *string `json:"author,omitempty" validate:"omitempty,max=300"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	Status      *string `json:"status,omitempty" validate:"omitempty,oneof=ongoing completed hiatus cancelled"`
}

type UpdateMangaPayload struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,max=300"`
	Author      *string `json:"author,omitempty" validate:"omitempty,max=300"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	Status      *string `json:"status,omitempty" validate:"omitempty,oneof=ongoing completed hiatus cancelled"`
	CoverURL    *string `json:"cover_url,omitempty" validate:"omitempty,max=1000"`
}

type UpdateVolumePayload struct {
	Title    *string `json:"title,omitempty" validate:"omitempty,max=300"`
	CoverURL *string `json:"cover_url,omitempty" validate:"omitempty,max=1000"`
	IsRead   *bool   `json:"is_read,omitempty"`
}

type MoveVolumePayload struct {
	TargetMangaID string `json:"target_manga_id" validate:"required,max=100"`
	VolumeNumber  *int   `json:"volume_number,omitempty" validate:"omitempty,min=1"`
}
