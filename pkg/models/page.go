package models

import (
	"time"

	"github.com/mangabako/mangabako/pkg/manifest"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

// PageTextBlocks is the decoded shape of a page's text_blocks column: the
// OCR regions plus the image dimensions they are positioned against.
type PageTextBlocks struct {
	Blocks    []manifest.Block `json:"blocks"`
	ImgWidth  int              `json:"img_width"`
	ImgHeight int              `json:"img_height"`
	Version   string           `json:"version"`
}

type Page struct {
	bun.BaseModel `bun:"table:pages,alias:p"`

	ID               string          `bun:",pk,nullzero" json:"id"`
	VolumeID         string          `bun:",nullzero" json:"volume_id"`
	Volume           *Volume         `bun:"rel:belongs-to,join:volume_id=id" json:"volume,omitempty"`
	PageNumber       int             `json:"page_number"`
	ImagePath        string          `bun:",nullzero" json:"image_path"`
	ImageURL         string          `bun:",nullzero" json:"image_url"`
	TextBlocks       string          `bun:",nullzero" json:"-"`
	TextBlocksParsed *PageTextBlocks `bun:"-" json:"text_blocks"`
	IsRead           bool            `json:"is_read"`
	CreatedAt        time.Time       `json:"created_at"`
}

// UnmarshalTextBlocks decodes the text_blocks column into TextBlocksParsed.
func (p *Page) UnmarshalTextBlocks() error {
	if p.TextBlocks == "" {
		return nil
	}
	parsed := &PageTextBlocks{}
	if err := json.Unmarshal([]byte(p.TextBlocks), parsed); err != nil {
		return errors.WithStack(err)
	}
	p.TextBlocksParsed = parsed
	return nil
}

// MarshalTextBlocks encodes TextBlocksParsed into the text_blocks column.
func (p *Page) MarshalTextBlocks() error {
	if p.TextBlocksParsed == nil {
		return nil
	}
	data, err := json.Marshal(p.TextBlocksParsed)
	if err != nil {
		return errors.WithStack(err)
	}
	p.TextBlocks = string(data)
	return nil
}
