// Package manifest parses volume manifests: the structured description of a
// volume's pages and their positioned text regions, produced either ahead of
// time or by the OCR worker.
package manifest

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// FileExt is the extension of manifest files inside ready archives. A ready
// archive pairs a manifest file with a same-named folder of page images.
const FileExt = ".manifest"

// Block is a positioned text region on a page.
type Block struct {
	Box      []float64 `json:"box"`
	Vertical bool      `json:"vertical,omitempty"`
	FontSize float64   `json:"font_size,omitempty"`
	Lines    []string  `json:"lines"`
}

// UnmarshalJSON accepts both font_size and fontSize spellings; worker versions
// have emitted both.
func (b *Block) UnmarshalJSON(data []byte) error {
	var raw struct {
		Box         []float64 `json:"box"`
		Vertical    bool      `json:"vertical"`
		FontSize    *float64  `json:"font_size"`
		FontSizeAlt *float64  `json:"fontSize"`
		Lines       []string  `json:"lines"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WithStack(err)
	}

	b.Box = raw.Box
	b.Vertical = raw.Vertical
	b.Lines = raw.Lines
	switch {
	case raw.FontSize != nil:
		b.FontSize = *raw.FontSize
	case raw.FontSizeAlt != nil:
		b.FontSize = *raw.FontSizeAlt
	}

	return nil
}

// Page describes a single page: its image file and the text regions on it.
type Page struct {
	ImgPath   string  `json:"img_path"`
	ImgWidth  int     `json:"img_width"`
	ImgHeight int     `json:"img_height"`
	Blocks    []Block `json:"blocks"`
	Version   string  `json:"version"`
}

// ImageName returns the base filename of the page's image, tolerating
// manifests that record paths with subdirectories or Windows separators.
func (p *Page) ImageName() string {
	name := strings.ReplaceAll(p.ImgPath, `\`, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// Parse decodes manifest bytes. The accepted shapes are a bare array of page
// descriptors, or an object wrapping the array under a "pages" or "data" key.
// Anything else is an error.
func Parse(data []byte) ([]Page, error) {
	trimmed := strings.TrimLeftFunc(string(data), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})

	if strings.HasPrefix(trimmed, "[") {
		var pages []Page
		if err := json.Unmarshal(data, &pages); err != nil {
			return nil, errors.Wrap(err, "malformed manifest array")
		}
		return pages, nil
	}

	var wrapper struct {
		Pages []Page `json:"pages"`
		Data  []Page `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, errors.Wrap(err, "malformed manifest object")
	}

	switch {
	case wrapper.Pages != nil:
		return wrapper.Pages, nil
	case wrapper.Data != nil:
		return wrapper.Data, nil
	}

	return nil, errors.New("manifest has neither a pages nor a data array")
}
