package ingest

import (
	"archive/zip"
	"io"
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/mangabako/mangabako/pkg/manifest"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
	".bmp":  true,
	".avif": true,
}

// entryName normalizes a zip entry name. Some archivers write Windows
// separators.
func entryName(f *zip.File) string {
	return strings.ReplaceAll(f.Name, `\`, "/")
}

func isImageEntry(name string) bool {
	base := path.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "__MACOSX") {
		return false
	}
	return imageExtensions[strings.ToLower(path.Ext(base))]
}

// archiveManifest describes a ready archive: a manifest entry paired with a
// same-named folder of page images.
type archiveManifest struct {
	Entry    *zip.File
	ImageDir string
}

// inspectArchive looks for a manifest entry whose name matches a folder of
// images in the same archive. Returns nil when the archive is a raw one.
func inspectArchive(zr *zip.Reader) *archiveManifest {
	for _, f := range zr.File {
		name := entryName(f)
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(name), manifest.FileExt) {
			continue
		}

		base := strings.TrimSuffix(path.Base(name), path.Ext(name))
		dir := path.Join(path.Dir(name), base)
		if dir == "." {
			dir = base
		}

		prefix := dir + "/"
		for _, img := range zr.File {
			imgName := entryName(img)
			if strings.HasPrefix(imgName, prefix) && isImageEntry(imgName) {
				return &archiveManifest{Entry: f, ImageDir: prefix}
			}
		}
	}
	return nil
}

func readEntry(f *zip.File) ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return data, nil
}

// findImageEntry locates a page image by base filename. It prefers an exact
// match under the given prefix, then anywhere in the archive, then a
// case-insensitive match. OCR output sometimes disagrees with the archive on
// casing or directory layout.
func findImageEntry(zr *zip.Reader, prefix, filename string) *zip.File {
	if prefix != "" {
		for _, f := range zr.File {
			name := entryName(f)
			if strings.HasPrefix(name, prefix) && path.Base(name) == filename {
				return f
			}
		}
	}
	for _, f := range zr.File {
		if path.Base(entryName(f)) == filename {
			return f
		}
	}
	lower := strings.ToLower(filename)
	for _, f := range zr.File {
		if strings.ToLower(path.Base(entryName(f))) == lower {
			return f
		}
	}
	return nil
}

// findCoverEntry returns an explicit cover image entry, if the archive has
// one.
func findCoverEntry(zr *zip.Reader) *zip.File {
	for _, f := range zr.File {
		name := entryName(f)
		if !isImageEntry(name) {
			continue
		}
		base := path.Base(name)
		if strings.EqualFold(strings.TrimSuffix(base, path.Ext(base)), "cover") {
			return f
		}
	}
	return nil
}
