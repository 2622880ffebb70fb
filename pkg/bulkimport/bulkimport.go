// Package bulkimport walks a local directory and feeds everything importable
// through the ingestion gate: archives as-is, folders packaged into synthetic
// archives first.
package bulkimport

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"

	"github.com/mangabako/mangabako/pkg/ingest"
	"github.com/mangabako/mangabako/pkg/manifest"
)

const (
	KindReadyFolder = "ready_folder"
	KindArchive     = "archive"
	KindImageFolder = "image_folder"
)

var archiveExtensions = map[string]bool{
	".zip": true,
	".cbz": true,
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
	".bmp":  true,
	".avif": true,
}

// Item is one importable thing found by a scan.
type Item struct {
	Path string
	Kind string
	// ManifestPath is set for ready folders: the sibling manifest file.
	ManifestPath string
}

// Scan classifies a directory's entries. Precedence per entry: a folder
// paired with a same-named manifest file beats everything, then archive
// files, then folders of loose images. Other directories are only descended
// into when recurse is set. Scanning the same tree twice yields the same
// items.
func Scan(root string, recurse bool) ([]Item, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	// Manifest files pair with a same-named directory; paired ones are
	// consumed by their folder and never stand alone.
	manifests := map[string]string{}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasSuffix(strings.ToLower(name), manifest.FileExt) {
			base := strings.TrimSuffix(name, filepath.Ext(name))
			manifests[base] = filepath.Join(root, name)
		}
	}

	items := []Item{}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		full := filepath.Join(root, name)

		if !entry.IsDir() {
			if archiveExtensions[strings.ToLower(filepath.Ext(name))] {
				items = append(items, Item{Path: full, Kind: KindArchive})
			}
			continue
		}

		if manifestPath, ok := manifests[name]; ok {
			items = append(items, Item{Path: full, Kind: KindReadyFolder, ManifestPath: manifestPath})
			continue
		}
		if hasImages(full) {
			items = append(items, Item{Path: full, Kind: KindImageFolder})
			continue
		}
		if recurse {
			nested, err := Scan(full, recurse)
			if err != nil {
				return nil, err
			}
			items = append(items, nested...)
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	return items, nil
}

func hasImages(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if !entry.IsDir() && imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			return true
		}
	}
	return false
}

// Package produces the archive to upload for an item. Archives pass through
// untouched; folders are zipped into a temporary file the caller removes via
// cleanup.
func Package(item Item) (string, func(), error) {
	if item.Kind == KindArchive {
		return item.Path, func() {}, nil
	}

	tmp, err := os.CreateTemp("", "bulkimport-*.zip")
	if err != nil {
		return "", nil, errors.WithStack(err)
	}
	cleanup := func() { os.Remove(tmp.Name()) }

	zw := zip.NewWriter(tmp)
	base := filepath.Base(item.Path)

	if item.Kind == KindReadyFolder {
		if err := addFileToZip(zw, item.ManifestPath, filepath.Base(item.ManifestPath)); err != nil {
			zw.Close()
			tmp.Close()
			cleanup()
			return "", nil, err
		}
	}

	entries, err := os.ReadDir(item.Path)
	if err != nil {
		zw.Close()
		tmp.Close()
		cleanup()
		return "", nil, errors.WithStack(err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		if err := addFileToZip(zw, filepath.Join(item.Path, name), base+"/"+name); err != nil {
			zw.Close()
			tmp.Close()
			cleanup()
			return "", nil, err
		}
	}

	if err := zw.Close(); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, errors.WithStack(err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, errors.WithStack(err)
	}
	return tmp.Name(), cleanup, nil
}

func addFileToZip(zw *zip.Writer, srcPath, entryName string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return errors.WithStack(err)
	}
	defer src.Close()

	w, err := zw.Create(entryName)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = io.Copy(w, src)
	return errors.WithStack(err)
}

// Result records one item's outcome.
type Result struct {
	Path     string
	Status   string
	VolumeID string
	Error    string
}

const (
	StatusImported = "imported"
	StatusQueued   = "queued"
	StatusFailed   = "failed"
)

type Runner struct {
	gate   *ingest.Gate
	userID string
	log    logger.Logger
}

func NewRunner(gate *ingest.Gate, userID string) *Runner {
	return &Runner{gate: gate, userID: userID, log: logger.New()}
}

// Run imports every item found under root, sequentially. One bad item doesn't
// stop the rest.
func (r *Runner) Run(ctx context.Context, root string, recurse bool) ([]Result, error) {
	items, err := Scan(root, recurse)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(items))
	for _, item := range items {
		results = append(results, r.importItem(ctx, item))
	}
	return results, nil
}

func (r *Runner) importItem(ctx context.Context, item Item) Result {
	archivePath, cleanup, err := Package(item)
	if err != nil {
		r.log.Err(err).Error("failed to package item", logger.Data{"path": item.Path})
		return Result{Path: item.Path, Status: StatusFailed, Error: err.Error()}
	}
	defer cleanup()

	filename := filepath.Base(item.Path)
	if item.Kind != KindArchive {
		filename += ".zip"
	}

	upload, err := r.gate.IngestUpload(ctx, ingest.UploadOptions{
		ArchivePath: archivePath,
		Filename:    filename,
		UserID:      r.userID,
	})
	if err != nil {
		r.log.Err(err).Error("failed to import item", logger.Data{"path": item.Path})
		return Result{Path: item.Path, Status: StatusFailed, Error: err.Error()}
	}

	status := StatusImported
	if upload.JobID != nil {
		status = StatusQueued
	}
	r.log.Info("imported item", logger.Data{"path": item.Path, "status": status, "volume_id": upload.VolumeID})
	return Result{Path: item.Path, Status: status, VolumeID: upload.VolumeID}
}
