package ingest

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mangabako/mangabako/pkg/errcodes"
	"github.com/mangabako/mangabako/pkg/library"
	"github.com/mangabako/mangabako/pkg/models"
)

func TestIngestUploadReadyArchive(t *testing.T) {
	t.Parallel()
	gate, libraryService, store, _ := newTestGate(t)
	ctx := context.Background()

	result, err := gate.IngestUpload(ctx, UploadOptions{
		ArchivePath: makeReadyArchive(t),
		Filename:    "Dandadan v1.zip",
	})
	require.NoError(t, err)
	assert.Equal(t, models.VolumeStatusCompleted, result.Status)
	assert.Nil(t, result.JobID)
	assert.Equal(t, 2, result.PageCount)

	manga, err := libraryService.RetrieveManga(ctx, library.RetrieveMangaOptions{ID: &result.MangaID})
	require.NoError(t, err)
	assert.Equal(t, "Dandadan", manga.Title)
	assert.Equal(t, 1, manga.VolumeCount)
	require.NotNil(t, manga.CoverURL)

	volume, err := libraryService.RetrieveVolume(ctx, library.RetrieveVolumeOptions{ID: &result.VolumeID})
	require.NoError(t, err)
	assert.Equal(t, models.VolumeStatusCompleted, volume.Status)
	assert.Equal(t, 1, volume.VolumeNumber)
	assert.Equal(t, 2, volume.PageCount)

	// Explicit cover beats the first page.
	wantDir := library.VolumeStoragePath(manga.ID, 1)
	require.NotNil(t, volume.CoverURL)
	assert.Equal(t, store.FileURL(wantDir+"/cover.jpg"), *volume.CoverURL)
	assert.True(t, store.Exists(wantDir+"/cover.jpg"))

	pages, err := libraryService.ListPages(ctx, volume.ID)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "001.jpg", filepath.Base(pages[0].ImagePath))
	assert.True(t, store.Exists(pages[0].ImagePath))
	require.NotNil(t, pages[0].TextBlocksParsed)
	require.Len(t, pages[0].TextBlocksParsed.Blocks, 1)
	assert.Equal(t, []string{"テスト"}, pages[0].TextBlocksParsed.Blocks[0].Lines)
	assert.Equal(t, 800, pages[0].TextBlocksParsed.ImgWidth)
}

func TestIngestUploadReadyArchiveMissingImage(t *testing.T) {
	t.Parallel()
	gate, libraryService, _, _ := newTestGate(t)
	ctx := context.Background()

	// 002.jpg is named by the manifest but absent from the archive.
	path := makeZip(t, map[string][]byte{
		"Dandadan v1.manifest": []byte(testManifest),
		"Dandadan v1/001.jpg":  []byte("image-one"),
	})

	result, err := gate.IngestUpload(ctx, UploadOptions{ArchivePath: path, Filename: "Dandadan v1.zip"})
	require.NoError(t, err)
	assert.Equal(t, models.VolumeStatusCompleted, result.Status)
	assert.Equal(t, 1, result.PageCount)

	pages, err := libraryService.ListPages(ctx, result.VolumeID)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].PageNumber)
}

func TestIngestUploadAllImagesMissing(t *testing.T) {
	t.Parallel()
	gate, libraryService, _, _ := newTestGate(t)
	ctx := context.Background()

	// The manifest's images are all absent; the stray image keeps the
	// archive classified as ready.
	path := makeZip(t, map[string][]byte{
		"Dandadan v1.manifest": []byte(testManifest),
		"Dandadan v1/999.jpg":  []byte("stray"),
	})

	result, err := gate.IngestUpload(ctx, UploadOptions{ArchivePath: path, Filename: "Dandadan v1.zip"})
	require.NoError(t, err)
	assert.Equal(t, models.VolumeStatusCompleted, result.Status)
	assert.Equal(t, 0, result.PageCount)

	volume, err := libraryService.RetrieveVolume(ctx, library.RetrieveVolumeOptions{ID: &result.VolumeID})
	require.NoError(t, err)
	assert.Equal(t, models.VolumeStatusCompleted, volume.Status)
	assert.Equal(t, 0, volume.PageCount)
	assert.Nil(t, volume.CoverURL)

	pages, err := libraryService.ListPages(ctx, result.VolumeID)
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestIngestUploadRawArchive(t *testing.T) {
	t.Parallel()
	gate, libraryService, store, fq := newTestGate(t)
	ctx := context.Background()

	result, err := gate.IngestUpload(ctx, UploadOptions{
		ArchivePath: makeRawArchive(t),
		Filename:    "Dandadan v1.zip",
	})
	require.NoError(t, err)
	assert.Equal(t, models.VolumeStatusProcessing, result.Status)
	require.NotNil(t, result.JobID)

	require.Len(t, fq.jobs, 1)
	job := fq.jobs[0]
	assert.Equal(t, *result.JobID, job.JobID)
	assert.Equal(t, result.VolumeID, job.VolumeID)
	require.NotNil(t, job.Title)
	assert.Equal(t, "Dandadan", *job.Title)

	volume, err := libraryService.RetrieveVolume(ctx, library.RetrieveVolumeOptions{ID: &result.VolumeID})
	require.NoError(t, err)
	assert.Equal(t, models.VolumeStatusProcessing, volume.Status)
	assert.Equal(t, *result.JobID, volume.JobID())

	archiveRel := volume.ArchivePath()
	require.NotEmpty(t, archiveRel)
	assert.True(t, store.Exists(archiveRel))
	assert.Equal(t, store.FullPath(archiveRel), job.ArchivePath)
	assert.Equal(t, store.FullPath(library.VolumeStoragePath(result.MangaID, 1)+"/volume.manifest"), job.OutputPath)

	manga, err := libraryService.RetrieveManga(ctx, library.RetrieveMangaOptions{ID: &result.MangaID})
	require.NoError(t, err)
	assert.Equal(t, 1, manga.ProcessingCount)

	status, err := gate.ProcessingStatus(ctx, result.VolumeID)
	require.NoError(t, err)
	assert.Equal(t, models.VolumeStatusProcessing, status.Status)
	assert.Equal(t, int64(1), status.QueueLength)
}

func TestIngestUploadEnqueueFailure(t *testing.T) {
	t.Parallel()
	gate, libraryService, _, fq := newTestGate(t)
	ctx := context.Background()

	fq.enqueueErr = assert.AnError

	_, err := gate.IngestUpload(ctx, UploadOptions{
		ArchivePath: makeRawArchive(t),
		Filename:    "Dandadan v1.zip",
	})
	require.Error(t, err)

	userID := library.DefaultUserID
	title := "Dandadan"
	manga, err := libraryService.RetrieveManga(ctx, library.RetrieveMangaOptions{Title: &title, UserID: &userID})
	require.NoError(t, err)

	number := 1
	volume, err := libraryService.RetrieveVolume(ctx, library.RetrieveVolumeOptions{MangaID: &manga.ID, VolumeNumber: &number})
	require.NoError(t, err)
	assert.Equal(t, models.VolumeStatusFailed, volume.Status)
	require.NotNil(t, volume.ProcessingMessage)
}

func TestIngestUploadReimportReplaces(t *testing.T) {
	t.Parallel()
	gate, libraryService, _, _ := newTestGate(t)
	ctx := context.Background()

	first, err := gate.IngestUpload(ctx, UploadOptions{ArchivePath: makeReadyArchive(t), Filename: "Dandadan v1.zip"})
	require.NoError(t, err)

	second, err := gate.IngestUpload(ctx, UploadOptions{ArchivePath: makeReadyArchive(t), Filename: "Dandadan v1.zip"})
	require.NoError(t, err)

	assert.Equal(t, first.VolumeID, second.VolumeID)

	pages, err := libraryService.ListPages(ctx, second.VolumeID)
	require.NoError(t, err)
	assert.Len(t, pages, 2)

	manga, err := libraryService.RetrieveManga(ctx, library.RetrieveMangaOptions{ID: &second.MangaID})
	require.NoError(t, err)
	assert.Equal(t, 1, manga.VolumeCount)
}

func TestIngestUploadInvalidManifestKeepsExisting(t *testing.T) {
	t.Parallel()
	gate, libraryService, store, _ := newTestGate(t)
	ctx := context.Background()

	first, err := gate.IngestUpload(ctx, UploadOptions{ArchivePath: makeReadyArchive(t), Filename: "Dandadan v1.zip"})
	require.NoError(t, err)

	bad := makeZip(t, map[string][]byte{
		"Dandadan v1.manifest": []byte(`{"not_pages": []}`),
		"Dandadan v1/001.jpg":  []byte("image-one"),
	})
	_, err = gate.IngestUpload(ctx, UploadOptions{ArchivePath: bad, Filename: "Dandadan v1.zip"})
	require.Error(t, err)
	var ec *errcodes.Error
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, "validation_error", ec.Code)

	// The previous import is untouched.
	volume, err := libraryService.RetrieveVolume(ctx, library.RetrieveVolumeOptions{ID: &first.VolumeID})
	require.NoError(t, err)
	assert.Equal(t, models.VolumeStatusCompleted, volume.Status)
	assert.Equal(t, 2, volume.PageCount)

	pages, err := libraryService.ListPages(ctx, first.VolumeID)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.True(t, store.Exists(pages[0].ImagePath))
	assert.True(t, store.Exists(pages[1].ImagePath))
}

func TestIngestUploadInvalidManifestCreatesNothing(t *testing.T) {
	t.Parallel()
	gate, libraryService, _, _ := newTestGate(t)
	ctx := context.Background()

	bad := makeZip(t, map[string][]byte{
		"Frieren v1.manifest": []byte(`{"not_pages": []}`),
		"Frieren v1/001.jpg":  []byte("image-one"),
	})
	_, err := gate.IngestUpload(ctx, UploadOptions{ArchivePath: bad, Filename: "Frieren v1.zip"})
	require.Error(t, err)

	userID := library.DefaultUserID
	title := "Frieren"
	_, err = libraryService.RetrieveManga(ctx, library.RetrieveMangaOptions{Title: &title, UserID: &userID})
	assert.ErrorIs(t, err, errcodes.NotFound("Manga"))
}

func TestIngestUploadOverrides(t *testing.T) {
	t.Parallel()
	gate, libraryService, _, _ := newTestGate(t)
	ctx := context.Background()

	title := "Dandadan Deluxe"
	number := 7
	result, err := gate.IngestUpload(ctx, UploadOptions{
		ArchivePath:  makeReadyArchive(t),
		Filename:     "Dandadan v1.zip",
		Title:        &title,
		VolumeNumber: &number,
	})
	require.NoError(t, err)

	manga, err := libraryService.RetrieveManga(ctx, library.RetrieveMangaOptions{ID: &result.MangaID})
	require.NoError(t, err)
	assert.Equal(t, "Dandadan Deluxe", manga.Title)

	volume, err := libraryService.RetrieveVolume(ctx, library.RetrieveVolumeOptions{ID: &result.VolumeID})
	require.NoError(t, err)
	assert.Equal(t, 7, volume.VolumeNumber)
}

func TestIngestUploadRejectsNonZip(t *testing.T) {
	t.Parallel()
	gate, _, _, _ := newTestGate(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("not an archive"), 0644))

	_, err := gate.IngestUpload(ctx, UploadOptions{ArchivePath: path, Filename: "notes.txt"})
	assert.ErrorIs(t, err, errcodes.UnsupportedMediaType())
}

func TestInspectArchive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		entries map[string][]byte
		ready   bool
	}{
		{
			name: "manifest paired with image folder",
			entries: map[string][]byte{
				"Vol 1.manifest": []byte("[]"),
				"Vol 1/001.jpg":  []byte("x"),
			},
			ready: true,
		},
		{
			name: "nested pair",
			entries: map[string][]byte{
				"extra/Vol 1.manifest": []byte("[]"),
				"extra/Vol 1/001.jpg":  []byte("x"),
			},
			ready: true,
		},
		{
			name: "manifest without matching folder",
			entries: map[string][]byte{
				"Vol 1.manifest": []byte("[]"),
				"other/001.jpg":  []byte("x"),
			},
			ready: false,
		},
		{
			name: "images only",
			entries: map[string][]byte{
				"Vol 1/001.jpg": []byte("x"),
			},
			ready: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := makeZip(t, tt.entries)

			zr, err := zip.OpenReader(path)
			require.NoError(t, err)
			defer zr.Close()

			info := inspectArchive(&zr.Reader)
			if tt.ready {
				require.NotNil(t, info)
			} else {
				assert.Nil(t, info)
			}
		})
	}
}
