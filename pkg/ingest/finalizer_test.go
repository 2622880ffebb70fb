package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mangabako/mangabako/pkg/library"
	"github.com/mangabako/mangabako/pkg/manifest"
	"github.com/mangabako/mangabako/pkg/models"
	"github.com/mangabako/mangabako/pkg/queue"
)

// queueProcessing runs a raw upload through the gate so there's a processing
// volume with a stored archive and job ID, ready to finalize.
func queueProcessing(t *testing.T, gate *Gate, libraryService *library.Service) (*models.Volume, string) {
	t.Helper()
	ctx := context.Background()

	result, err := gate.IngestUpload(ctx, UploadOptions{
		ArchivePath: makeRawArchive(t),
		Filename:    "Dandadan v1.zip",
	})
	require.NoError(t, err)
	require.NotNil(t, result.JobID)

	volume, err := libraryService.RetrieveVolume(ctx, library.RetrieveVolumeOptions{ID: &result.VolumeID})
	require.NoError(t, err)
	return volume, *result.JobID
}

func resultPage(imgPath string) manifest.Page {
	return manifest.Page{
		ImgPath:   imgPath,
		ImgWidth:  800,
		ImgHeight: 1200,
		Blocks: []manifest.Block{
			{Box: []float64{10, 20, 110, 220}, Lines: []string{"テスト"}},
		},
	}
}

func TestFinalizeVolume(t *testing.T) {
	t.Parallel()
	gate, libraryService, store, fq := newTestGate(t)
	finalizer := NewFinalizer(libraryService, store, fq)
	ctx := context.Background()

	volume, jobID := queueProcessing(t, gate, libraryService)
	fq.results[jobID] = &queue.Result{
		Success: true,
		Data: &queue.ResultData{
			Version: "0.2.1",
			Pages:   []manifest.Page{resultPage("001.jpg"), resultPage("002.jpg")},
		},
	}

	finalizer.FinalizeVolume(ctx, volume, jobID)

	volume, err := libraryService.RetrieveVolume(ctx, library.RetrieveVolumeOptions{ID: &volume.ID})
	require.NoError(t, err)
	assert.Equal(t, models.VolumeStatusCompleted, volume.Status)
	assert.Equal(t, 2, volume.PageCount)
	assert.Nil(t, volume.ProcessingMessage)
	require.NotNil(t, volume.StoragePath)
	require.NotNil(t, volume.CoverURL)

	// The job ID survives the worker metadata merge.
	assert.Equal(t, jobID, volume.JobID())
	meta, err := volume.MetadataMap()
	require.NoError(t, err)
	assert.Equal(t, "0.2.1", meta["ocr_version"])

	pages, err := libraryService.ListPages(ctx, volume.ID)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.True(t, store.Exists(pages[0].ImagePath))
	require.NotNil(t, pages[0].TextBlocksParsed)
	assert.Equal(t, "0.2.1", pages[0].TextBlocksParsed.Version)

	manga, err := libraryService.RetrieveManga(ctx, library.RetrieveMangaOptions{ID: &volume.MangaID})
	require.NoError(t, err)
	assert.Equal(t, 0, manga.ProcessingCount)
}

func TestFinalizeVolumeDropsMissingImages(t *testing.T) {
	t.Parallel()
	gate, libraryService, store, fq := newTestGate(t)
	finalizer := NewFinalizer(libraryService, store, fq)
	ctx := context.Background()

	volume, jobID := queueProcessing(t, gate, libraryService)
	// 003.jpg is in the result but not in the archive.
	fq.results[jobID] = &queue.Result{
		Success: true,
		Data: &queue.ResultData{
			Version: "0.2.1",
			Pages:   []manifest.Page{resultPage("001.jpg"), resultPage("003.jpg")},
		},
	}

	finalizer.FinalizeVolume(ctx, volume, jobID)

	volume, err := libraryService.RetrieveVolume(ctx, library.RetrieveVolumeOptions{ID: &volume.ID})
	require.NoError(t, err)
	assert.Equal(t, models.VolumeStatusCompleted, volume.Status)
	assert.Equal(t, 1, volume.PageCount)

	pages, err := libraryService.ListPages(ctx, volume.ID)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].PageNumber)
}

func TestFinalizeVolumeAllImagesMissing(t *testing.T) {
	t.Parallel()
	gate, libraryService, store, fq := newTestGate(t)
	finalizer := NewFinalizer(libraryService, store, fq)
	ctx := context.Background()

	volume, jobID := queueProcessing(t, gate, libraryService)
	// None of the result's images exist in the archive. The volume still
	// completes, with no pages and no cover.
	fq.results[jobID] = &queue.Result{
		Success: true,
		Data: &queue.ResultData{
			Version: "0.2.1",
			Pages:   []manifest.Page{resultPage("101.jpg"), resultPage("102.jpg")},
		},
	}

	finalizer.FinalizeVolume(ctx, volume, jobID)

	volume, err := libraryService.RetrieveVolume(ctx, library.RetrieveVolumeOptions{ID: &volume.ID})
	require.NoError(t, err)
	assert.Equal(t, models.VolumeStatusCompleted, volume.Status)
	assert.Equal(t, 0, volume.PageCount)
	assert.Nil(t, volume.CoverURL)
	assert.Nil(t, volume.ProcessingMessage)

	pages, err := libraryService.ListPages(ctx, volume.ID)
	require.NoError(t, err)
	assert.Empty(t, pages)

	manga, err := libraryService.RetrieveManga(ctx, library.RetrieveMangaOptions{ID: &volume.MangaID})
	require.NoError(t, err)
	assert.Equal(t, 0, manga.ProcessingCount)
}

func TestFinalizeVolumeWorkerFailure(t *testing.T) {
	t.Parallel()
	gate, libraryService, store, fq := newTestGate(t)
	finalizer := NewFinalizer(libraryService, store, fq)
	ctx := context.Background()

	volume, jobID := queueProcessing(t, gate, libraryService)
	fq.results[jobID] = &queue.Result{Success: false, Error: "ocr blew up"}

	finalizer.FinalizeVolume(ctx, volume, jobID)

	volume, err := libraryService.RetrieveVolume(ctx, library.RetrieveVolumeOptions{ID: &volume.ID})
	require.NoError(t, err)
	assert.Equal(t, models.VolumeStatusFailed, volume.Status)
	require.NotNil(t, volume.ProcessingMessage)
	assert.Contains(t, *volume.ProcessingMessage, "ocr blew up")
}

func TestFinalizeVolumeNoResult(t *testing.T) {
	t.Parallel()
	gate, libraryService, store, fq := newTestGate(t)
	finalizer := NewFinalizer(libraryService, store, fq)
	ctx := context.Background()

	volume, jobID := queueProcessing(t, gate, libraryService)

	finalizer.FinalizeVolume(ctx, volume, jobID)

	volume, err := libraryService.RetrieveVolume(ctx, library.RetrieveVolumeOptions{ID: &volume.ID})
	require.NoError(t, err)
	assert.Equal(t, models.VolumeStatusFailed, volume.Status)
	require.NotNil(t, volume.ProcessingMessage)
}

func TestFinalizeVolumeTwice(t *testing.T) {
	t.Parallel()
	gate, libraryService, store, fq := newTestGate(t)
	finalizer := NewFinalizer(libraryService, store, fq)
	ctx := context.Background()

	volume, jobID := queueProcessing(t, gate, libraryService)
	fq.results[jobID] = &queue.Result{
		Success: true,
		Data: &queue.ResultData{
			Version: "0.2.1",
			Pages:   []manifest.Page{resultPage("001.jpg"), resultPage("002.jpg")},
		},
	}

	finalizer.FinalizeVolume(ctx, volume, jobID)
	finalizer.FinalizeVolume(ctx, volume, jobID)

	pages, err := libraryService.ListPages(ctx, volume.ID)
	require.NoError(t, err)
	assert.Len(t, pages, 2)
}
