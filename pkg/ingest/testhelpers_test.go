package ingest

import (
	"archive/zip"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/mangabako/mangabako/pkg/library"
	"github.com/mangabako/mangabako/pkg/migrations"
	"github.com/mangabako/mangabako/pkg/queue"
	"github.com/mangabako/mangabako/pkg/storage"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

type fakeQueue struct {
	jobs       []*queue.Job
	results    map[string]*queue.Result
	enqueueErr error
}

func (f *fakeQueue) Enqueue(_ context.Context, job *queue.Job) error {
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeQueue) Length(_ context.Context) (int64, error) {
	return int64(len(f.jobs)), nil
}

func (f *fakeQueue) Result(_ context.Context, jobID string) (*queue.Result, error) {
	result, ok := f.results[jobID]
	if !ok {
		return nil, queue.ErrNoResult
	}
	return result, nil
}

func newTestGate(t *testing.T) (*Gate, *library.Service, *storage.Manager, *fakeQueue) {
	t.Helper()

	store, err := storage.New(t.TempDir(), "http://localhost:3000")
	require.NoError(t, err)

	libraryService := library.NewService(newTestDB(t), store)
	fq := &fakeQueue{results: map[string]*queue.Result{}}

	return NewGate(libraryService, store, fq), libraryService, store, fq
}

// makeZip writes a zip with the given entries to a temp file and returns its
// path.
func makeZip(t *testing.T, entries map[string][]byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, data := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	return path
}

const testManifest = `[
	{"img_path": "Dandadan v1/001.jpg", "img_width": 800, "img_height": 1200, "version": "0.2.1",
	 "blocks": [{"box": [10, 20, 110, 220], "vertical": true, "font_size": 22, "lines": ["テスト"]}]},
	{"img_path": "Dandadan v1/002.jpg", "img_width": 800, "img_height": 1200, "version": "0.2.1", "blocks": []}
]`

func makeReadyArchive(t *testing.T) string {
	t.Helper()
	return makeZip(t, map[string][]byte{
		"Dandadan v1.manifest":  []byte(testManifest),
		"Dandadan v1/001.jpg":   []byte("image-one"),
		"Dandadan v1/002.jpg":   []byte("image-two"),
		"Dandadan v1/cover.jpg": []byte("cover-image"),
	})
}

func makeRawArchive(t *testing.T) string {
	t.Helper()
	return makeZip(t, map[string][]byte{
		"Dandadan v1/001.jpg": []byte("image-one"),
		"Dandadan v1/002.jpg": []byte("image-two"),
	})
}
