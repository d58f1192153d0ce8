package transfer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stomybooks/stomy-sync/pkg/devices"
	"github.com/stomybooks/stomy-sync/pkg/models"
)

type fakeFiles struct {
	dirs        []string
	copies      [][2]string
	sizes       map[string]int64
	copyErr     error
	createError error
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{sizes: map[string]int64{}}
}

func (f *fakeFiles) CreateDirectory(_ context.Context, path string) error {
	if f.createError != nil {
		return f.createError
	}
	f.dirs = append(f.dirs, path)
	return nil
}

func (f *fakeFiles) CopyFile(_ context.Context, sourcePath, targetPath string) error {
	if f.copyErr != nil {
		return f.copyErr
	}
	f.copies = append(f.copies, [2]string{sourcePath, targetPath})
	return nil
}

func (f *fakeFiles) FileSize(_ context.Context, path string) (int64, error) {
	size, ok := f.sizes[path]
	if !ok {
		return 0, errors.New("no such file")
	}
	return size, nil
}

func koboDevice() devices.Device {
	profile, _ := devices.Lookup(devices.TypeKobo)
	return devices.Device{
		ID:               "kobo-KOBOeReader",
		Type:             devices.TypeKobo,
		MountPath:        "/Volumes/KOBOeReader",
		SupportedFormats: profile.SupportedFormats,
	}
}

func TestSanitizeFolderName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       string
		expected string
	}{
		{"Stomy-Sci-Fi/Fantasy: Picks", "Stomy-Sci-Fi-Fantasy--Picks"},
		{"Books", "Books"},
		{`a\b:c*d?e"f<g>h|i`, "a-b-c-d-e-f-g-h-i"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, SanitizeFolderName(tt.in))
		})
	}
}

func TestTargetDir(t *testing.T) {
	t.Parallel()

	device := koboDevice()
	book := &models.Book{LibraryName: "Sci-Fi/Fantasy: Picks"}

	dir := TargetDir(device, book, "Books", "Stomy-", true)
	assert.Equal(t, filepath.Join("/Volumes/KOBOeReader", "Stomy-Sci-Fi-Fantasy--Picks"), dir)

	dir = TargetDir(device, book, "Books", "Stomy-", false)
	assert.Equal(t, filepath.Join("/Volumes/KOBOeReader", "Books"), dir)

	// A book with no library falls back to the target folder even with
	// library folders enabled.
	dir = TargetDir(device, &models.Book{}, "Books", "Stomy-", true)
	assert.Equal(t, filepath.Join("/Volumes/KOBOeReader", "Books"), dir)
}

func TestTransferCompletes(t *testing.T) {
	t.Parallel()

	files := newFakeFiles()
	engine := NewEngine(files, devices.NewLocker())
	device := koboDevice()
	job := Job{
		Book:       &models.Book{ID: 1, Filepath: "/library/dune.epub"},
		SourcePath: "/library/dune.epub",
		TargetDir:  "/Volumes/KOBOeReader/Books",
		SizeBytes:  3 << 20,
	}

	outcome := engine.Transfer(context.Background(), device, job, Policy{})

	assert.Equal(t, StatusCompleted, outcome.Status)
	assert.Equal(t, "/Volumes/KOBOeReader/Books/dune.epub", outcome.TargetPath)
	require.Len(t, files.copies, 1)
	assert.Equal(t, [2]string{"/library/dune.epub", "/Volumes/KOBOeReader/Books/dune.epub"}, files.copies[0])
	assert.Equal(t, []string{"/Volumes/KOBOeReader/Books"}, files.dirs)
}

func TestTransferSkipsUnsupportedFormat(t *testing.T) {
	t.Parallel()

	files := newFakeFiles()
	engine := NewEngine(files, devices.NewLocker())
	job := Job{
		Book:       &models.Book{ID: 1, Filepath: "/library/comic.cbr"},
		SourcePath: "/library/comic.cbr",
		TargetDir:  "/Volumes/KOBOeReader/Books",
	}

	outcome := engine.Transfer(context.Background(), koboDevice(), job, Policy{})

	assert.Equal(t, StatusSkipped, outcome.Status)
	assert.Equal(t, SkipUnsupportedFormat, outcome.SkipReason)
	assert.Empty(t, files.copies)
	assert.Empty(t, files.dirs)
}

func TestTransferSkipsOversizedFile(t *testing.T) {
	t.Parallel()

	files := newFakeFiles()
	engine := NewEngine(files, devices.NewLocker())
	job := Job{
		Book:       &models.Book{ID: 1, Filepath: "/library/atlas.pdf"},
		SourcePath: "/library/atlas.pdf",
		TargetDir:  "/Volumes/KOBOeReader/Books",
		SizeBytes:  101 << 20,
	}

	outcome := engine.Transfer(context.Background(), koboDevice(), job, Policy{MaxFileSizeBytes: 100 << 20})

	assert.Equal(t, StatusSkipped, outcome.Status)
	assert.Equal(t, SkipTooLarge, outcome.SkipReason)
	assert.Empty(t, files.copies)
}

func TestTransferAtSizeLimitProceeds(t *testing.T) {
	t.Parallel()

	files := newFakeFiles()
	engine := NewEngine(files, devices.NewLocker())
	job := Job{
		Book:       &models.Book{ID: 1, Filepath: "/library/atlas.pdf"},
		SourcePath: "/library/atlas.pdf",
		TargetDir:  "/Volumes/KOBOeReader/Books",
		SizeBytes:  100 << 20,
	}

	outcome := engine.Transfer(context.Background(), koboDevice(), job, Policy{MaxFileSizeBytes: 100 << 20})

	assert.Equal(t, StatusCompleted, outcome.Status)
}

func TestTransferCopyFailure(t *testing.T) {
	t.Parallel()

	files := newFakeFiles()
	files.copyErr = errors.New("device disconnected")
	engine := NewEngine(files, devices.NewLocker())
	job := Job{
		Book:       &models.Book{ID: 1, Filepath: "/library/dune.epub"},
		SourcePath: "/library/dune.epub",
		TargetDir:  "/Volumes/KOBOeReader/Books",
	}

	outcome := engine.Transfer(context.Background(), koboDevice(), job, Policy{})

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Contains(t, outcome.Error, "device disconnected")
}

func TestTransferBatchContinuesPastFailures(t *testing.T) {
	t.Parallel()

	files := newFakeFiles()
	files.createError = errors.New("read-only filesystem")
	engine := NewEngine(files, devices.NewLocker())
	jobs := []Job{
		{Book: &models.Book{ID: 1, Filepath: "/library/a.epub"}, SourcePath: "/library/a.epub", TargetDir: "/d/Books"},
		{Book: &models.Book{ID: 2, Filepath: "/library/b.cbr"}, SourcePath: "/library/b.cbr", TargetDir: "/d/Books"},
		{Book: &models.Book{ID: 3, Filepath: "/library/c.epub"}, SourcePath: "/library/c.epub", TargetDir: "/d/Books"},
	}

	var progress []int
	result, err := engine.TransferBatch(context.Background(), koboDevice(), jobs, Policy{}, func(done, total int) {
		progress = append(progress, done)
		assert.Equal(t, 3, total)
	})

	require.NoError(t, err)
	assert.Equal(t, 0, result.Completed)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, []int{1, 2, 3}, progress)
	assert.Equal(t, "0 transferred, 1 skipped, 2 failed", result.Describe())
}

func TestTransferBatchStopsOnCancel(t *testing.T) {
	t.Parallel()

	files := newFakeFiles()
	engine := NewEngine(files, devices.NewLocker())
	jobs := []Job{
		{Book: &models.Book{ID: 1, Filepath: "/library/a.epub"}, SourcePath: "/library/a.epub", TargetDir: "/d/Books"},
		{Book: &models.Book{ID: 2, Filepath: "/library/b.epub"}, SourcePath: "/library/b.epub", TargetDir: "/d/Books"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	count := 0
	result, err := engine.TransferBatch(ctx, koboDevice(), jobs, Policy{}, func(done, total int) {
		count++
		cancel()
	})

	require.Error(t, err)
	assert.ErrorIs(t, errors.Cause(err), context.Canceled)
	assert.Equal(t, 1, count)
	assert.Len(t, result.Outcomes, 1)
}

func TestTransferCopyTimeout(t *testing.T) {
	t.Parallel()

	job := Job{
		Book:       &models.Book{ID: 1, Filepath: "/library/dune.epub"},
		SourcePath: "/library/dune.epub",
		TargetDir:  "/d/Books",
	}

	// The timeout context is plumbed through to the file service.
	slow := &slowFiles{fakeFiles: newFakeFiles(), delay: 50 * time.Millisecond}
	engine := NewEngine(slow, devices.NewLocker())
	outcome := engine.Transfer(context.Background(), koboDevice(), job, Policy{CopyTimeout: time.Millisecond})

	assert.Equal(t, StatusFailed, outcome.Status)
}

type slowFiles struct {
	*fakeFiles
	delay time.Duration
}

func (s *slowFiles) CopyFile(ctx context.Context, sourcePath, targetPath string) error {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.fakeFiles.CopyFile(ctx, sourcePath, targetPath)
}

func TestJobForBook(t *testing.T) {
	t.Parallel()

	files := newFakeFiles()
	files.sizes["/library/dune.epub"] = 2048
	book := &models.Book{ID: 1, Filepath: "/library/dune.epub"}

	job, err := JobForBook(context.Background(), files, koboDevice(), book, "/d/Books")

	require.NoError(t, err)
	assert.Equal(t, int64(2048), job.SizeBytes)
	assert.Equal(t, "/library/dune.epub", job.SourcePath)

	_, err = JobForBook(context.Background(), files, koboDevice(), &models.Book{Filepath: "/library/missing.epub"}, "/d/Books")
	assert.Error(t, err)
}
