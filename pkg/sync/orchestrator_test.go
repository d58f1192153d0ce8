package sync

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/stomybooks/stomy-sync/pkg/config"
	"github.com/stomybooks/stomy-sync/pkg/devicedb"
	"github.com/stomybooks/stomy-sync/pkg/devices"
	"github.com/stomybooks/stomy-sync/pkg/fakedevice"
	"github.com/stomybooks/stomy-sync/pkg/library"
	"github.com/stomybooks/stomy-sync/pkg/migrations"
	"github.com/stomybooks/stomy-sync/pkg/models"
	"github.com/stomybooks/stomy-sync/pkg/reconcile"
	"github.com/stomybooks/stomy-sync/pkg/transfer"
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

func defaultSettings(t *testing.T) *config.SyncSettings {
	t.Helper()
	settings, err := config.LoadSyncSettings("")
	require.NoError(t, err)
	settings.ShowNotifications = false
	return settings
}

func strPtr(s string) *string {
	return &s
}

func newOrchestrator(t *testing.T, lib LibraryService, sim *fakedevice.Simulator, settings *config.SyncSettings) *Orchestrator {
	t.Helper()
	locks := devices.NewLocker()
	openReader := func(_ context.Context, _ devices.Device) (devicedb.Reader, error) {
		return sim, nil
	}
	return NewOrchestrator(lib, openReader, devices.NewDetector(sim), transfer.NewEngine(sim, locks), locks, settings, nil)
}

func seedLibrary(t *testing.T, svc *library.Service) *models.Book {
	t.Helper()
	ctx := context.Background()

	pride := &models.Book{
		Title:            "Pride and Prejudice",
		Author:           "Jane Austen",
		ISBN13:           strPtr("9780141439518"),
		Filepath:         "/library/pride-and-prejudice.epub",
		Progress:         10,
		ReadStatus:       models.ReadStatusReading,
		TimeSpentReading: 1200,
	}
	require.NoError(t, svc.CreateBook(ctx, pride))
	require.NoError(t, svc.CreateBook(ctx, &models.Book{
		Title:    "The Time Machine",
		Author:   "H. G. Wells",
		Filepath: "/library/the-time-machine.epub",
	}))
	require.NoError(t, svc.CreateBook(ctx, &models.Book{
		Title:    "Unrelated Book",
		Author:   "Nobody",
		Filepath: "/library/unrelated.epub",
	}))
	return pride
}

func TestSyncFirstDeviceEndToEnd(t *testing.T) {
	svc := library.NewService(newTestDB(t))
	pride := seedLibrary(t, svc)

	sim := fakedevice.New(fakedevice.Options{})
	settings := defaultSettings(t)
	settings.SyncVocabulary = true
	orch := newOrchestrator(t, svc, sim, settings)
	ctx := context.Background()

	report, err := orch.SyncFirstDevice(ctx)
	require.NoError(t, err)

	assert.Equal(t, devices.TypeKobo, report.Device.Type)
	require.NotNil(t, report.Device.LastSyncAt) // the device's own last-sync record
	assert.Equal(t, int64(3), report.Stats.BooksExamined)
	assert.Equal(t, int64(2), report.Stats.BooksMatched)
	assert.Equal(t, int64(1), report.Stats.Unmatched) // Walden is not in the library
	assert.Equal(t, int64(2), report.Stats.ProgressUpdated)
	assert.Zero(t, report.Stats.Errors)
	assert.Equal(t, int64(3), report.Stats.AnnotationsImported)
	assert.Equal(t, int64(2), report.Stats.VocabularyImported)

	// Device progress 62% beats the library's 10%.
	stored, err := svc.GetBook(ctx, pride.ID)
	require.NoError(t, err)
	assert.Equal(t, 62.0, stored.Progress)
	assert.Equal(t, models.ReadStatusReading, stored.ReadStatus)
	assert.Equal(t, 5400, stored.TimeSpentReading)
	require.NotNil(t, stored.LastReadAt)
	require.NotNil(t, stored.LastDeviceSyncAt)

	// The finished book is promoted to 100% and its last-read time falls
	// back to the book-finished event.
	books, err := svc.ListBooks(ctx)
	require.NoError(t, err)
	var timeMachine *models.Book
	for _, b := range books {
		if b.Title == "The Time Machine" {
			timeMachine = b
		}
	}
	require.NotNil(t, timeMachine)
	assert.Equal(t, 100.0, timeMachine.Progress)
	assert.Equal(t, models.ReadStatusFinished, timeMachine.ReadStatus)
	require.NotNil(t, timeMachine.LastReadAt)

	// A second pass changes nothing and imports no duplicates.
	report, err = orch.SyncFirstDevice(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Stats.ProgressUpdated) // unchanged lifetime counter
	assert.Equal(t, int64(2), report.Stats.NoChange)
	assert.Equal(t, int64(3), report.Stats.AnnotationsImported)
	assert.Equal(t, int64(3), report.Stats.AnnotationsDuplicate)

	assert.Equal(t, StateCompleted, orch.State())
}

func TestSyncFirstDeviceNoDevice(t *testing.T) {
	svc := library.NewService(newTestDB(t))
	sim := fakedevice.New(fakedevice.Options{FailureRate: 1, Seed: 1})
	orch := newOrchestrator(t, svc, sim, defaultSettings(t))

	_, err := orch.SyncFirstDevice(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestSyncRespectsSettings(t *testing.T) {
	svc := library.NewService(newTestDB(t))
	pride := seedLibrary(t, svc)

	sim := fakedevice.New(fakedevice.Options{})
	settings := defaultSettings(t)
	settings.SyncReadingProgress = false
	settings.SyncAnnotations = false
	orch := newOrchestrator(t, svc, sim, settings)
	ctx := context.Background()

	report, err := orch.Sync(ctx, orch.DetectDevices(ctx)[0])
	require.NoError(t, err)

	assert.Zero(t, report.Stats.ProgressUpdated)
	assert.Zero(t, report.Stats.AnnotationsImported)
	assert.Equal(t, int64(2), report.Stats.BooksMatched)

	stored, err := svc.GetBook(ctx, pride.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, stored.Progress)
}

// failingLibrary wraps a real library service but fails updates for one
// book.
type failingLibrary struct {
	*library.Service
	failBookID int
}

func (f *failingLibrary) UpdateBook(ctx context.Context, book *models.Book, update reconcile.BookUpdate) error {
	if book.ID == f.failBookID {
		return errors.New("disk I/O error")
	}
	return f.Service.UpdateBook(ctx, book, update)
}

func TestSyncContinuesPastBookFailures(t *testing.T) {
	svc := library.NewService(newTestDB(t))
	pride := seedLibrary(t, svc)

	sim := fakedevice.New(fakedevice.Options{})
	orch := newOrchestrator(t, &failingLibrary{Service: svc, failBookID: pride.ID}, sim, defaultSettings(t))
	ctx := context.Background()

	report, err := orch.Sync(ctx, orch.DetectDevices(ctx)[0])
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.Stats.Errors)
	assert.Equal(t, int64(1), report.Stats.ProgressUpdated)

	// The failed book kept its state; the other matched book still
	// updated.
	stored, err := svc.GetBook(ctx, pride.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, stored.Progress)
}

func TestSyncStopsOnCancel(t *testing.T) {
	svc := library.NewService(newTestDB(t))
	seedLibrary(t, svc)

	sim := fakedevice.New(fakedevice.Options{})
	orch := newOrchestrator(t, svc, sim, defaultSettings(t))

	device := orch.DetectDevices(context.Background())[0]

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := orch.Sync(ctx, device)
	require.Error(t, err)
	assert.Equal(t, StateFailed, orch.State())
}

// blockingReader models a hung device: every read blocks until its context
// expires.
type blockingReader struct{}

func (blockingReader) Books(ctx context.Context) ([]devicedb.Book, error) {
	<-ctx.Done()
	return nil, errors.WithStack(ctx.Err())
}

func (blockingReader) Events(ctx context.Context) ([]devicedb.Event, error) {
	<-ctx.Done()
	return nil, errors.WithStack(ctx.Err())
}

func (blockingReader) Annotations(ctx context.Context) ([]devicedb.Annotation, error) {
	<-ctx.Done()
	return nil, errors.WithStack(ctx.Err())
}

func (blockingReader) Vocabulary(ctx context.Context) ([]devicedb.VocabularyEntry, error) {
	<-ctx.Done()
	return nil, errors.WithStack(ctx.Err())
}

func (blockingReader) LastSync(ctx context.Context) (*time.Time, error) {
	<-ctx.Done()
	return nil, errors.WithStack(ctx.Err())
}

func (blockingReader) Close() error { return nil }

func TestSyncBoundsDeviceReads(t *testing.T) {
	svc := library.NewService(newTestDB(t))
	sim := fakedevice.New(fakedevice.Options{})

	settings := defaultSettings(t)
	settings.DeviceIOTimeout = 50 * time.Millisecond

	locks := devices.NewLocker()
	openReader := func(_ context.Context, _ devices.Device) (devicedb.Reader, error) {
		return blockingReader{}, nil
	}
	orch := NewOrchestrator(svc, openReader, devices.NewDetector(sim), transfer.NewEngine(sim, locks), locks, settings, nil)

	device := orch.DetectDevices(context.Background())[0]

	// The reader never returns on its own; the pass must time out rather
	// than hang.
	done := make(chan struct{})
	var syncErr error
	go func() {
		_, syncErr = orch.Sync(context.Background(), device)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sync never returned against a hung device")
	}

	require.Error(t, syncErr)
	assert.ErrorIs(t, syncErr, context.DeadlineExceeded)
	assert.Equal(t, StateFailed, orch.State())
}

func TestTransferThroughOrchestrator(t *testing.T) {
	svc := library.NewService(newTestDB(t))
	pride := seedLibrary(t, svc)

	sim := fakedevice.New(fakedevice.Options{})
	sim.WriteFile(pride.Filepath, make([]byte, 4096))
	settings := defaultSettings(t)
	orch := newOrchestrator(t, svc, sim, settings)
	ctx := context.Background()

	device := orch.DetectDevices(ctx)[0]
	result, err := orch.Transfer(ctx, device, []*models.Book{pride}, sim, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)
	assert.True(t, sim.HasFile("/Volumes/KOBOeReader/Books/pride-and-prejudice.epub"))
}

func TestTransferUsesLibraryFolders(t *testing.T) {
	svc := library.NewService(newTestDB(t))

	book := &models.Book{
		Title:       "Dune",
		LibraryName: "Sci-Fi/Fantasy: Picks",
		Filepath:    "/library/dune.epub",
	}
	require.NoError(t, svc.CreateBook(context.Background(), book))

	sim := fakedevice.New(fakedevice.Options{})
	sim.WriteFile(book.Filepath, make([]byte, 4096))
	settings := defaultSettings(t)
	settings.UseLibraryFolders = true
	orch := newOrchestrator(t, svc, sim, settings)
	ctx := context.Background()

	device := orch.DetectDevices(ctx)[0]
	result, err := orch.Transfer(ctx, device, []*models.Book{book}, sim, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)
	assert.True(t, sim.HasFile("/Volumes/KOBOeReader/Stomy-Sci-Fi-Fantasy--Picks/dune.epub"))
}
