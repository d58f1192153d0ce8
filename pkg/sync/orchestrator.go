// Package sync runs full device synchronization passes: read the device's
// reading database, match its books against the library, reconcile
// progress, and import annotations and vocabulary.
package sync

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"

	"github.com/stomybooks/stomy-sync/pkg/config"
	"github.com/stomybooks/stomy-sync/pkg/devicedb"
	"github.com/stomybooks/stomy-sync/pkg/devices"
	"github.com/stomybooks/stomy-sync/pkg/match"
	"github.com/stomybooks/stomy-sync/pkg/models"
	"github.com/stomybooks/stomy-sync/pkg/notify"
	"github.com/stomybooks/stomy-sync/pkg/reconcile"
	"github.com/stomybooks/stomy-sync/pkg/transfer"
)

// State of the orchestrator's current or most recent pass. Detection parks
// back on idle; sync and transfer passes end on completed or failed so a
// status surface can tell a finished pass from one that never ran.
type State string

const (
	StateIdle         State = "idle"
	StateDetecting    State = "detecting"
	StateReading      State = "reading"
	StateReconciling  State = "reconciling"
	StateTransferring State = "transferring"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
)

// ErrNoDevice is returned when a sync is requested and no device is
// connected.
var ErrNoDevice = errors.New("no device connected")

// LibraryService is what the orchestrator needs from the local book store.
type LibraryService interface {
	reconcile.LibraryWriter
	ListBooks(ctx context.Context) ([]*models.Book, error)
	UpdateBook(ctx context.Context, book *models.Book, update reconcile.BookUpdate) error
}

// ReaderOpener opens the reading database of one connected device.
type ReaderOpener func(ctx context.Context, device devices.Device) (devicedb.Reader, error)

// Report is the outcome of one sync pass.
type Report struct {
	Device     devices.Device     `json:"device"`
	Stats      StatsSnapshot      `json:"stats"`
	Matches    []MatchRecord      `json:"matches,omitempty"`
	Outcomes   []transfer.Outcome `json:"outcomes,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// MatchRecord is one matched device book in a report.
type MatchRecord struct {
	DeviceTitle string           `json:"device_title"`
	BookID      int              `json:"book_id"`
	Confidence  match.Confidence `json:"confidence"`
	Updated     bool             `json:"updated"`
}

// Orchestrator coordinates sync and transfer passes. Each instance carries
// its own state and counters; two orchestrators never interfere except
// through device locks.
type Orchestrator struct {
	library    LibraryService
	openReader ReaderOpener
	detector   *devices.Detector
	engine     *transfer.Engine
	locks      *devices.Locker
	settings   *config.SyncSettings
	notifier   notify.Sink
	stats      *Stats
	state      atomic.Value // State
	log        logger.Logger
}

func NewOrchestrator(library LibraryService, openReader ReaderOpener, detector *devices.Detector, engine *transfer.Engine, locks *devices.Locker, settings *config.SyncSettings, notifier notify.Sink) *Orchestrator {
	if notifier == nil || !settings.ShowNotifications {
		notifier = notify.NopSink{}
	}
	o := &Orchestrator{
		library:    library,
		openReader: openReader,
		detector:   detector,
		engine:     engine,
		locks:      locks,
		settings:   settings,
		notifier:   notifier,
		stats:      &Stats{},
		log:        logger.New(),
	}
	o.state.Store(StateIdle)
	return o
}

// State reports what the orchestrator is currently doing.
func (o *Orchestrator) State() State {
	return o.state.Load().(State)
}

// Stats returns a snapshot of the orchestrator's lifetime counters.
func (o *Orchestrator) StatsSnapshot() StatsSnapshot {
	return o.stats.Snapshot()
}

// deviceCtx derives a per-call deadline for one device I/O operation. A
// hung device times out one call; it never hangs the whole pass.
func (o *Orchestrator) deviceCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.settings.DeviceIOTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, o.settings.DeviceIOTimeout)
}

// DetectDevices runs one detection pass.
func (o *Orchestrator) DetectDevices(ctx context.Context) []devices.Device {
	o.state.Store(StateDetecting)
	defer o.state.Store(StateIdle)
	ioCtx, cancel := o.deviceCtx(ctx)
	defer cancel()
	return o.detector.Detect(ioCtx, devices.All())
}

// SyncFirstDevice detects devices and syncs the first one found.
func (o *Orchestrator) SyncFirstDevice(ctx context.Context) (*Report, error) {
	detected := o.DetectDevices(ctx)
	if len(detected) == 0 {
		return nil, errors.WithStack(ErrNoDevice)
	}
	return o.Sync(ctx, detected[0])
}

// Sync runs a full pass against one device. Per-book failures are counted
// and logged but never abort the pass; only a failure to reach the device
// or the library at all is returned as an error. Every reader call runs
// under its own DeviceIOTimeout deadline.
func (o *Orchestrator) Sync(ctx context.Context, device devices.Device) (report *Report, err error) {
	o.state.Store(StateReading)
	defer func() {
		if err != nil {
			o.state.Store(StateFailed)
		} else {
			o.state.Store(StateCompleted)
		}
	}()

	report = &Report{Device: device, StartedAt: time.Now()}
	log := o.log.Root(logger.Data{"device": device.ID})
	log.Info("starting sync")

	release := o.locks.Acquire(device.Key())
	defer release()

	openCtx, cancel := o.deviceCtx(ctx)
	reader, err := o.openReader(openCtx, device)
	cancel()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer reader.Close()

	booksCtx, cancel := o.deviceCtx(ctx)
	deviceBooks, err := reader.Books(booksCtx)
	cancel()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	// Firmware bookkeeping rows are dropped here, once; everything
	// downstream only ever sees user books.
	userBooks := devicedb.FilterUserBooks(deviceBooks)

	eventsCtx, cancel := o.deviceCtx(ctx)
	events, err := reader.Events(eventsCtx)
	cancel()
	if err != nil {
		log.Err(err).Warn("failed to read event log")
		events = nil
	}

	lastSyncCtx, cancel := o.deviceCtx(ctx)
	lastSync, err := reader.LastSync(lastSyncCtx)
	cancel()
	if err != nil {
		log.Err(err).Warn("failed to read device last-sync time")
	} else {
		report.Device.LastSyncAt = lastSync
	}

	libraryBooks, err := o.library.ListBooks(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	o.state.Store(StateReconciling)
	for _, deviceBook := range userBooks {
		if err := ctx.Err(); err != nil {
			return report, errors.WithStack(err)
		}

		o.stats.booksExamined.Add(1)
		result := match.Match(deviceBook, libraryBooks)
		if result == nil {
			o.stats.unmatched.Add(1)
			continue
		}
		o.stats.booksMatched.Add(1)

		record := MatchRecord{
			DeviceTitle: deviceBook.Title,
			BookID:      result.Book.ID,
			Confidence:  result.Confidence,
		}

		if o.settings.SyncReadingProgress {
			if deviceBook.DateLastRead == nil {
				deviceBook.DateLastRead = devicedb.FinishedAt(events, deviceBook.ContentID)
			}
			update := reconcile.BuildUpdate(deviceBook, result.Book, o.settings.MergePolicy)
			if update.IsEmpty() {
				o.stats.noChange.Add(1)
			} else if err := o.library.UpdateBook(ctx, result.Book, update); err != nil {
				o.stats.errors.Add(1)
				log.Err(err).Error("failed to update book", logger.Data{"book_id": result.Book.ID})
			} else {
				o.stats.progressUpdated.Add(1)
				record.Updated = true
			}
		}

		report.Matches = append(report.Matches, record)
	}

	if o.settings.SyncAnnotations {
		o.syncAnnotations(ctx, log, reader, libraryBooks)
	}
	if o.settings.SyncVocabulary {
		o.syncVocabulary(ctx, log, reader)
	}

	report.Stats = o.stats.Snapshot()
	report.FinishedAt = time.Now()
	log.Info("sync finished", logger.Data{
		"matched":  report.Stats.BooksMatched,
		"updated":  report.Stats.ProgressUpdated,
		"errors":   report.Stats.Errors,
		"duration": report.FinishedAt.Sub(report.StartedAt).String(),
	})
	o.notifier.Notify(notify.LevelInfo, "Sync complete",
		fmt.Sprintf("%s: %d books updated", device.Name, report.Stats.ProgressUpdated))
	return report, nil
}

func (o *Orchestrator) syncAnnotations(ctx context.Context, log logger.Logger, reader devicedb.Reader, libraryBooks []*models.Book) {
	readCtx, cancel := o.deviceCtx(ctx)
	annotations, err := reader.Annotations(readCtx)
	cancel()
	if err != nil {
		o.stats.errors.Add(1)
		log.Err(err).Error("failed to read annotations")
		return
	}
	stats, err := reconcile.SyncAnnotations(ctx, o.library, annotations, libraryBooks)
	o.stats.annotationsImported.Add(int64(stats.Imported))
	o.stats.annotationsDuplicate.Add(int64(stats.Duplicate))
	o.stats.errors.Add(int64(stats.Errors))
	if err != nil {
		log.Err(err).Error("failed to import some annotations", logger.Data{"failed": stats.Errors})
	}
}

func (o *Orchestrator) syncVocabulary(ctx context.Context, log logger.Logger, reader devicedb.Reader) {
	readCtx, cancel := o.deviceCtx(ctx)
	entries, err := reader.Vocabulary(readCtx)
	cancel()
	if err != nil {
		o.stats.errors.Add(1)
		log.Err(err).Error("failed to read vocabulary")
		return
	}
	stats, err := reconcile.SyncVocabulary(ctx, o.library, entries)
	o.stats.vocabularyImported.Add(int64(stats.Imported))
	o.stats.errors.Add(int64(stats.Errors))
	if err != nil {
		log.Err(err).Error("failed to import some vocabulary", logger.Data{"failed": stats.Errors})
	}
}

// Transfer copies the given library books onto the device and returns the
// per-book outcomes.
func (o *Orchestrator) Transfer(ctx context.Context, device devices.Device, books []*models.Book, files transfer.FileService, onProgress func(done, total int)) (result transfer.BatchResult, err error) {
	o.state.Store(StateTransferring)
	defer func() {
		if err != nil {
			o.state.Store(StateFailed)
		} else {
			o.state.Store(StateCompleted)
		}
	}()

	jobs := make([]transfer.Job, 0, len(books))
	for _, book := range books {
		targetDir := transfer.TargetDir(device, book, o.settings.TargetFolder, o.settings.LibraryFolderPrefix, o.settings.UseLibraryFolders)
		job, err := transfer.JobForBook(ctx, files, device, book, targetDir)
		if err != nil {
			o.stats.errors.Add(1)
			o.log.Err(err).Error("failed to stat book file", logger.Data{"book_id": book.ID})
			continue
		}
		jobs = append(jobs, job)
	}

	policy := transfer.Policy{
		MaxFileSizeBytes: o.settings.MaxFileSizeBytes(),
		CopyTimeout:      o.settings.DeviceIOTimeout,
	}
	result, err = o.engine.TransferBatch(ctx, device, jobs, policy, onProgress)
	if err != nil {
		return result, err
	}
	o.notifier.Notify(notify.LevelInfo, "Transfer complete", result.Describe())
	return result, nil
}
