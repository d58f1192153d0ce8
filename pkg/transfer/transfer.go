// Package transfer copies library books onto devices. Transfers are gated
// (format support, size ceiling) before any bytes move, serialized per
// device, and reported per book so one bad file never sinks the batch.
package transfer

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"

	"github.com/stomybooks/stomy-sync/pkg/devices"
	"github.com/stomybooks/stomy-sync/pkg/models"
)

// Status of one transfer job.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// SkipReason explains a skipped job.
type SkipReason string

const (
	SkipUnsupportedFormat SkipReason = "unsupported-format"
	SkipTooLarge          SkipReason = "too-large"
)

// Job is one book to copy to one device.
type Job struct {
	Book       *models.Book
	SourcePath string
	TargetDir  string
	SizeBytes  int64
}

// Outcome is the per-job result of a batch.
type Outcome struct {
	Book       *models.Book  `json:"book"`
	Status     Status        `json:"status"`
	SkipReason SkipReason    `json:"skip_reason,omitempty"`
	TargetPath string        `json:"target_path,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// BatchResult summarizes one batch.
type BatchResult struct {
	Outcomes  []Outcome `json:"outcomes"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
}

// Policy carries the transfer limits in effect for one batch.
type Policy struct {
	MaxFileSizeBytes int64         // 0 = unlimited
	CopyTimeout      time.Duration // per-file ceiling; 0 = none
}

// FileService performs the actual file I/O against a device mount.
// Implemented by pkg/localvol for real mounts and pkg/fakedevice in tests.
type FileService interface {
	CreateDirectory(ctx context.Context, path string) error
	CopyFile(ctx context.Context, sourcePath, targetPath string) error
	FileSize(ctx context.Context, path string) (int64, error)
}

// Engine copies books to devices, one device at a time.
type Engine struct {
	files FileService
	locks *devices.Locker
	log   logger.Logger
}

func NewEngine(files FileService, locks *devices.Locker) *Engine {
	return &Engine{
		files: files,
		locks: locks,
		log:   logger.New(),
	}
}

var unsafeFolderChars = regexp.MustCompile(`[/\\:*?"<>|\s]`)

// SanitizeFolderName makes a library name safe as an on-device directory
// name. Reserved filesystem characters and whitespace become dashes; runs
// are kept as-is so distinct names stay distinct.
func SanitizeFolderName(name string) string {
	return unsafeFolderChars.ReplaceAllString(name, "-")
}

// TargetDir resolves the on-device directory a book belongs in. With
// library folders enabled, each library gets its own prefixed folder under
// the device's sync path; otherwise everything lands in the target folder.
func TargetDir(device devices.Device, book *models.Book, targetFolder, libraryPrefix string, useLibraryFolders bool) string {
	if useLibraryFolders && book.LibraryName != "" {
		folder := SanitizeFolderName(libraryPrefix + book.LibraryName)
		return filepath.Join(device.MountPath, folder)
	}
	return filepath.Join(device.MountPath, targetFolder)
}

// JobForBook builds the transfer job for one book.
func JobForBook(ctx context.Context, files FileService, device devices.Device, book *models.Book, targetDir string) (Job, error) {
	size, err := files.FileSize(ctx, book.Filepath)
	if err != nil {
		return Job{}, errors.WithStack(err)
	}
	return Job{
		Book:       book,
		SourcePath: book.Filepath,
		TargetDir:  targetDir,
		SizeBytes:  size,
	}, nil
}

// Transfer copies one book to the device. Gates run before the device lock
// is taken: a skipped job never touches the device at all.
func (e *Engine) Transfer(ctx context.Context, device devices.Device, job Job, policy Policy) Outcome {
	start := time.Now()
	outcome := Outcome{Book: job.Book}

	format := job.Book.FileFormat()
	if !device.SupportsFormat(format) {
		outcome.Status = StatusSkipped
		outcome.SkipReason = SkipUnsupportedFormat
		outcome.Duration = time.Since(start)
		e.log.Info("skipping transfer", logger.Data{
			"book_id": job.Book.ID,
			"format":  format,
			"reason":  string(SkipUnsupportedFormat),
		})
		return outcome
	}

	if policy.MaxFileSizeBytes > 0 && job.SizeBytes > policy.MaxFileSizeBytes {
		outcome.Status = StatusSkipped
		outcome.SkipReason = SkipTooLarge
		outcome.Duration = time.Since(start)
		e.log.Info("skipping transfer", logger.Data{
			"book_id":    job.Book.ID,
			"size_bytes": job.SizeBytes,
			"reason":     string(SkipTooLarge),
		})
		return outcome
	}

	release := e.locks.Acquire(device.Key())
	defer release()

	if policy.CopyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.CopyTimeout)
		defer cancel()
	}

	targetPath := filepath.Join(job.TargetDir, filepath.Base(job.SourcePath))

	// Content-type sniffing is advisory: a mislabeled extension is worth a
	// warning, not a refusal.
	if mtype, err := mimetype.DetectFile(job.SourcePath); err == nil && !formatMatchesMIME(format, mtype) {
		e.log.Warn("file content does not match extension", logger.Data{
			"book_id":   job.Book.ID,
			"extension": format,
			"detected":  mtype.String(),
		})
	}

	if err := e.files.CreateDirectory(ctx, job.TargetDir); err != nil {
		return e.fail(outcome, start, errors.WithStack(err))
	}
	if err := e.files.CopyFile(ctx, job.SourcePath, targetPath); err != nil {
		return e.fail(outcome, start, errors.WithStack(err))
	}

	outcome.Status = StatusCompleted
	outcome.TargetPath = targetPath
	outcome.Duration = time.Since(start)
	return outcome
}

func (e *Engine) fail(outcome Outcome, start time.Time, err error) Outcome {
	e.log.Err(err).Error("transfer failed", logger.Data{"book_id": outcome.Book.ID})
	outcome.Status = StatusFailed
	outcome.Error = err.Error()
	outcome.Duration = time.Since(start)
	return outcome
}

// TransferBatch runs jobs in order, stopping between jobs when the context
// is cancelled. onProgress, when non-nil, is called after each job with the
// cumulative count.
func (e *Engine) TransferBatch(ctx context.Context, device devices.Device, jobs []Job, policy Policy, onProgress func(done, total int)) (BatchResult, error) {
	result := BatchResult{Outcomes: make([]Outcome, 0, len(jobs))}

	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			return result, errors.WithStack(err)
		}

		outcome := e.Transfer(ctx, device, job, policy)
		result.Outcomes = append(result.Outcomes, outcome)
		switch outcome.Status {
		case StatusCompleted:
			result.Completed++
		case StatusFailed:
			result.Failed++
		case StatusSkipped:
			result.Skipped++
		}

		if onProgress != nil {
			onProgress(i+1, len(jobs))
		}
	}

	e.log.Info("batch finished", logger.Data{
		"device":    device.ID,
		"completed": result.Completed,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
	})
	return result, nil
}

// formatMatchesMIME reports whether a detected content type is plausible
// for the file's extension.
func formatMatchesMIME(format string, mtype *mimetype.MIME) bool {
	switch format {
	case "epub", "kepub":
		return mtype.Is("application/epub+zip") || mtype.Is("application/zip")
	case "pdf":
		return mtype.Is("application/pdf")
	case "cbz":
		return mtype.Is("application/zip") || mtype.Is("application/vnd.comicbook+zip")
	case "mobi", "azw", "azw3":
		return mtype.Is("application/x-mobipocket-ebook") || mtype.Is("application/octet-stream")
	case "txt":
		return mtype.Is("text/plain")
	}
	return true
}

// Describe renders a one-line human summary of a batch.
func (r BatchResult) Describe() string {
	return fmt.Sprintf("%d transferred, %d skipped, %d failed", r.Completed, r.Skipped, r.Failed)
}
