package reconcile

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/stomybooks/stomy-sync/pkg/devicedb"
	"github.com/stomybooks/stomy-sync/pkg/models"
)

// LibraryWriter persists imported device records. Create calls report
// whether a row was actually inserted; re-importing the same device record
// is a no-op, not an error.
type LibraryWriter interface {
	CreateAnnotation(ctx context.Context, annotation *models.Annotation) (bool, error)
	CreateVocabularyWord(ctx context.Context, word *models.VocabularyWord) (bool, error)
}

// ImportStats counts the outcome of one annotation or vocabulary import.
type ImportStats struct {
	Imported  int // rows newly inserted
	Duplicate int // rows already present from an earlier pass
	Unmatched int // rows whose book could not be resolved
	Errors    int // rows whose write failed
}

// SyncAnnotations imports device annotations for books that resolve to a
// library book. Annotations whose volume cannot be attributed to any
// library book are counted and skipped; a device may hold highlights for
// books the library has never seen. A failed write is counted and the
// import moves on to the next annotation; the first failure is returned
// for logging once the batch is done.
func SyncAnnotations(ctx context.Context, writer LibraryWriter, annotations []devicedb.Annotation, books []*models.Book) (ImportStats, error) {
	stats := ImportStats{}
	var firstErr error
	for _, a := range annotations {
		book := bookForVolume(a.VolumeID, books)
		if book == nil {
			stats.Unmatched++
			continue
		}

		row := &models.Annotation{
			ID:              uuid.NewString(),
			BookID:          book.ID,
			SourceID:        a.ID,
			Kind:            a.Kind,
			Text:            a.Text,
			ChapterProgress: a.ChapterProgress,
			AnnotatedAt:     a.CreatedAt,
		}
		if a.Note != "" {
			note := a.Note
			row.Note = &note
		}

		created, err := writer.CreateAnnotation(ctx, row)
		if err != nil {
			stats.Errors++
			if firstErr == nil {
				firstErr = errors.WithStack(err)
			}
			continue
		}
		if created {
			stats.Imported++
		} else {
			stats.Duplicate++
		}
	}
	return stats, firstErr
}

// SyncVocabulary imports the device's dictionary lookups. Vocabulary is
// stored against the device volume ID rather than a library book; lookups
// are interesting even for books the library doesn't hold. Like
// SyncAnnotations, a failed write never aborts the batch.
func SyncVocabulary(ctx context.Context, writer LibraryWriter, entries []devicedb.VocabularyEntry) (ImportStats, error) {
	stats := ImportStats{}
	var firstErr error
	for _, e := range entries {
		row := &models.VocabularyWord{
			ID:         uuid.NewString(),
			Text:       e.Text,
			VolumeID:   e.VolumeID,
			LookedUpAt: e.LookedUpAt,
		}
		created, err := writer.CreateVocabularyWord(ctx, row)
		if err != nil {
			stats.Errors++
			if firstErr == nil {
				firstErr = errors.WithStack(err)
			}
			continue
		}
		if created {
			stats.Imported++
		} else {
			stats.Duplicate++
		}
	}
	return stats, firstErr
}

// bookForVolume attributes a device volume ID to a library book. Device
// volume IDs are opaque paths or URLs, so attribution is by containment:
// the volume ID mentions the book's file name, title, or an ISBN.
func bookForVolume(volumeID string, books []*models.Book) *models.Book {
	if volumeID == "" {
		return nil
	}
	haystack := strings.ToLower(volumeID)
	for _, book := range books {
		if name := strings.ToLower(baseName(book.Filepath)); name != "" && strings.Contains(haystack, name) {
			return book
		}
		if title := strings.ToLower(book.Title); title != "" && strings.Contains(haystack, title) {
			return book
		}
		for _, isbn := range book.ISBNs() {
			if strings.Contains(haystack, strings.ToLower(isbn)) {
				return book
			}
		}
	}
	return nil
}

func baseName(path string) string {
	if path == "" {
		return ""
	}
	if i := strings.LastIndexAny(path, "/\\"); i >= 0 {
		path = path[i+1:]
	}
	if i := strings.LastIndex(path, "."); i > 0 {
		path = path[:i]
	}
	return path
}
