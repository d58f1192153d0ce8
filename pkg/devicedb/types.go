// Package devicedb defines the records extracted from an e-reader's
// on-device reading database and the contract for reading them. The
// concrete sqlite access lives behind the Reader interface so the rest of
// the sync pipeline never touches device storage directly.
package devicedb

import (
	"context"
	"time"
)

// ReadStatus is the device's own three-state reading status.
type ReadStatus int

const (
	StatusUnread   ReadStatus = 0
	StatusReading  ReadStatus = 1
	StatusFinished ReadStatus = 2
)

func (s ReadStatus) String() string {
	switch s {
	case StatusUnread:
		return "Unread"
	case StatusReading:
		return "Reading"
	case StatusFinished:
		return "Finished"
	}
	return "Unknown"
}

// EventType identifies rows in the device's reading event log. Values are
// the device firmware's, not ours.
type EventType int

const (
	EventReadingStarted EventType = 3
	EventBookFinished   EventType = 5
	EventProgress25     EventType = 1011
	EventProgress50     EventType = 1013
	EventProgress75     EventType = 1014
	EventLeaveContent   EventType = 1021
)

// Content type values the device assigns to user-visible books. Everything
// else in the content table is firmware bookkeeping (shortcovers, previews,
// dictionaries) and must never reach the matcher.
const (
	ContentTypeBook     = "6"
	ContentTypeSideload = "9"
)

// Book is one row of the device's content table.
type Book struct {
	ContentID        string
	Title            string
	Author           string
	ISBN             string
	PercentRead      float64 // 0-100 as reported by the device
	ReadStatus       ReadStatus
	TimeSpentReading int // minutes, as the device reports it
	DateLastRead     *time.Time
	ContentType      string
	FileSize         int64
	Series           string
	SeriesNumber     string
}

// EffectivePercentRead returns the book's progress with device quirks
// smoothed out: a finished book reports 100 regardless of the stored
// percentage, and out-of-range values are clamped.
func (b Book) EffectivePercentRead() float64 {
	if b.ReadStatus == StatusFinished {
		return 100
	}
	if b.PercentRead < 0 {
		return 0
	}
	if b.PercentRead > 100 {
		return 100
	}
	return b.PercentRead
}

// IsSystemContent reports whether the row is firmware bookkeeping rather
// than a user book. Rows with no content type at all are treated as user
// content; some sideloaded files carry none.
func (b Book) IsSystemContent() bool {
	if b.ContentType == "" {
		return false
	}
	return b.ContentType != ContentTypeBook && b.ContentType != ContentTypeSideload
}

// Event is one row of the device's analytics event log.
type Event struct {
	ContentID  string
	Type       EventType
	OccurredAt time.Time
}

// Annotation is one row of the device's bookmark table. Kind is one of
// highlight, annotation, bookmark, or dogear.
type Annotation struct {
	ID              string
	VolumeID        string
	Kind            string
	Text            string
	Note            string
	ChapterProgress float64 // 0-1 within the chapter
	CreatedAt       time.Time
}

const (
	AnnotationHighlight = "highlight"
	AnnotationNote      = "annotation"
	AnnotationBookmark  = "bookmark"
	AnnotationDogear    = "dogear"
)

// VocabularyEntry is one word the user looked up in the device dictionary.
type VocabularyEntry struct {
	Text       string
	VolumeID   string
	LookedUpAt time.Time
}

// Reader extracts records from one device's reading database. The sync
// orchestrator opens a reader per connected device, under that device's
// lock, and closes it before releasing the lock.
type Reader interface {
	Books(ctx context.Context) ([]Book, error)
	Events(ctx context.Context) ([]Event, error)
	Annotations(ctx context.Context) ([]Annotation, error)
	Vocabulary(ctx context.Context) ([]VocabularyEntry, error)
	// LastSync is the device's own record of when it last synced, or nil
	// when the reading database holds none.
	LastSync(ctx context.Context) (*time.Time, error)
	Close() error
}

// FilterUserBooks drops firmware bookkeeping rows, returning only books a
// user can actually read.
func FilterUserBooks(books []Book) []Book {
	out := make([]Book, 0, len(books))
	for _, b := range books {
		if b.IsSystemContent() {
			continue
		}
		out = append(out, b)
	}
	return out
}

// FinishedAt returns the timestamp of the book-finished event for the given
// content ID, or nil if the log has none. When a book's DateLastRead is
// missing, the event log is the fallback source for its last-read time.
func FinishedAt(events []Event, contentID string) *time.Time {
	for _, e := range events {
		if e.ContentID == contentID && e.Type == EventBookFinished {
			t := e.OccurredAt
			return &t
		}
	}
	return nil
}
