package fakedevice

import (
	"context"
	"time"

	"github.com/stomybooks/stomy-sync/pkg/devicedb"
)

// SampleLibrary is the reading database content of the simulated device.
type SampleLibrary struct {
	Books       []devicedb.Book
	Events      []devicedb.Event
	Annotations []devicedb.Annotation
	Vocabulary  []devicedb.VocabularyEntry
	LastSync    time.Time
}

// NewSampleLibrary builds the fixed sample reading database. The data is
// deterministic so assertions in tests and demo output stay stable: one
// book mid-read, one finished, one untouched, plus a couple of firmware
// rows that the system-content filter must drop.
func NewSampleLibrary() SampleLibrary {
	base := time.Date(2026, 2, 10, 20, 0, 0, 0, time.UTC)
	midRead := base.Add(5 * 24 * time.Hour)
	finished := base.Add(9 * 24 * time.Hour)

	books := []devicedb.Book{
		{
			ContentID:        "file:///mnt/onboard/pride-and-prejudice.epub",
			Title:            "Pride and Prejudice",
			Author:           "Jane Austen",
			ISBN:             "9780141439518",
			PercentRead:      62,
			ReadStatus:       devicedb.StatusReading,
			TimeSpentReading: 90,
			DateLastRead:     &midRead,
			ContentType:      devicedb.ContentTypeSideload,
			FileSize:         1024,
		},
		{
			ContentID:        "file:///mnt/onboard/the-time-machine.epub",
			Title:            "The Time Machine",
			Author:           "H. G. Wells",
			PercentRead:      87,
			ReadStatus:       devicedb.StatusFinished,
			TimeSpentReading: 236,
			ContentType:      devicedb.ContentTypeSideload,
			FileSize:         1024,
		},
		{
			ContentID:   "file:///mnt/onboard/walden.epub",
			Title:       "Walden",
			Author:      "Henry David Thoreau",
			PercentRead: 0,
			ReadStatus:  devicedb.StatusUnread,
			ContentType: devicedb.ContentTypeSideload,
			FileSize:    1024,
		},
		{
			ContentID:   "kobo://dictionary/en",
			Title:       "English Dictionary",
			ContentType: "899",
		},
		{
			ContentID:   "kobo://preview/some-title",
			Title:       "Preview: Some Title",
			ContentType: "3",
		},
	}

	events := []devicedb.Event{
		{ContentID: books[0].ContentID, Type: devicedb.EventReadingStarted, OccurredAt: base},
		{ContentID: books[0].ContentID, Type: devicedb.EventProgress50, OccurredAt: midRead},
		{ContentID: books[1].ContentID, Type: devicedb.EventReadingStarted, OccurredAt: base.Add(24 * time.Hour)},
		{ContentID: books[1].ContentID, Type: devicedb.EventProgress75, OccurredAt: finished.Add(-24 * time.Hour)},
		{ContentID: books[1].ContentID, Type: devicedb.EventBookFinished, OccurredAt: finished},
		{ContentID: books[1].ContentID, Type: devicedb.EventLeaveContent, OccurredAt: finished.Add(time.Minute)},
	}

	annotations := []devicedb.Annotation{
		{
			ID:              "fake-bm-1",
			VolumeID:        books[0].ContentID,
			Kind:            devicedb.AnnotationHighlight,
			Text:            "It is a truth universally acknowledged",
			ChapterProgress: 0.01,
			CreatedAt:       base.Add(26 * time.Hour),
		},
		{
			ID:              "fake-bm-2",
			VolumeID:        books[0].ContentID,
			Kind:            devicedb.AnnotationNote,
			Text:            "She is tolerable, but not handsome enough to tempt me",
			Note:            "Darcy at his worst",
			ChapterProgress: 0.08,
			CreatedAt:       base.Add(28 * time.Hour),
		},
		{
			ID:        "fake-bm-3",
			VolumeID:  books[1].ContentID,
			Kind:      devicedb.AnnotationDogear,
			CreatedAt: finished.Add(-48 * time.Hour),
		},
	}

	vocabulary := []devicedb.VocabularyEntry{
		{Text: "obsequiousness", VolumeID: books[0].ContentID, LookedUpAt: base.Add(30 * time.Hour)},
		{Text: "palaeontology", VolumeID: books[1].ContentID, LookedUpAt: base.Add(50 * time.Hour)},
	}

	return SampleLibrary{
		Books:       books,
		Events:      events,
		Annotations: annotations,
		Vocabulary:  vocabulary,
		LastSync:    finished.Add(2 * time.Hour),
	}
}

// Books returns the simulated content table.
func (s *Simulator) Books(ctx context.Context) ([]devicedb.Book, error) {
	if err := s.step(ctx, "read-books"); err != nil {
		return nil, err
	}
	return append([]devicedb.Book{}, s.library.Books...), nil
}

func (s *Simulator) Events(ctx context.Context) ([]devicedb.Event, error) {
	if err := s.step(ctx, "read-events"); err != nil {
		return nil, err
	}
	return append([]devicedb.Event{}, s.library.Events...), nil
}

func (s *Simulator) Annotations(ctx context.Context) ([]devicedb.Annotation, error) {
	if err := s.step(ctx, "read-annotations"); err != nil {
		return nil, err
	}
	return append([]devicedb.Annotation{}, s.library.Annotations...), nil
}

func (s *Simulator) Vocabulary(ctx context.Context) ([]devicedb.VocabularyEntry, error) {
	if err := s.step(ctx, "read-vocabulary"); err != nil {
		return nil, err
	}
	return append([]devicedb.VocabularyEntry{}, s.library.Vocabulary...), nil
}

func (s *Simulator) LastSync(ctx context.Context) (*time.Time, error) {
	if err := s.step(ctx, "read-last-sync"); err != nil {
		return nil, err
	}
	t := s.library.LastSync
	return &t, nil
}

func (s *Simulator) Close() error {
	return nil
}
