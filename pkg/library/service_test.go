package library

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/stomybooks/stomy-sync/pkg/migrations"
	"github.com/stomybooks/stomy-sync/pkg/models"
	"github.com/stomybooks/stomy-sync/pkg/reconcile"
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

func seedBook(t *testing.T, svc *Service, book *models.Book) *models.Book {
	t.Helper()
	require.NoError(t, svc.CreateBook(context.Background(), book))
	return book
}

func strPtr(s string) *string {
	return &s
}

func TestListBooks(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	seedBook(t, svc, &models.Book{Title: "Dune", Author: "Frank Herbert", Filepath: "/library/dune.epub"})
	seedBook(t, svc, &models.Book{Title: "Emma", Author: "Jane Austen", ISBN13: strPtr("9780141439587")})

	books, err := svc.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "Dune", books[0].Title)
	assert.Equal(t, models.ReadStatusUnread, books[0].ReadStatus)
	assert.Equal(t, "Emma", books[1].Title)
}

func TestUpdateBook(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	book := seedBook(t, svc, &models.Book{Title: "Dune", Author: "Frank Herbert"})

	progress := 62.0
	status := models.ReadStatusReading
	readingTime := 5400
	lastRead := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	update := reconcile.BookUpdate{
		Progress:         &progress,
		ReadStatus:       &status,
		TimeSpentReading: &readingTime,
		LastReadAt:       &lastRead,
	}

	require.NoError(t, svc.UpdateBook(ctx, book, update))

	stored, err := svc.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 62.0, stored.Progress)
	assert.Equal(t, models.ReadStatusReading, stored.ReadStatus)
	assert.Equal(t, 5400, stored.TimeSpentReading)
	require.NotNil(t, stored.LastReadAt)
	assert.True(t, stored.LastReadAt.Equal(lastRead))
	assert.NotNil(t, stored.LastDeviceSyncAt)
}

func TestUpdateBookEmptyUpdateIsNoop(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	book := seedBook(t, svc, &models.Book{Title: "Dune", Progress: 30})

	require.NoError(t, svc.UpdateBook(ctx, book, reconcile.BookUpdate{}))

	stored, err := svc.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 30.0, stored.Progress)
	assert.Nil(t, stored.LastDeviceSyncAt)
}

func TestUpdateBookPartialColumns(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	book := seedBook(t, svc, &models.Book{Title: "Dune", Progress: 30, TimeSpentReading: 1200})

	progress := 45.0
	require.NoError(t, svc.UpdateBook(ctx, book, reconcile.BookUpdate{Progress: &progress}))

	stored, err := svc.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 45.0, stored.Progress)
	// Untouched columns keep their values.
	assert.Equal(t, 1200, stored.TimeSpentReading)
}

func TestCreateAnnotationDeduplicates(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	book := seedBook(t, svc, &models.Book{Title: "Dune"})

	annotation := &models.Annotation{
		ID:          "a1",
		BookID:      book.ID,
		SourceID:    "device-bm-1",
		Kind:        models.AnnotationKindHighlight,
		Text:        "Fear is the mind-killer",
		AnnotatedAt: time.Now(),
	}

	created, err := svc.CreateAnnotation(ctx, annotation)
	require.NoError(t, err)
	assert.True(t, created)

	// Same device bookmark, new row ID: a repeated sync pass.
	duplicate := &models.Annotation{
		ID:          "a2",
		BookID:      book.ID,
		SourceID:    "device-bm-1",
		Kind:        models.AnnotationKindHighlight,
		Text:        "Fear is the mind-killer",
		AnnotatedAt: time.Now(),
	}
	created, err = svc.CreateAnnotation(ctx, duplicate)
	require.NoError(t, err)
	assert.False(t, created)

	annotations, err := svc.AnnotationsForBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Len(t, annotations, 1)
}

func TestCreateVocabularyWordDeduplicates(t *testing.T) {
	svc := NewService(newTestDB(t))
	ctx := context.Background()

	created, err := svc.CreateVocabularyWord(ctx, &models.VocabularyWord{
		ID:         "v1",
		Text:       "melange",
		VolumeID:   "file:///dune.epub",
		LookedUpAt: time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.CreateVocabularyWord(ctx, &models.VocabularyWord{
		ID:         "v2",
		Text:       "melange",
		VolumeID:   "file:///dune.epub",
		LookedUpAt: time.Now(),
	})
	require.NoError(t, err)
	assert.False(t, created)

	// Same word in a different book is a distinct row.
	created, err = svc.CreateVocabularyWord(ctx, &models.VocabularyWord{
		ID:         "v3",
		Text:       "melange",
		VolumeID:   "file:///heretics-of-dune.epub",
		LookedUpAt: time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, created)
}
