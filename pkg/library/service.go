// Package library is the local book store. It owns every read and write
// against the application database during a sync pass.
package library

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"github.com/stomybooks/stomy-sync/pkg/database"
	"github.com/stomybooks/stomy-sync/pkg/models"
	"github.com/stomybooks/stomy-sync/pkg/reconcile"
)

const updateMaxRetries = 5

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{
		db: db,
	}
}

// ListBooks returns every book in the library, ordered by ID.
func (s *Service) ListBooks(ctx context.Context) ([]*models.Book, error) {
	books := []*models.Book{}
	err := s.db.NewSelect().
		Model(&books).
		Order("b.id").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return books, nil
}

// GetBook returns one book by ID.
func (s *Service) GetBook(ctx context.Context, id int) (*models.Book, error) {
	book := &models.Book{}
	err := s.db.NewSelect().
		Model(book).
		Where("b.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return book, nil
}

// UpdateBook applies a reconciliation update to a book. Only the columns
// the update carries are written; an empty update is a no-op. The book's
// last device sync time is stamped alongside the update. Writes retry on
// SQLITE_BUSY since a sync pass can race the main application.
func (s *Service) UpdateBook(ctx context.Context, book *models.Book, update reconcile.BookUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	if update.Progress != nil {
		book.Progress = *update.Progress
	}
	if update.ReadStatus != nil {
		book.ReadStatus = *update.ReadStatus
	}
	if update.TimeSpentReading != nil {
		book.TimeSpentReading = *update.TimeSpentReading
	}
	if update.LastReadAt != nil {
		book.LastReadAt = update.LastReadAt
	}
	now := time.Now()
	book.UpdatedAt = now
	book.LastDeviceSyncAt = &now

	columns := append(update.Columns(), "updated_at", "last_device_sync_at")

	return database.RetryOnBusy(ctx, updateMaxRetries, func() error {
		_, err := s.db.NewUpdate().
			Model(book).
			Column(columns...).
			WherePK().
			Exec(ctx)
		return errors.WithStack(err)
	})
}

// CreateAnnotation inserts an imported annotation. Returns false when an
// annotation with the same device source ID already exists.
func (s *Service) CreateAnnotation(ctx context.Context, annotation *models.Annotation) (bool, error) {
	annotation.CreatedAt = time.Now()
	res, err := s.db.NewInsert().
		Model(annotation).
		On("CONFLICT (source_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, errors.WithStack(err)
	}
	return inserted > 0, nil
}

// CreateVocabularyWord inserts an imported dictionary lookup. Returns false
// when the word is already recorded for the same device volume.
func (s *Service) CreateVocabularyWord(ctx context.Context, word *models.VocabularyWord) (bool, error) {
	word.CreatedAt = time.Now()
	res, err := s.db.NewInsert().
		Model(word).
		On("CONFLICT (text, volume_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, errors.WithStack(err)
	}
	return inserted > 0, nil
}

// CreateBook inserts a book. Used by tests and library import tooling.
func (s *Service) CreateBook(ctx context.Context, book *models.Book) error {
	now := time.Now()
	book.CreatedAt = now
	book.UpdatedAt = now
	if book.ReadStatus == "" {
		book.ReadStatus = models.ReadStatusUnread
	}
	_, err := s.db.NewInsert().
		Model(book).
		Exec(ctx)
	return errors.WithStack(err)
}

// AnnotationsForBook returns a book's imported annotations, newest first.
func (s *Service) AnnotationsForBook(ctx context.Context, bookID int) ([]*models.Annotation, error) {
	annotations := []*models.Annotation{}
	err := s.db.NewSelect().
		Model(&annotations).
		Where("a.book_id = ?", bookID).
		Order("a.annotated_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return annotations, nil
}
