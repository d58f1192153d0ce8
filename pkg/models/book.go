package models

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// Read status values for a library book. These mirror the tri-state
// classification used by e-reader devices (unread/reading/finished) and are
// independent of the percent-read value.
const (
	ReadStatusUnread   = "unread"
	ReadStatusReading  = "reading"
	ReadStatusFinished = "finished"
)

type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID          int       `bun:",pk,nullzero" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	LibraryName string    `bun:",nullzero" json:"library_name"`
	Title       string    `bun:",nullzero" json:"title"`
	Author      string    `bun:",nullzero" json:"author"`
	ISBN10      *string   `json:"isbn10"`
	ISBN13      *string   `json:"isbn13"`
	Filepath    string    `bun:",nullzero" json:"filepath"`

	// Reading progress fields, updated by device sync passes.
	Progress         float64    `json:"progress"` // percent read, 0-100
	ReadStatus       string     `bun:",nullzero,default:'unread'" json:"read_status"`
	TimeSpentReading int        `json:"time_spent_reading"` // seconds
	LastReadAt       *time.Time `json:"last_read_at"`
	LastDeviceSyncAt *time.Time `json:"last_device_sync_at"`
}

// FileFormat returns the lowercased file extension of the book's file,
// without the leading dot. Empty when the book has no file path.
func (b *Book) FileFormat() string {
	ext := filepath.Ext(b.Filepath)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ISBNs returns the book's non-empty ISBNs (13 first, then 10).
func (b *Book) ISBNs() []string {
	isbns := make([]string, 0, 2)
	if b.ISBN13 != nil && *b.ISBN13 != "" {
		isbns = append(isbns, *b.ISBN13)
	}
	if b.ISBN10 != nil && *b.ISBN10 != "" {
		isbns = append(isbns, *b.ISBN10)
	}
	return isbns
}

// ReadStatusRank orders read statuses for monotonic merges: unread <
// reading < finished. Unknown statuses rank lowest.
func ReadStatusRank(status string) int {
	switch status {
	case ReadStatusReading:
		return 1
	case ReadStatusFinished:
		return 2
	default:
		return 0
	}
}
