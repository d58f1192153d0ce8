// Package reconcile merges device-reported reading state into library
// books. The merge is field-by-field: each update carries only the columns
// that actually changed, so an up-to-date library book yields no write at
// all.
package reconcile

import (
	"time"

	"github.com/stomybooks/stomy-sync/pkg/config"
	"github.com/stomybooks/stomy-sync/pkg/devicedb"
	"github.com/stomybooks/stomy-sync/pkg/models"
)

// BookUpdate holds the columns a reconciliation pass wants to write. Nil
// fields are untouched.
type BookUpdate struct {
	Progress         *float64
	ReadStatus       *string
	TimeSpentReading *int
	LastReadAt       *time.Time
}

// IsEmpty reports whether the update would write nothing.
func (u BookUpdate) IsEmpty() bool {
	return u.Progress == nil && u.ReadStatus == nil && u.TimeSpentReading == nil && u.LastReadAt == nil
}

// Columns returns the database column names the update touches.
func (u BookUpdate) Columns() []string {
	cols := make([]string, 0, 4)
	if u.Progress != nil {
		cols = append(cols, "progress")
	}
	if u.ReadStatus != nil {
		cols = append(cols, "read_status")
	}
	if u.TimeSpentReading != nil {
		cols = append(cols, "time_spent_reading")
	}
	if u.LastReadAt != nil {
		cols = append(cols, "last_read_at")
	}
	return cols
}

// statusFor maps the device tri-state onto library read statuses. A device
// claiming "reading" with zero progress has merely opened the book; that is
// not enough to call it in-progress.
func statusFor(deviceBook devicedb.Book) string {
	switch deviceBook.ReadStatus {
	case devicedb.StatusReading:
		if deviceBook.EffectivePercentRead() > 0 {
			return models.ReadStatusReading
		}
	case devicedb.StatusFinished:
		return models.ReadStatusFinished
	}
	return models.ReadStatusUnread
}

// BuildUpdate computes the columns to write for one matched book under the
// given merge policy.
//
// The monotonic policy never moves a book backwards: progress only
// increases, read status only advances along unread < reading < finished,
// and reading time only grows. Last-writer-wins takes the device values
// whenever they differ, and is intended for users who deliberately reset
// progress on the device.
func BuildUpdate(deviceBook devicedb.Book, book *models.Book, policy string) BookUpdate {
	update := BookUpdate{}

	progress := deviceBook.EffectivePercentRead()
	status := statusFor(deviceBook)
	// Devices report reading time in minutes; the library stores seconds.
	readingTime := deviceBook.TimeSpentReading * 60

	switch policy {
	case config.MergePolicyLastWriterWins:
		if progress != book.Progress {
			update.Progress = &progress
		}
		if status != book.ReadStatus {
			update.ReadStatus = &status
		}
		if readingTime != book.TimeSpentReading {
			update.TimeSpentReading = &readingTime
		}
	default: // monotonic
		if progress > book.Progress {
			update.Progress = &progress
		}
		if models.ReadStatusRank(status) > models.ReadStatusRank(book.ReadStatus) {
			update.ReadStatus = &status
		}
		if readingTime > book.TimeSpentReading {
			update.TimeSpentReading = &readingTime
		}
	}

	if deviceBook.DateLastRead != nil {
		if book.LastReadAt == nil || deviceBook.DateLastRead.After(*book.LastReadAt) {
			t := *deviceBook.DateLastRead
			update.LastReadAt = &t
		}
	}

	return update
}
