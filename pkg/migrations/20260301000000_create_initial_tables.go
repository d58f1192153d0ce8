package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE books (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				library_name TEXT,
				title TEXT NOT NULL,
				author TEXT,
				isbn10 TEXT,
				isbn13 TEXT,
				filepath TEXT,
				progress REAL NOT NULL DEFAULT 0,
				read_status TEXT NOT NULL DEFAULT 'unread',
				time_spent_reading INTEGER NOT NULL DEFAULT 0,
				last_read_at DATETIME,
				last_device_sync_at DATETIME
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`CREATE INDEX idx_books_isbn13 ON books(isbn13)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`CREATE INDEX idx_books_library_name ON books(library_name)`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`DROP TABLE IF EXISTS books`)
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
