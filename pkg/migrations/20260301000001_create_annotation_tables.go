package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE annotations (
				id TEXT PRIMARY KEY,
				created_at DATETIME NOT NULL,
				book_id INTEGER NOT NULL REFERENCES books(id) ON DELETE CASCADE,
				source_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				text TEXT NOT NULL DEFAULT '',
				note TEXT,
				chapter_progress REAL NOT NULL DEFAULT 0,
				annotated_at DATETIME NOT NULL
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		// Stable dedup key: a device bookmark is imported at most once.
		_, err = db.Exec(`CREATE UNIQUE INDEX idx_annotations_source_id ON annotations(source_id)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`CREATE INDEX idx_annotations_book ON annotations(book_id)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE vocabulary_words (
				id TEXT PRIMARY KEY,
				created_at DATETIME NOT NULL,
				text TEXT NOT NULL,
				volume_id TEXT NOT NULL DEFAULT '',
				looked_up_at DATETIME NOT NULL
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`CREATE UNIQUE INDEX idx_vocabulary_words_text_volume ON vocabulary_words(text, volume_id)`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`DROP TABLE IF EXISTS vocabulary_words`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`DROP TABLE IF EXISTS annotations`)
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
