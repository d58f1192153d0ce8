package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Annotation kinds as reported by device databases.
const (
	AnnotationKindHighlight  = "highlight"
	AnnotationKindAnnotation = "annotation"
	AnnotationKindBookmark   = "bookmark"
	AnnotationKindDogear     = "dogear"
)

// Annotation is a highlight or note imported from a device. Rows are
// append-only; SourceID carries the device's own bookmark ID so repeated
// sync passes can be deduplicated.
type Annotation struct {
	bun.BaseModel `bun:"table:annotations,alias:a"`

	ID              string    `bun:",pk" json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	BookID          int       `bun:",nullzero" json:"book_id"`
	SourceID        string    `bun:",nullzero" json:"source_id"`
	Kind            string    `bun:",nullzero" json:"kind"`
	Text            string    `json:"text"`
	Note            *string   `json:"note"`
	ChapterProgress float64   `json:"chapter_progress"` // 0-1
	AnnotatedAt     time.Time `json:"annotated_at"`
}
