package models

import (
	"time"

	"github.com/uptrace/bun"
)

// VocabularyWord is a dictionary lookup imported from a device. VolumeID is
// the device-internal identifier of the book the word was looked up in.
type VocabularyWord struct {
	bun.BaseModel `bun:"table:vocabulary_words,alias:vw"`

	ID         string    `bun:",pk" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Text       string    `bun:",nullzero" json:"text"`
	VolumeID   string    `bun:",nullzero" json:"volume_id"`
	LookedUpAt time.Time `json:"looked_up_at"`
}
