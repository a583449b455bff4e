package models

import (
	"time"

	"github.com/uptrace/bun"
)

// MediaFile is one cataloged file discovered under a library path during a
// scan. The catalog records presence and detected type only; content is
// never interpreted here.
type MediaFile struct {
	bun.BaseModel `bun:"table:media_files,alias:mf"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	LibraryID int       `bun:",nullzero" json:"library_id"`
	Filepath  string    `bun:",nullzero" json:"filepath"`
	SizeBytes int64     `json:"size_bytes"`
	MediaType string    `bun:",nullzero" json:"media_type"`
}
