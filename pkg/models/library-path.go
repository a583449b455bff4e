package models

import (
	"time"

	"github.com/uptrace/bun"
)

// LibraryPath is one physical directory contributing content to a library.
// Paths within a library are distinct.
type LibraryPath struct {
	bun.BaseModel `bun:"table:library_paths,alias:lp"`

	ID          int       `bun:",pk,nullzero" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	LibraryID   int       `bun:",nullzero" json:"library_id"`
	Filepath    string    `bun:",nullzero" json:"filepath"`
	NetworkPath *string   `json:"network_path,omitempty"`
}
