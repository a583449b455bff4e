package models

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// Library is a virtual folder: a named library section backed by one or more
// real filesystem directories. The name doubles as the directory name of the
// folder under the library root, so renaming a library moves a directory.
type Library struct {
	bun.BaseModel `bun:"table:libraries,alias:l"`

	ID             int             `bun:",pk,nullzero" json:"id"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Name           string          `bun:",nullzero" json:"name"`
	CollectionType *string         `bun:",nullzero" json:"collection_type,omitempty"`
	Options        string          `bun:",nullzero" json:"-"`
	OptionsParsed  json.RawMessage `bun:"-" json:"library_options,omitempty"`
	LibraryPaths   []*LibraryPath  `bun:"rel:has-many" json:"library_paths,omitempty"`
	DeletedAt      *time.Time      `json:"deleted_at,omitempty"`
}

// UnmarshalOptions populates OptionsParsed from the stored blob. Library
// options are opaque to the server: they are stored and returned verbatim,
// never interpreted.
func (l *Library) UnmarshalOptions() {
	if l.Options != "" {
		l.OptionsParsed = json.RawMessage(l.Options)
	}
}
