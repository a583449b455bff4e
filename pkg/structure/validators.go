package structure

import "encoding/json"

type AddFolderPayload struct {
	Name           string          `json:"name" validate:"required,max=100"`
	CollectionType *string         `json:"collection_type,omitempty" validate:"omitempty,max=50"`
	Paths          []string        `json:"paths,omitempty" validate:"omitempty,max=50,dive,required,abspath"`
	LibraryOptions json.RawMessage `json:"library_options,omitempty"`
	RefreshLibrary bool            `json:"refresh_library,omitempty"`
}

type RemoveFolderQuery struct {
	Name           string `query:"name" json:"name" validate:"required,max=100"`
	RefreshLibrary bool   `query:"refresh_library" json:"refresh_library,omitempty"`
}

type RenameFolderPayload struct {
	Name           string `json:"name" validate:"required,max=100"`
	NewName        string `json:"new_name" validate:"required,max=100"`
	RefreshLibrary bool   `json:"refresh_library,omitempty"`
}

type MediaPathPayload struct {
	Path        string  `json:"path" validate:"required,abspath"`
	NetworkPath *string `json:"network_path,omitempty" validate:"omitempty,max=500"`
}

type AddPathPayload struct {
	Name           string           `json:"name" validate:"required,max=100"`
	PathInfo       MediaPathPayload `json:"path_info"`
	RefreshLibrary bool             `json:"refresh_library,omitempty"`
}

type UpdatePathPayload struct {
	Name     string           `json:"name" validate:"required,max=100"`
	PathInfo MediaPathPayload `json:"path_info"`
}

type RemovePathQuery struct {
	Name           string `query:"name" json:"name" validate:"required,max=100"`
	Path           string `query:"path" json:"path" validate:"required"`
	RefreshLibrary bool   `query:"refresh_library" json:"refresh_library,omitempty"`
}

type UpdateOptionsPayload struct {
	ID             int             `json:"id" validate:"required"`
	LibraryOptions json.RawMessage `json:"library_options" validate:"required"`
}
