package events

// Event is a structural-change notification. Events are plain data; the
// publisher never waits on what subscribers do with them.
type Event interface {
	Name() string
}

// FolderAdded is published after a virtual folder is created.
type FolderAdded struct {
	Folder string
	Paths  []string
}

func (FolderAdded) Name() string { return "folder_added" }

// FolderRemoved is published after a virtual folder is destroyed.
type FolderRemoved struct {
	Folder string
	Paths  []string
}

func (FolderRemoved) Name() string { return "folder_removed" }

// FolderRenamed is published after a virtual folder's directory has moved on
// disk and the registry entry has been renamed.
type FolderRenamed struct {
	OldFolder string
	NewFolder string
	OldPath   string
	NewPath   string
}

func (FolderRenamed) Name() string { return "folder_renamed" }

// MediaPathAdded is published after a media path joins a folder's path set.
type MediaPathAdded struct {
	Folder string
	Path   string
}

func (MediaPathAdded) Name() string { return "media_path_added" }

// MediaPathRemoved is published after a media path leaves a folder's path set.
type MediaPathRemoved struct {
	Folder string
	Path   string
}

func (MediaPathRemoved) Name() string { return "media_path_removed" }

// PathChanged is published by the filesystem monitor after debounced activity
// under a watched root.
type PathChanged struct {
	Path string
}

func (PathChanged) Name() string { return "path_changed" }
