package gallery

import (
	"path/filepath"
	"reflect"
	"strings"
)

// URLPrefix is the mount point under which gallery files are served.
const URLPrefix = "/static_gallery/"

// Kind classifies a gallery file by how the client renders it.
type Kind string

// Known file kinds.
const (
	KindImage Kind = "image" // static images: png, jpg, jpeg, webp
	KindMedia Kind = "media" // playable media: mp4, gif, webm
)

// kindByExt maps supported lowercase extensions to their kind. Files with
// any other extension are not part of the gallery.
var kindByExt = map[string]Kind{
	".png":  KindImage,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".webp": KindImage,
	".mp4":  KindMedia,
	".gif":  KindMedia,
	".webm": KindMedia,
}

// KindForName returns the kind for a filename based on its extension,
// case-insensitively. The second return value is false for unsupported
// extensions.
func KindForName(name string) (Kind, bool) {
	k, ok := kindByExt[strings.ToLower(filepath.Ext(name))]
	return k, ok
}

// FileEntry describes one media file in a snapshot. Entries are immutable
// once built; a rescan replaces them wholesale.
type FileEntry struct {
	Name      string         `json:"name"`
	URL       string         `json:"url"`
	Timestamp float64        `json:"timestamp"`
	Date      string         `json:"date"`
	Metadata  map[string]any `json:"metadata"`
	Kind      Kind           `json:"type"`
}

// Equal reports full structural equality, including metadata.
func (e FileEntry) Equal(o FileEntry) bool {
	return e.Name == o.Name &&
		e.URL == o.URL &&
		e.Timestamp == o.Timestamp &&
		e.Date == o.Date &&
		e.Kind == o.Kind &&
		reflect.DeepEqual(e.Metadata, o.Metadata)
}

// FolderContent maps filename to entry for one folder.
type FolderContent map[string]FileEntry

// Snapshot is the full folder-to-files mapping for a scanned root at a
// point in time. Folder keys are the scan label joined with the path
// relative to the root; the root folder uses the label verbatim. Folders
// without qualifying files never appear.
type Snapshot map[string]FolderContent

// Action tags a single file change in a diff.
type Action string

// Change actions.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionRemove Action = "remove"
)

// Change records what happened to one file between two snapshots.
// Fields carries the new entry for create and update; it is nil for remove.
type Change struct {
	Action Action     `json:"action"`
	Fields *FileEntry `json:"fields,omitempty"`
}

// Diff maps folder key to per-file changes. A folder key is present only
// when at least one of its files changed.
type Diff map[string]map[string]Change

// Empty reports whether the diff carries no changes at all.
func (d Diff) Empty() bool {
	for _, files := range d {
		if len(files) > 0 {
			return false
		}
	}
	return true
}
