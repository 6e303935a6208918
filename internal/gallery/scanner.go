package gallery

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MetadataFunc extracts domain metadata for a media file. Implementations
// may fail freely; the scanner degrades to an empty mapping.
type MetadataFunc func(path string) (map[string]any, error)

// Scanner walks a directory tree and builds gallery snapshots. It follows
// symlinked directories, skips dot-prefixed directories, and contains all
// I/O errors so Scan always returns a valid (possibly sparse) snapshot.
type Scanner struct {
	extract MetadataFunc
	logger  *slog.Logger
}

// NewScanner creates a scanner. extract may be nil, in which case all
// entries carry empty metadata.
func NewScanner(extract MetadataFunc, logger *slog.Logger) *Scanner {
	return &Scanner{
		extract: extract,
		logger:  logger.With("component", "scanner"),
	}
}

// Scan walks rootPath and returns a snapshot keyed by folder. label names
// the root folder; subfolders are keyed by label joined with their path
// relative to the root. The result is deterministic for an unchanging tree.
func (s *Scanner) Scan(rootPath, label string, recursive bool) Snapshot {
	snap := make(Snapshot)
	visited := make(map[string]struct{})
	if real, err := filepath.EvalSymlinks(rootPath); err == nil {
		visited[real] = struct{}{}
	}
	s.scanDir(rootPath, rootPath, label, "", recursive, visited, snap)
	return snap
}

// scanDir processes one directory, recursing into subdirectories first so
// nested folder keys are independent of sibling file errors.
func (s *Scanner) scanDir(dirPath, rootPath, label, rel string, recursive bool, visited map[string]struct{}, snap Snapshot) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		s.logger.Warn("skipping unreadable directory", "path", dirPath, "error", err)
		return
	}

	content := make(FolderContent)
	for _, entry := range entries {
		name := entry.Name()
		full := filepath.Join(dirPath, name)

		// Stat follows symlinks, so linked files and directories are
		// classified by their targets. Broken links are skipped.
		info, err := os.Stat(full)
		if err != nil {
			s.logger.Warn("skipping unreadable entry", "path", full, "error", err)
			continue
		}

		if info.IsDir() {
			if !recursive || strings.HasPrefix(name, ".") {
				continue
			}
			// Guard against symlink cycles by tracking resolved paths.
			if real, err := filepath.EvalSymlinks(full); err == nil {
				if _, seen := visited[real]; seen {
					continue
				}
				visited[real] = struct{}{}
			}
			s.scanDir(full, rootPath, label, filepath.Join(rel, name), recursive, visited, snap)
			continue
		}

		kind, ok := KindForName(name)
		if !ok {
			continue
		}
		content[name] = s.fileEntry(full, name, rel, kind, info.ModTime())
	}

	if len(content) == 0 {
		return
	}
	key := label
	if rel != "" {
		key = filepath.Join(label, rel)
	}
	snap[key] = content
}

func (s *Scanner) fileEntry(fullPath, name, rel string, kind Kind, mtime time.Time) FileEntry {
	urlPath := URLPrefix + filepath.ToSlash(filepath.Join(rel, name))

	metadata := map[string]any{}
	if kind == KindImage {
		metadata = s.metadataFor(fullPath)
	}

	return FileEntry{
		Name:      name,
		URL:       urlPath,
		Timestamp: float64(mtime.UnixNano()) / float64(time.Second),
		Date:      mtime.Format("2006-01-02 15:04:05"),
		Metadata:  metadata,
		Kind:      kind,
	}
}

// metadataFor invokes the extractor and contains every failure mode,
// including panics, so a bad file can never abort a scan.
func (s *Scanner) metadataFor(path string) (meta map[string]any) {
	meta = map[string]any{}
	if s.extract == nil {
		return meta
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("metadata extractor panicked", "path", path, "panic", r)
			meta = map[string]any{}
		}
	}()
	m, err := s.extract(path)
	if err != nil || m == nil {
		if err != nil {
			s.logger.Debug("metadata extraction failed", "path", path, "error", err)
		}
		return meta
	}
	return m
}
