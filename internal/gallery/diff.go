package gallery

// Detect compares two snapshots and returns the per-file changes needed to
// turn old into new. It is a pure function: no I/O, no shared state, safe
// to call from any goroutine. Unchanged files and unchanged folders are
// omitted entirely.
func Detect(old, new Snapshot) Diff {
	diff := make(Diff)

	folders := make(map[string]struct{}, len(old)+len(new))
	for k := range old {
		folders[k] = struct{}{}
	}
	for k := range new {
		folders[k] = struct{}{}
	}

	for folder := range folders {
		oldFiles := old[folder]
		newFiles := new[folder]

		changes := make(map[string]Change)
		for name, entry := range newFiles {
			prev, existed := oldFiles[name]
			switch {
			case !existed:
				e := entry
				changes[name] = Change{Action: ActionCreate, Fields: &e}
			case !prev.Equal(entry):
				e := entry
				changes[name] = Change{Action: ActionUpdate, Fields: &e}
			}
		}
		for name := range oldFiles {
			if _, exists := newFiles[name]; !exists {
				changes[name] = Change{Action: ActionRemove}
			}
		}

		if len(changes) > 0 {
			diff[folder] = changes
		}
	}

	return diff
}
