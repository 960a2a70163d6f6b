package webrec

import (
	"os"
	"path/filepath"
	"sync"
)

// ResultsList holds completed recordings, newest last. It behaves as a
// circular buffer when maxEntries > 0 and can mirror each blob to disk.
type ResultsList struct {
	outputDir  string
	save       bool
	maxEntries int
	logger     *RecorderLogger

	mu         sync.RWMutex
	entries    []*RecordingEntry
	onRemove   func(*RecordingEntry)
	totalBytes int64
	total      int
}

// ResultsStats contains statistics about the results list
type ResultsStats struct {
	TotalRecordings    int     `json:"total_recordings"`
	BufferedRecordings int     `json:"buffered_recordings"`
	TotalBytes         int64   `json:"total_bytes"`
	BufferDuration     float64 `json:"buffer_duration_seconds"`
	OutputDirectory    string  `json:"output_directory,omitempty"`
}

func NewResultsList(outputDir string, save bool, maxEntries int) *ResultsList {
	logger := GetGlobalLogger().WithComponent("ResultsList")
	if save && outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			logger.WithError(err).Warn("Failed to create recordings directory")
		}
	}
	return &ResultsList{
		outputDir:  outputDir,
		save:       save,
		maxEntries: maxEntries,
		logger:     logger,
	}
}

// SetRemoveFunc registers fn to run for every entry leaving the list,
// whether removed explicitly or pushed out by newer recordings.
func (rl *ResultsList) SetRemoveFunc(fn func(*RecordingEntry)) {
	rl.mu.Lock()
	rl.onRemove = fn
	rl.mu.Unlock()
}

// Append adds entry to the list. A failed save is returned but the entry
// is still listed.
func (rl *ResultsList) Append(entry *RecordingEntry) error {
	var saveErr error
	if rl.save && rl.outputDir != "" {
		saveErr = rl.saveToFile(entry)
	}

	rl.mu.Lock()
	rl.entries = append(rl.entries, entry)
	rl.totalBytes += int64(entry.Size)
	rl.total++

	var evicted []*RecordingEntry
	if rl.maxEntries > 0 && len(rl.entries) > rl.maxEntries {
		n := len(rl.entries) - rl.maxEntries
		evicted = append(evicted, rl.entries[:n]...)
		rl.entries = append([]*RecordingEntry(nil), rl.entries[n:]...)
	}
	onRemove := rl.onRemove
	rl.mu.Unlock()

	if onRemove != nil {
		for _, e := range evicted {
			onRemove(e)
		}
	}
	return saveErr
}

func (rl *ResultsList) saveToFile(entry *RecordingEntry) error {
	if entry.Blob == nil {
		return nil
	}
	if err := os.MkdirAll(rl.outputDir, 0o755); err != nil {
		return NewStorageError(err)
	}
	path := filepath.Join(rl.outputDir, entry.Filename)
	if err := os.WriteFile(path, entry.Blob.Data, 0o644); err != nil {
		return NewStorageError(err).AddDetail("path", path)
	}
	entry.SavedPath = path
	rl.logger.WithField("path", path).Debug("Recording saved")
	return nil
}

// Entries returns a copy of the list, oldest first.
func (rl *ResultsList) Entries() []*RecordingEntry {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	out := make([]*RecordingEntry, len(rl.entries))
	copy(out, rl.entries)
	return out
}

func (rl *ResultsList) Get(id string) (*RecordingEntry, bool) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	for _, e := range rl.entries {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// Remove drops the entry with the given id. The saved file, if any, stays.
func (rl *ResultsList) Remove(id string) (*RecordingEntry, bool) {
	rl.mu.Lock()
	var removed *RecordingEntry
	for i, e := range rl.entries {
		if e.ID == id {
			removed = e
			rl.entries = append(rl.entries[:i:i], rl.entries[i+1:]...)
			break
		}
	}
	onRemove := rl.onRemove
	rl.mu.Unlock()

	if removed == nil {
		return nil, false
	}
	if onRemove != nil {
		onRemove(removed)
	}
	return removed, true
}

func (rl *ResultsList) Latest() *RecordingEntry {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	if len(rl.entries) == 0 {
		return nil
	}
	return rl.entries[len(rl.entries)-1]
}

func (rl *ResultsList) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.entries)
}

// Clear empties the list, running the remove hook for each entry.
func (rl *ResultsList) Clear() {
	rl.mu.Lock()
	old := rl.entries
	rl.entries = nil
	onRemove := rl.onRemove
	rl.mu.Unlock()

	if onRemove != nil {
		for _, e := range old {
			onRemove(e)
		}
	}
}

func (rl *ResultsList) Stats() ResultsStats {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	duration := 0.0
	for _, e := range rl.entries {
		duration += e.Duration
	}
	stats := ResultsStats{
		TotalRecordings:    rl.total,
		BufferedRecordings: len(rl.entries),
		TotalBytes:         rl.totalBytes,
		BufferDuration:     duration,
	}
	if rl.save {
		stats.OutputDirectory = rl.outputDir
	}
	return stats
}
