package media

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Usage summarises what the media root currently holds.
type Usage struct {
	TotalBytes  int64 `json:"total_bytes"`
	DebateCount int   `json:"debate_count"`
}

// Exists reports whether extracted audio is already on disk for a debate.
func (d *Downloader) Exists(debateID string) bool {
	_, err := os.Stat(d.AudioPath(debateID))
	return err == nil
}

// Cleanup removes every media file kept for a debate. Called once the
// transcript is stored; raw audio is not retained.
func (d *Downloader) Cleanup(debateID string) error {
	dir := filepath.Join(d.root, debateID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	d.log.Info("cleaned up media", "debate_id", debateID)
	return nil
}

// StorageUsage walks the media root and totals what is held per debate.
func (d *Downloader) StorageUsage() Usage {
	var usage Usage
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return usage
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		usage.DebateCount++
		filepath.WalkDir(filepath.Join(d.root, entry.Name()), func(path string, de fs.DirEntry, err error) error {
			if err != nil || de.IsDir() {
				return nil
			}
			if info, err := de.Info(); err == nil {
				usage.TotalBytes += info.Size()
			}
			return nil
		})
	}
	return usage
}
