// Package archive implements the Playbook Observer's hourly-rotated JSONL
// snapshot archive: one append-only file per UTC hour, one JSON object per
// line, written alongside (not instead of) the structured log line the
// teacher's audit logger already emits for every recorded event.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Archive appends JSON-serializable snapshots to hourly-rotated files
// under baseDir/YYYY-MM-DD/HH.jsonl (UTC).
type Archive struct {
	baseDir string

	mu          sync.Mutex
	currentHour string
	file        *os.File
}

// New constructs an Archive rooted at baseDir. The directory is created
// lazily on the first Write.
func New(baseDir string) *Archive {
	return &Archive{baseDir: baseDir}
}

// Write appends one JSON line for snapshot, rotating to a new file if the
// UTC hour has changed since the last write. Every failure is returned; a
// failed file write is also logged. Callers in the Playbook Observer treat archive failures as
// non-fatal (fail-silent with respect to the rest of the loop).
func (a *Archive) Write(snapshot interface{}) error {
	line, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("archive: failed to marshal snapshot: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now().UTC()
	hourKey := now.Format("2006-01-02/15")

	if hourKey != a.currentHour || a.file == nil {
		if err := a.rotate(hourKey); err != nil {
			return err
		}
	}

	if _, err := a.file.Write(append(line, '\n')); err != nil {
		log.Error().Err(err).Str("hour", hourKey).Msg("archive: failed to write snapshot")
		return fmt.Errorf("archive: failed to write snapshot: %w", err)
	}
	return nil
}

func (a *Archive) rotate(hourKey string) error {
	if a.file != nil {
		a.file.Close()
	}

	path := filepath.Join(a.baseDir, hourKey+".jsonl")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("archive: failed to create directory for %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("archive: failed to open %s: %w", path, err)
	}

	a.file = f
	a.currentHour = hourKey
	return nil
}

// Close closes the currently open archive file, if any.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}
