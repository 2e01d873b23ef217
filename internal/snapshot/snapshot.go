// Package snapshot persists collection results as JSON files under a
// per-user output directory, one file per run.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/soralab/gh-productivity/internal/domain"
)

// Scope labels which repository source a snapshot was collected from.
const (
	ScopeOrganization = "organization"
	ScopePersonal     = "personal"
)

// Snapshot is the envelope written around an AggregateResult so a file is
// self-describing: who it covers, where the data came from and when.
type Snapshot struct {
	RunID        string                  `json:"run_id"`
	User         string                  `json:"user"`
	Scope        string                  `json:"scope"`
	Organization string                  `json:"organization,omitempty"`
	GeneratedAt  time.Time               `json:"generated_at"`
	Result       *domain.AggregateResult `json:"result"`
}

// Writer saves run artifacts under <baseDir>/<user>/. The zero value is not
// usable; construct with NewWriter.
type Writer struct {
	baseDir string

	now   func() time.Time
	newID func() string
}

// DefaultBaseDir is where snapshots land unless a writer is given another
// directory.
const DefaultBaseDir = "outputs"

// NewWriter returns a Writer rooted at baseDir, or DefaultBaseDir when
// baseDir is empty.
func NewWriter(baseDir string) *Writer {
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}
	return &Writer{
		baseDir: baseDir,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// WriteRun saves one collection run. Organization runs are named
// raw_data_<user>_<date>.json, personal runs personal_data_<user>_<date>.json.
// A non-empty path overrides the derived location.
func (w *Writer) WriteRun(user, scope, org, path string, result *domain.AggregateResult) (string, error) {
	snap := Snapshot{
		RunID:        w.newID(),
		User:         user,
		Scope:        scope,
		Organization: org,
		GeneratedAt:  w.now().UTC(),
		Result:       result,
	}
	prefix := "raw_data"
	if scope == ScopePersonal {
		prefix = "personal_data"
	}
	if path == "" {
		path = w.pathFor(user, prefix)
	}
	return path, w.writeJSON(path, snap)
}

// Write saves an arbitrary document under the user's directory with the
// given name prefix, following the same <prefix>_<user>_<date>.json naming
// as run snapshots. A non-empty path overrides the derived location.
func (w *Writer) Write(user, prefix, path string, v any) (string, error) {
	if path == "" {
		path = w.pathFor(user, prefix)
	}
	return path, w.writeJSON(path, v)
}

func (w *Writer) pathFor(user, prefix string) string {
	date := w.now().UTC().Format("2006-01-02")
	return filepath.Join(w.baseDir, user, fmt.Sprintf("%s_%s_%s.json", prefix, user, date))
}

// writeJSON writes v pretty-printed through a temp file and rename, so a
// crash mid-write never leaves a truncated snapshot behind.
func (w *Writer) writeJSON(path string, v any) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating snapshot file: %w", err)
	}
	defer func() {
		if err != nil {
			file.Close()
			os.Remove(tmp)
		}
	}()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err = enc.Encode(v); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err = file.Sync(); err != nil {
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	if err = file.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming snapshot into place: %w", err)
	}
	return nil
}
