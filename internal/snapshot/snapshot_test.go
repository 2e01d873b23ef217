package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soralab/gh-productivity/internal/domain"
)

func testWriter(dir string) *Writer {
	w := NewWriter(dir)
	w.now = func() time.Time { return time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC) }
	w.newID = func() string { return "run-0001" }
	return w
}

func sampleResult() *domain.AggregateResult {
	return &domain.AggregateResult{
		Window: domain.TimeWindow{
			Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 1, 7, 23, 59, 59, 0, time.UTC),
		},
		Totals: domain.Metrics{Commits: 4},
	}
}

func TestWriteRunOrganization(t *testing.T) {
	dir := t.TempDir()
	w := testWriter(dir)

	path, err := w.WriteRun("octo", ScopeOrganization, "acme", "", sampleResult())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "octo", "raw_data_octo_2024-01-15.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "run-0001", snap.RunID)
	assert.Equal(t, "octo", snap.User)
	assert.Equal(t, ScopeOrganization, snap.Scope)
	assert.Equal(t, "acme", snap.Organization)
	assert.Equal(t, 4, snap.Result.Totals.Commits)
}

func TestWriteRunPersonalNaming(t *testing.T) {
	dir := t.TempDir()
	w := testWriter(dir)

	path, err := w.WriteRun("octo", ScopePersonal, "", "", sampleResult())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "octo", "personal_data_octo_2024-01-15.json"), path)
}

func TestWriteRunExplicitPath(t *testing.T) {
	dir := t.TempDir()
	w := testWriter(dir)
	override := filepath.Join(dir, "custom.json")

	path, err := w.WriteRun("octo", ScopeOrganization, "acme", override, sampleResult())
	require.NoError(t, err)
	assert.Equal(t, override, path)

	_, err = os.Stat(override)
	assert.NoError(t, err)
}

func TestWriteArbitraryDocument(t *testing.T) {
	dir := t.TempDir()
	w := testWriter(dir)

	doc := map[string]int{"total": 7}
	path, err := w.Write("octo", "ratio_summary", "", doc)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "octo", "ratio_summary_octo_2024-01-15.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got map[string]int
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, doc, got)
}

func TestWriteLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	w := testWriter(dir)

	path, err := w.Write("octo", "raw_data", "", sampleResult())
	require.NoError(t, err)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
