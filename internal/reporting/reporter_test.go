// internal/reporting/reporter_test.go
package reporting_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/regress-cli/api/schemas"
	"github.com/xkilldash9x/regress-cli/internal/reporting"
)

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func sampleRuns() []schemas.RunRecord {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return []schemas.RunRecord{
		{RunID: "run-2", Mode: schemas.RunModeScenario, TestIDs: []string{"1", "2"}, ExitCode: 1, TestCount: 2, Failures: 1, StartedAt: start, FinishedAt: start.Add(75 * time.Second)},
		{RunID: "run-1", Mode: schemas.RunModeAll, TestIDs: []string{"1"}, TestCount: 1, StartedAt: start.Add(-time.Hour), FinishedAt: start.Add(-time.Hour + 5*time.Second)},
	}
}

func TestNew_Stdout(t *testing.T) {
	for _, path := range []string{"", "stdout"} {
		r, err := reporting.New("text", path)
		require.NoError(t, err)
		assert.NoError(t, r.Close())
	}
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	r, err := reporting.New("json", path)
	require.NoError(t, err)
	require.NoError(t, r.Write(sampleRuns()))
	require.NoError(t, r.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var runs []schemas.RunRecord
	require.NoError(t, jsoniter.Unmarshal(data, &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, schemas.RunModeScenario, runs[0].Mode)
}

func TestNew_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.sarif")
	r, err := reporting.New("sarif", path)
	assert.Nil(t, r)
	assert.ErrorContains(t, err, "unsupported output format: sarif")
	assert.NoFileExists(t, path)
}

func TestNew_FileCreationFailure(t *testing.T) {
	_, err := reporting.New("json", filepath.Join(t.TempDir(), "missing", "out.json"))
	assert.ErrorContains(t, err, "failed to create output file")
}

func TestJSONReporter_EmptyIsArray(t *testing.T) {
	buf := &bufferCloser{}
	r, err := reporting.NewWriter("json", buf)
	require.NoError(t, err)
	require.NoError(t, r.Write(nil))
	assert.Equal(t, "[]\n", buf.String())
	require.NoError(t, r.Close())
	assert.True(t, buf.closed)
}

func TestTextReporter(t *testing.T) {
	buf := &bufferCloser{}
	r, err := reporting.NewWriter("text", buf)
	require.NoError(t, err)
	require.NoError(t, r.Write(sampleRuns()))

	out := buf.String()
	assert.Contains(t, out, "Recent runs")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "PASS")
	assert.Contains(t, out, "scenario")
	assert.Contains(t, out, "1m15s")
	assert.Contains(t, out, "run-2")
	assert.Contains(t, out, "1,2")
}

func TestTextReporter_NoRuns(t *testing.T) {
	buf := &bufferCloser{}
	r, err := reporting.NewWriter("text", buf)
	require.NoError(t, err)
	require.NoError(t, r.Write(nil))
	assert.Contains(t, buf.String(), "No runs recorded yet.")
}
