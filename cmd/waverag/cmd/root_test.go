package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_Help(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "waverag")
	assert.Contains(t, out, "search")
	assert.Contains(t, out, "stats")
}

func TestStatsCmd_EmptyEngine(t *testing.T) {
	_, err := execute(t, "stats", "--config", filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
}

func TestSearchCmd_RunsRequestFile(t *testing.T) {
	dir := t.TempDir()

	request := map[string]any{
		"query_tags": []string{"go"},
		"bm25_results": []map[string]any{
			{"ID": "x", "Content": "c", "Score": 1.0},
		},
	}
	data, err := json.Marshal(request)
	require.NoError(t, err)

	inputPath := filepath.Join(dir, "request.json")
	require.NoError(t, os.WriteFile(inputPath, data, 0o644))

	_, err = execute(t, "search",
		"--input", inputPath,
		"--config", filepath.Join(dir, "none.yaml"))
	require.NoError(t, err)
}

func TestSearchCmd_MissingInput(t *testing.T) {
	_, err := execute(t, "search")
	require.Error(t, err)
}
