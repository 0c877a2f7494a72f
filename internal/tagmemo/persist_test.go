package tagmemo

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONRoundTrip(t *testing.T) {
	m := New(0.8, 0.2)
	m.Update("go", "channels", 1)
	m.Update("go", "goroutines", 2)
	m.Update("rust", "ownership", 1)

	data, err := m.ToJSON()
	require.NoError(t, err)

	restored, err := FromJSON(data)
	require.NoError(t, err)

	// Identical observable behavior
	assert.InDelta(t, m.ComputePMI("go", "channels"), restored.ComputePMI("go", "channels"), 1e-12)
	assert.Equal(t, m.GetStats(), restored.GetStats())

	// Symmetry survives the round trip
	restored.mu.RLock()
	for from, row := range restored.cooccurrence {
		for to, w := range row {
			assert.Equal(t, w, restored.cooccurrence[to][from])
		}
	}
	restored.mu.RUnlock()
}

func TestFromJSON_Malformed(t *testing.T) {
	_, err := FromJSON([]byte("{not json"))
	require.Error(t, err)
}

func TestFromJSON_LegacyUnversioned(t *testing.T) {
	// Version 0 (absent) is the legacy format and still loads.
	legacy := `{"alpha":0.8,"beta":0.2,"cooccurrence":{"a":{"b":0.8},"b":{"a":0.8}},"frequencies":{"a":1,"b":1},"total_count":2}`
	m, err := FromJSON([]byte(legacy))
	require.NoError(t, err)
	// pmi = ln((0.8/2) / (0.5*0.5)) = ln(1.6)
	assert.InDelta(t, math.Log(1.6), m.ComputePMI("a", "b"), 1e-9)
}

func TestFromJSON_UnknownVersionRejected(t *testing.T) {
	_, err := FromJSON([]byte(`{"version":99,"alpha":0.8,"beta":0.2,"total_count":0}`))
	require.Error(t, err)
}

func TestSaveLoadFile(t *testing.T) {
	m := New(0, 0)
	m.Update("a", "b", 1)

	path := filepath.Join(t.TempDir(), "matrix.json")
	require.NoError(t, m.SaveFile(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, m.GetStats(), loaded.GetStats())
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}
