package cooccur

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"github.com/wavemem/waverag/internal/waverr"
)

// FormatVersion is the current NPMI matrix JSON schema version.
const FormatVersion = 1

// snapshot is the wire form: only the upper triangle of weights is
// stored, keyed "i,j" with i < j; restore mirrors each entry.
type snapshot struct {
	Version   int                `json:"version"`
	Tags      []string           `json:"tags"`
	TagFreq   map[string]int     `json:"tagFreq"`
	Weights   map[string]float64 `json:"weights"`
	TotalDocs int                `json:"totalDocs"`
}

// ToJSON serializes the matrix with deterministic key order.
func (m *Matrix) ToJSON() ([]byte, error) {
	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()

	weights := make(map[string]float64, len(state.weights)/2)
	for pair, w := range state.weights {
		if pair[0] < pair[1] {
			weights[fmt.Sprintf("%d,%d", pair[0], pair[1])] = w
		}
	}

	snap := snapshot{
		Version:   FormatVersion,
		Tags:      state.tags,
		TagFreq:   state.tagFreq,
		Weights:   weights,
		TotalDocs: state.totalDocs,
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, waverr.Wrap(waverr.ErrCodeInternal, err)
	}
	return data, nil
}

// FromJSON restores a matrix from its serialized form.
func FromJSON(data []byte) (*Matrix, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, waverr.ParseError("cooccur: malformed JSON", err)
	}
	if snap.Version < 0 || snap.Version > FormatVersion {
		return nil, waverr.New(waverr.ErrCodeUnknownVersion,
			"cooccur: unsupported format version", nil).
			WithDetail("version", strconv.Itoa(snap.Version))
	}

	state := emptyState()
	// Tag order is part of the format: weight keys index into it.
	state.tags = snap.Tags
	for i, t := range state.tags {
		state.tagIndex[t] = i
	}
	if snap.TagFreq != nil {
		state.tagFreq = snap.TagFreq
	}
	state.totalDocs = snap.TotalDocs

	for key, w := range snap.Weights {
		parts := strings.SplitN(key, ",", 2)
		if len(parts) != 2 {
			return nil, waverr.ParseError("cooccur: malformed weight key "+key, nil)
		}
		i, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, waverr.ParseError("cooccur: malformed weight key "+key, err)
		}
		j, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, waverr.ParseError("cooccur: malformed weight key "+key, err)
		}
		if i < 0 || j < 0 || i >= len(state.tags) || j >= len(state.tags) {
			return nil, waverr.ParseError("cooccur: weight key out of range "+key, nil)
		}
		state.weights[[2]int{i, j}] = w
		state.weights[[2]int{j, i}] = w
	}

	m := New()
	m.state = state
	return m, nil
}

// SaveFile writes the matrix JSON atomically under a cross-process lock.
func (m *Matrix) SaveFile(path string) error {
	data, err := m.ToJSON()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return waverr.IOError("cooccur: create directory", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return waverr.IOError("cooccur: acquire file lock", err)
	}
	defer func() { _ = lock.Unlock() }()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return waverr.IOError("cooccur: write snapshot", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return waverr.IOError("cooccur: rename snapshot", err)
	}
	return nil
}

// LoadFile reads a matrix JSON written by SaveFile.
func LoadFile(path string) (*Matrix, error) {
	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return nil, waverr.IOError("cooccur: acquire file lock", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, waverr.IOError("cooccur: read snapshot", err)
	}
	return FromJSON(data)
}
