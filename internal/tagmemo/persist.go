package tagmemo

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"

	"github.com/wavemem/waverag/internal/waverr"
)

// FormatVersion is the current TagMemo JSON schema version.
const FormatVersion = 1

// snapshot is the wire form of the matrix state.
// Version 0 (absent field) is the legacy unversioned format.
type snapshot struct {
	Version      int                           `json:"version"`
	Alpha        float64                       `json:"alpha"`
	Beta         float64                       `json:"beta"`
	Cooccurrence map[string]map[string]float64 `json:"cooccurrence"`
	Frequencies  map[string]float64            `json:"frequencies"`
	TotalCount   float64                       `json:"total_count"`
}

// ToJSON serializes the matrix state.
func (m *Matrix) ToJSON() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := snapshot{
		Version:      FormatVersion,
		Alpha:        m.alpha,
		Beta:         m.beta,
		Cooccurrence: m.cooccurrence,
		Frequencies:  m.frequencies,
		TotalCount:   m.totalCount,
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, waverr.Wrap(waverr.ErrCodeInternal, err)
	}
	return data, nil
}

// FromJSON restores a matrix from its serialized form. The PMI threshold
// resets to zero; it is runtime tuning, not persisted state.
func FromJSON(data []byte) (*Matrix, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, waverr.ParseError("tagmemo: malformed JSON", err)
	}
	if snap.Version < 0 || snap.Version > FormatVersion {
		return nil, waverr.New(waverr.ErrCodeUnknownVersion,
			"tagmemo: unsupported format version", nil).
			WithDetail("version", strconv.Itoa(snap.Version))
	}

	m := New(snap.Alpha, snap.Beta)
	if snap.Cooccurrence != nil {
		m.cooccurrence = snap.Cooccurrence
	}
	if snap.Frequencies != nil {
		m.frequencies = snap.Frequencies
	}
	m.totalCount = snap.TotalCount
	return m, nil
}

// SaveFile writes the matrix JSON atomically (temp file + rename), holding
// a cross-process file lock for the duration.
func (m *Matrix) SaveFile(path string) error {
	data, err := m.ToJSON()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return waverr.IOError("tagmemo: create directory", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return waverr.IOError("tagmemo: acquire file lock", err)
	}
	defer func() { _ = lock.Unlock() }()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return waverr.IOError("tagmemo: write snapshot", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return waverr.IOError("tagmemo: rename snapshot", err)
	}
	return nil
}

// LoadFile reads a matrix JSON written by SaveFile.
func LoadFile(path string) (*Matrix, error) {
	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return nil, waverr.IOError("tagmemo: acquire file lock", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, waverr.IOError("tagmemo: read snapshot", err)
	}
	return FromJSON(data)
}
