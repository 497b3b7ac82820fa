// ABOUTME: File-backed record store for scan reports, patched/unpatched sets, and change history.
// ABOUTME: Classifies missing and malformed resources and replaces state files atomically.

package store

import (
	"bytes"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jfeddern/CVETrack/internal/types"
	"github.com/moby/sys/atomicwriter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Kind identifies which resource a path holds. It decides how absence is treated.
type Kind int

const (
	KindReport Kind = iota
	KindPatched
	KindUnpatched
	KindHistory
)

func (k Kind) String() string {
	switch k {
	case KindReport:
		return "report"
	case KindPatched:
		return "patched"
	case KindUnpatched:
		return "unpatched"
	case KindHistory:
		return "history"
	default:
		return "unknown"
	}
}

func (k Kind) valid() bool {
	return k >= KindReport && k <= KindHistory
}

// Required reports whether a missing resource of this kind fails the run
func (k Kind) Required() bool {
	return k == KindReport
}

const filePerm = 0o644

// Store reads and writes cvetrack resources on the local filesystem
type Store struct {
	logger *logrus.Logger
}

// NewStore creates a new file-backed store
func NewStore(logger *logrus.Logger) *Store {
	return &Store{logger: logger}
}

// read returns the raw bytes at path. found is false when an optional resource is absent.
func (s *Store) read(path string, kind Kind) (data []byte, found bool, err error) {
	if !kind.valid() {
		return nil, false, types.Errorf(types.CodeUnknownKind, "Unknown read type: %s", kind)
	}

	logger := s.logger.WithFields(logrus.Fields{
		"operation": "load",
		"kind":      kind.String(),
		"path":      path,
	})

	data, err = os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if kind.Required() {
				return nil, false, types.Wrap(types.CodeNotFound, err, "Failed to find %s", path)
			}
			logger.Debug("No prior state found")
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "failed to read %s", path)
	}

	logger.WithField("bytes", len(data)).Debug("Read resource")
	return data, true, nil
}

// LoadReport loads the current scan report. A missing report is fatal.
func (s *Store) LoadReport(path string) (*types.Report, error) {
	data, _, err := s.read(path, KindReport)
	if err != nil {
		return nil, err
	}

	var report types.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, types.Wrap(types.CodeMalformed, errors.WithStack(err), "Failed to decode the JSON from %s", path)
	}
	return &report, nil
}

// LoadRecordSet loads a patched or unpatched set. A missing file is an empty set.
func (s *Store) LoadRecordSet(path string, kind Kind) (*types.RecordSet, error) {
	if kind != KindPatched && kind != KindUnpatched {
		return nil, types.Errorf(types.CodeUnknownKind, "Unknown read type: %s", kind)
	}

	data, found, err := s.read(path, kind)
	if err != nil {
		return nil, err
	}
	if !found {
		return types.NewRecordSet(), nil
	}

	set := types.NewRecordSet()
	if err := json.Unmarshal(data, set); err != nil {
		return nil, types.Wrap(types.CodeMalformed, errors.WithStack(err), "Failed to decode the JSON from %s", path)
	}
	return set, nil
}

// LoadHistory loads the change history. A missing or empty file is an empty history.
func (s *Store) LoadHistory(path string) (types.History, error) {
	data, found, err := s.read(path, KindHistory)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(data)
	if !found || len(trimmed) == 0 || bytes.Equal(trimmed, []byte("{}")) {
		return types.History{}, nil
	}

	var history types.History
	if err := json.Unmarshal(trimmed, &history); err != nil {
		return nil, types.Wrap(types.CodeMalformed, errors.WithStack(err), "Failed to decode the JSON from %s", path)
	}
	if history == nil {
		history = types.History{}
	}
	return history, nil
}

// SaveRecordSet writes a patched or unpatched set, keeping insertion order
func (s *Store) SaveRecordSet(path string, set *types.RecordSet) error {
	if set == nil {
		set = types.NewRecordSet()
	}

	data, err := encode(set)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", path)
	}
	return s.WriteFile(path, data)
}

// SaveHistory writes the full history with keys sorted at every level
func (s *Store) SaveHistory(path string, history types.History) error {
	entries := make([]interface{}, 0, len(history))
	for i, raw := range history {
		entry, err := canonical(raw)
		if err != nil {
			return errors.Wrapf(err, "failed to decode history entry %d", i)
		}
		entries = append(entries, entry)
	}

	data, err := encode(entries)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", path)
	}
	return s.WriteFile(path, data)
}

// WriteFile replaces path with data so readers see either the old or the new content
func (s *Store) WriteFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create directory for %s", path)
		}
	}

	if err := atomicwriter.WriteFile(path, data, filePerm); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}

	s.logger.WithFields(logrus.Fields{
		"operation": "save",
		"path":      path,
		"bytes":     len(data),
	}).Debug("Wrote resource")
	return nil
}

// canonical decodes raw into generic values. Objects become maps, which encode with sorted keys.
func canonical(raw json.RawMessage) (interface{}, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var value interface{}
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	return value, nil
}

func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "    ")
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
