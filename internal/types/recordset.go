// ABOUTME: Insertion-ordered mapping from issue identifier to issue record.
// ABOUTME: Preserves report order through JSON encoding so state files diff cleanly between runs.

package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RecordSet maps issue identifiers to records, remembering insertion order
type RecordSet struct {
	keys    []string
	records map[string]IssueRecord
}

// NewRecordSet creates an empty record set
func NewRecordSet() *RecordSet {
	return &RecordSet{records: make(map[string]IssueRecord)}
}

// Len returns the number of identifiers in the set
func (s *RecordSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Get returns the record for id
func (s *RecordSet) Get(id string) (IssueRecord, bool) {
	if s == nil {
		return IssueRecord{}, false
	}
	record, ok := s.records[id]
	return record, ok
}

// Has reports whether id is present
func (s *RecordSet) Has(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// Set stores a record. An existing id keeps its original position.
func (s *RecordSet) Set(id string, record IssueRecord) {
	if s.records == nil {
		s.records = make(map[string]IssueRecord)
	}
	if _, exists := s.records[id]; !exists {
		s.keys = append(s.keys, id)
	}
	s.records[id] = record
}

// Delete removes id from the set
func (s *RecordSet) Delete(id string) {
	if _, exists := s.records[id]; !exists {
		return
	}
	delete(s.records, id)
	for i, key := range s.keys {
		if key == id {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
}

// Keys returns identifiers in insertion order
func (s *RecordSet) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, len(s.keys))
	copy(keys, s.keys)
	return keys
}

// MarshalJSON encodes the set as a JSON object in insertion order
func (s *RecordSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range s.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshal(id)
		if err != nil {
			return nil, err
		}
		value, err := marshal(s.records[id])
		if err != nil {
			return nil, fmt.Errorf("failed to encode record %s: %w", id, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping the order keys appear in the document
func (s *RecordSet) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))

	token, err := decoder.Token()
	if err != nil {
		return err
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("record set must be a JSON object, got %v", token)
	}

	*s = RecordSet{records: make(map[string]IssueRecord)}
	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return err
		}
		id, ok := token.(string)
		if !ok {
			return fmt.Errorf("unexpected record key %v", token)
		}

		var record IssueRecord
		if err := decoder.Decode(&record); err != nil {
			return fmt.Errorf("failed to decode record %s: %w", id, err)
		}
		s.Set(id, record)
	}

	if _, err := decoder.Token(); err != nil {
		return err
	}
	return nil
}

// marshal encodes v without escaping HTML characters found in scanner summaries
func marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
