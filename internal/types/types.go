// ABOUTME: Common types shared across the cvetrack system.
// ABOUTME: Defines the scan report, issue records, record sets, and change history structures.

package types

import (
	"bytes"
	"encoding/json"
)

// Report is one cve-check scan of a build
type Report struct {
	Version  string    `json:"version,omitempty"`
	Packages []Package `json:"package"`
}

// Package is a single recipe/package entry in a scan report
type Package struct {
	Name     string            `json:"name"`
	Layer    string            `json:"layer"` // Provenance of the recipe
	Version  string            `json:"version"`
	Products json.RawMessage   `json:"products,omitempty"`
	Issues   []json.RawMessage `json:"issue"` // Scanner payloads, kept verbatim
}

// Issue holds the fields cvetrack reads from a scanner issue payload
type Issue struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// IssueRecord is the tracked state of one issue occurrence
type IssueRecord struct {
	Name       string          `json:"name"`
	Layer      string          `json:"layer"`
	Version    string          `json:"version"`
	Issue      json.RawMessage `json:"issue"`
	Assessment json.RawMessage `json:"assessment,omitempty"` // Only set on unpatched records
}

// EmptyAssessment is the assessment attached to an issue nobody has triaged yet
var EmptyAssessment = json.RawMessage(`{}`)

// HasAssessment reports whether the record carries a non-null assessment
func (r *IssueRecord) HasAssessment() bool {
	trimmed := bytes.TrimSpace(r.Assessment)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// ChangeSet groups the transitions found in one run
type ChangeSet struct {
	Patched   []IssueRecord `json:"patched"`
	Unpatched []IssueRecord `json:"unpatched"`
}

// NewChangeSet returns a change set whose buckets serialize as empty lists
func NewChangeSet() ChangeSet {
	return ChangeSet{
		Patched:   []IssueRecord{},
		Unpatched: []IssueRecord{},
	}
}

// Len returns the total number of transitions
func (c ChangeSet) Len() int {
	return len(c.Patched) + len(c.Unpatched)
}

// Snapshot is one run's entry in the change history
type Snapshot struct {
	DateTime string    `json:"datetime"`
	Changes  ChangeSet `json:"changes"`
}

// History is the append-only list of snapshots. Entries are kept as raw JSON so
// snapshots written by earlier runs are never reinterpreted.
type History []json.RawMessage

// Append encodes a snapshot and returns the extended history
func (h History) Append(snapshot Snapshot) (History, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}

	extended := make(History, 0, len(h)+1)
	extended = append(extended, h...)
	return append(extended, data), nil
}
