// ABOUTME: Tests for issue status classification and prior status lookup.

package engine

import (
	"reflect"
	"testing"

	"github.com/jfeddern/CVETrack/internal/types"
)

func TestClassify(t *testing.T) {
	classifier := NewClassifier()

	tests := []struct {
		status   string
		expected Resolution
	}{
		{"Patched", Resolved},
		{"Ignored", Resolved},
		{"Unpatched", Unresolved},
		{"Unknown", Unresolved},
		{"patched", Unresolved},
		{"IGNORED", Unresolved},
		{" Patched", Unresolved},
		{"", Unresolved},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			if got := classifier.Classify(tt.status); got != tt.expected {
				t.Errorf("Classify(%q) = %s, want %s", tt.status, got, tt.expected)
			}
		})
	}
}

func TestNewClassifierStatuses(t *testing.T) {
	if got := NewClassifier().Statuses(); !reflect.DeepEqual(got, []string{"Ignored", "Patched"}) {
		t.Errorf("default Statuses() = %v", got)
	}

	custom := NewClassifier("Mitigated", "", "Patched")
	if got := custom.Statuses(); !reflect.DeepEqual(got, []string{"Mitigated", "Patched"}) {
		t.Errorf("custom Statuses() = %v", got)
	}
	if custom.Classify("Ignored") != Unresolved {
		t.Error("custom classifier should only resolve the statuses it was given")
	}
}

func TestPriorLookup(t *testing.T) {
	patched := types.NewRecordSet()
	patched.Set("CVE-P", types.IssueRecord{Name: "a"})
	patched.Set("CVE-BOTH", types.IssueRecord{Name: "a"})

	unpatched := types.NewRecordSet()
	unpatched.Set("CVE-U", types.IssueRecord{Name: "b"})
	unpatched.Set("CVE-BOTH", types.IssueRecord{Name: "b"})

	prior := Prior{Patched: patched, Unpatched: unpatched}

	tests := []struct {
		id       string
		expected PriorStatus
	}{
		{"CVE-P", WasPatched},
		{"CVE-U", WasUnpatched},
		{"CVE-BOTH", WasPatched},
		{"CVE-NEW", Unseen},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := prior.Lookup(tt.id); got != tt.expected {
				t.Errorf("Lookup(%q) = %s, want %s", tt.id, got, tt.expected)
			}
		})
	}

	if got := (Prior{}).Lookup("CVE-P"); got != Unseen {
		t.Errorf("empty prior Lookup() = %s, want unseen", got)
	}
}
