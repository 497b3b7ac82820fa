// ABOUTME: Status classification for scanner issues and prior-state lookup.
// ABOUTME: Keeps the resolved-status table and the three-way prior status in one place.

package engine

import (
	"sort"

	"github.com/jfeddern/CVETrack/internal/types"
)

// Resolution is the classification of a scanner status
type Resolution int

const (
	Unresolved Resolution = iota
	Resolved
)

func (r Resolution) String() string {
	if r == Resolved {
		return "resolved"
	}
	return "unresolved"
}

// DefaultResolvedStatuses are the cve-check statuses that mean no action is needed
var DefaultResolvedStatuses = []string{"Patched", "Ignored"}

// Classifier maps scanner status strings to a Resolution. Matching is exact and case-sensitive.
type Classifier struct {
	resolved map[string]struct{}
}

// NewClassifier creates a classifier treating the given statuses as resolved.
// With no statuses it falls back to DefaultResolvedStatuses.
func NewClassifier(statuses ...string) *Classifier {
	if len(statuses) == 0 {
		statuses = DefaultResolvedStatuses
	}

	c := &Classifier{resolved: make(map[string]struct{}, len(statuses))}
	for _, status := range statuses {
		if status != "" {
			c.resolved[status] = struct{}{}
		}
	}
	return c
}

// Classify returns Resolved for statuses in the resolved table and Unresolved otherwise
func (c *Classifier) Classify(status string) Resolution {
	if _, ok := c.resolved[status]; ok {
		return Resolved
	}
	return Unresolved
}

// Statuses returns the resolved statuses in sorted order
func (c *Classifier) Statuses() []string {
	statuses := make([]string, 0, len(c.resolved))
	for status := range c.resolved {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	return statuses
}

// PriorStatus is where an identifier was found in the previous run's state
type PriorStatus int

const (
	Unseen PriorStatus = iota
	WasPatched
	WasUnpatched
)

func (p PriorStatus) String() string {
	switch p {
	case WasPatched:
		return "was_patched"
	case WasUnpatched:
		return "was_unpatched"
	default:
		return "unseen"
	}
}

// Prior is the end-of-previous-run state
type Prior struct {
	Patched   *types.RecordSet
	Unpatched *types.RecordSet
}

// Lookup returns the prior status of id. If corrupted state lists id in both
// sets, WasPatched wins.
func (p Prior) Lookup(id string) PriorStatus {
	switch {
	case p.Patched.Has(id):
		return WasPatched
	case p.Unpatched.Has(id):
		return WasUnpatched
	default:
		return Unseen
	}
}
