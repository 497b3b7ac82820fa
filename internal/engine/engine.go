// ABOUTME: Reconciliation engine that compares a scan report against the previous run's state.
// ABOUTME: Produces the new patched/unpatched sets and the transitions between them.

package engine

import (
	"encoding/json"

	"github.com/jfeddern/CVETrack/internal/types"
	"github.com/sirupsen/logrus"
)

// Result is the outcome of one reconciliation pass
type Result struct {
	Patched   *types.RecordSet
	Unpatched *types.RecordSet
	Changes   types.ChangeSet
	Packages  int
	Issues    int
}

// Engine reconciles scan reports. It holds no run state and never writes resources.
type Engine struct {
	classifier *Classifier
	logger     *logrus.Logger
}

// NewEngine creates a reconciliation engine. A nil classifier uses the default resolved statuses.
func NewEngine(classifier *Classifier, logger *logrus.Logger) *Engine {
	if classifier == nil {
		classifier = NewClassifier()
	}
	return &Engine{
		classifier: classifier,
		logger:     logger,
	}
}

// Reconcile classifies every issue in report and records how each one moved since prior
func (e *Engine) Reconcile(report *types.Report, prior Prior) (*Result, error) {
	logger := e.logger.WithField("operation", "reconcile")

	if report == nil || len(report.Packages) == 0 {
		return nil, types.Errorf(types.CodeNoData, "No current data")
	}

	result := &Result{
		Patched:   types.NewRecordSet(),
		Unpatched: types.NewRecordSet(),
		Changes:   types.NewChangeSet(),
		Packages:  len(report.Packages),
	}

	for _, pkg := range report.Packages {
		for i, raw := range pkg.Issues {
			var issue types.Issue
			if err := json.Unmarshal(raw, &issue); err != nil {
				return nil, types.Wrap(types.CodeMalformed, err, "Failed to decode issue %d of package %s", i, pkg.Name)
			}
			if issue.ID == "" {
				return nil, types.Errorf(types.CodeMalformed, "Issue %d of package %s has no id", i, pkg.Name)
			}

			record := types.IssueRecord{
				Name:    pkg.Name,
				Layer:   pkg.Layer,
				Version: pkg.Version,
				Issue:   raw,
			}
			e.apply(issue, record, prior, result)
			result.Issues++
		}
	}

	logger.WithFields(logrus.Fields{
		"packages":          result.Packages,
		"issues":            result.Issues,
		"patched":           result.Patched.Len(),
		"unpatched":         result.Unpatched.Len(),
		"changes_patched":   len(result.Changes.Patched),
		"changes_unpatched": len(result.Changes.Unpatched),
	}).Debug("Reconciliation completed")

	return result, nil
}

func (e *Engine) apply(issue types.Issue, record types.IssueRecord, prior Prior, result *Result) {
	logger := e.logger.WithFields(logrus.Fields{
		"id":      issue.ID,
		"package": record.Name,
		"status":  issue.Status,
	})

	// A later occurrence of the same id replaces an earlier one in either set.
	if e.classifier.Classify(issue.Status) == Resolved {
		result.Unpatched.Delete(issue.ID)
		result.Patched.Set(issue.ID, record)

		if prior.Unpatched.Has(issue.ID) {
			logger.Debug("Issue is now patched")
			result.Changes.Patched = append(result.Changes.Patched, record)
		}
		return
	}

	switch prior.Lookup(issue.ID) {
	case WasPatched:
		// Regressions start over with an empty assessment.
		record.Assessment = types.EmptyAssessment
		logger.Debug("Issue is no longer patched")
		result.Changes.Unpatched = append(result.Changes.Unpatched, record)
	case WasUnpatched:
		previous, _ := prior.Unpatched.Get(issue.ID)
		record.Assessment = types.EmptyAssessment
		if previous.HasAssessment() {
			record.Assessment = previous.Assessment
		}
	default:
		record.Assessment = types.EmptyAssessment
		logger.Debug("New unpatched issue")
		result.Changes.Unpatched = append(result.Changes.Unpatched, record)
	}

	result.Patched.Delete(issue.ID)
	result.Unpatched.Set(issue.ID, record)
}
