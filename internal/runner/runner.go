// ABOUTME: Run orchestrator that sequences load, reconcile, and persist for one scan.
// ABOUTME: A failed load or reconciliation aborts the run before any state file is written.

package runner

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jfeddern/CVETrack/internal/engine"
	"github.com/jfeddern/CVETrack/internal/metrics"
	"github.com/jfeddern/CVETrack/internal/store"
	"github.com/jfeddern/CVETrack/internal/types"
	"github.com/jfeddern/CVETrack/internal/vex"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPatchedFile   = "results/patched.json"
	DefaultUnpatchedFile = "results/unpatched.json"
	DefaultChangedFile   = "results/changed.json"

	// Microsecond local time, the format earlier history files use
	DateTimeFormat = "2006-01-02T15:04:05.000000"
)

// test seam for the run clock.
var now = time.Now

// Config holds the resources a run reads and writes
type Config struct {
	ReportFile    string
	PatchedFile   string
	UnpatchedFile string
	ChangedFile   string

	VEXFile     string // Optional OpenVEX output
	VEXAuthor   string
	MetricsFile string // Optional Prometheus textfile output

	ResolvedStatuses []string
}

// State is the orchestrator's position in a run
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReconciling
	StatePersisting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReconciling:
		return "reconciling"
	case StatePersisting:
		return "persisting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome describes a completed run
type Outcome struct {
	Result   *engine.Result
	Snapshot types.Snapshot
	History  types.History
}

// Runner performs one load-reconcile-persist cycle
type Runner struct {
	config  *Config
	store   *store.Store
	engine  *engine.Engine
	metrics *metrics.MetricsWriter
	vex     *vex.OpenVex
	logger  *logrus.Logger
	state   State
}

// NewRunner creates a runner, filling in default state file locations
func NewRunner(config *Config, logger *logrus.Logger) *Runner {
	if config.PatchedFile == "" {
		config.PatchedFile = DefaultPatchedFile
	}
	if config.UnpatchedFile == "" {
		config.UnpatchedFile = DefaultUnpatchedFile
	}
	if config.ChangedFile == "" {
		config.ChangedFile = DefaultChangedFile
	}

	return &Runner{
		config:  config,
		store:   store.NewStore(logger),
		engine:  engine.NewEngine(engine.NewClassifier(config.ResolvedStatuses...), logger),
		metrics: metrics.NewMetricsWriter(logger),
		vex:     vex.NewOpenVex(config.VEXAuthor, logger),
		logger:  logger,
		state:   StateIdle,
	}
}

// State returns where the runner is in its lifecycle
func (r *Runner) State() State {
	return r.state
}

type inputs struct {
	report  *types.Report
	prior   engine.Prior
	history types.History
}

// Run executes the full cycle. It can only be called once per runner.
func (r *Runner) Run() (*Outcome, error) {
	if r.state != StateIdle {
		return nil, fmt.Errorf("runner already used (state %s)", r.state)
	}

	logger := r.logger.WithField("component", "runner")
	startTime := now()

	r.transition(StateLoading)
	in, err := r.load()
	if err != nil {
		return nil, r.fail(err)
	}

	r.transition(StateReconciling)
	result, err := r.engine.Reconcile(in.report, in.prior)
	if err != nil {
		return nil, r.fail(err)
	}

	snapshot := types.Snapshot{
		DateTime: startTime.Format(DateTimeFormat),
		Changes:  result.Changes,
	}
	history, err := in.history.Append(snapshot)
	if err != nil {
		return nil, r.fail(err)
	}

	r.transition(StatePersisting)
	if err := r.persist(result, history, startTime); err != nil {
		return nil, r.fail(err)
	}

	r.transition(StateDone)
	logger.WithFields(logrus.Fields{
		"duration":          now().Sub(startTime),
		"patched":           result.Patched.Len(),
		"unpatched":         result.Unpatched.Len(),
		"changes_patched":   len(result.Changes.Patched),
		"changes_unpatched": len(result.Changes.Unpatched),
		"history_snapshots": len(history),
	}).Info("CVE status run completed")

	return &Outcome{
		Result:   result,
		Snapshot: snapshot,
		History:  history,
	}, nil
}

func (r *Runner) load() (*inputs, error) {
	report, err := r.store.LoadReport(r.config.ReportFile)
	if err != nil {
		return nil, err
	}

	patched, err := r.store.LoadRecordSet(r.config.PatchedFile, store.KindPatched)
	if err != nil {
		return nil, err
	}

	unpatched, err := r.store.LoadRecordSet(r.config.UnpatchedFile, store.KindUnpatched)
	if err != nil {
		return nil, err
	}

	history, err := r.store.LoadHistory(r.config.ChangedFile)
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"component":         "runner",
		"packages":          len(report.Packages),
		"prior_patched":     patched.Len(),
		"prior_unpatched":   unpatched.Len(),
		"history_snapshots": len(history),
	}).Debug("Loaded run inputs")

	return &inputs{
		report:  report,
		prior:   engine.Prior{Patched: patched, Unpatched: unpatched},
		history: history,
	}, nil
}

// persist writes the three state files, then the optional outputs once they all succeed
func (r *Runner) persist(result *engine.Result, history types.History, timestamp time.Time) error {
	var allErrors *multierror.Error

	if err := r.store.SaveHistory(r.config.ChangedFile, history); err != nil {
		allErrors = multierror.Append(allErrors, err)
	}
	if err := r.store.SaveRecordSet(r.config.PatchedFile, result.Patched); err != nil {
		allErrors = multierror.Append(allErrors, err)
	}
	if err := r.store.SaveRecordSet(r.config.UnpatchedFile, result.Unpatched); err != nil {
		allErrors = multierror.Append(allErrors, err)
	}
	if allErrors != nil {
		return allErrors.ErrorOrNil()
	}

	if r.config.VEXFile != "" {
		if err := r.writeVEX(result, timestamp); err != nil {
			allErrors = multierror.Append(allErrors, err)
		}
	}

	if r.config.MetricsFile != "" {
		summary := metrics.RunSummary{
			Packages:         result.Packages,
			Patched:          result.Patched.Len(),
			Unpatched:        result.Unpatched.Len(),
			ChangesPatched:   len(result.Changes.Patched),
			ChangesUnpatched: len(result.Changes.Unpatched),
			HistorySnapshots: len(history),
			Timestamp:        timestamp,
		}
		if err := r.metrics.WriteTextfile(r.config.MetricsFile, summary); err != nil {
			allErrors = multierror.Append(allErrors, fmt.Errorf("failed to write metrics to %s: %w", r.config.MetricsFile, err))
		}
	}

	return allErrors.ErrorOrNil()
}

func (r *Runner) writeVEX(result *engine.Result, timestamp time.Time) error {
	doc, err := r.vex.CreateDocument(result.Patched, result.Unpatched, timestamp)
	if err != nil {
		return fmt.Errorf("failed to create VEX document: %w", err)
	}

	data, err := r.vex.Render(doc)
	if err != nil {
		return fmt.Errorf("failed to render VEX document: %w", err)
	}
	return r.store.WriteFile(r.config.VEXFile, data)
}

func (r *Runner) transition(state State) {
	r.logger.WithFields(logrus.Fields{
		"component": "runner",
		"from":      r.state.String(),
		"to":        state.String(),
	}).Debug("Run state changed")
	r.state = state
}

func (r *Runner) fail(err error) error {
	r.transition(StateFailed)

	fields := logrus.Fields{"component": "runner"}
	if code, ok := types.CodeOf(err); ok {
		fields["code"] = int(code)
		fields["reason"] = code.String()
	}
	r.logger.WithFields(fields).WithError(err).Error("CVE status run failed")
	return err
}
