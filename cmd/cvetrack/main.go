// ABOUTME: Entry point for cvetrack, which tracks CVE status changes between scans.
// ABOUTME: Parses flags and CVETRACK_* environment overrides, runs one cycle, and maps failures to exit codes.

package main

import (
	"errors"
	"os"
	"strings"

	"github.com/jfeddern/CVETrack/internal/engine"
	"github.com/jfeddern/CVETrack/internal/runner"
	"github.com/jfeddern/CVETrack/internal/types"
	"github.com/jfeddern/CVETrack/internal/vex"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	exitFailure = 1
	exitUsage   = 2
)

// Globals for version reporting.
var version string

// usageError marks failures detected before a run starts
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	}

	rootCmd := newRootCmd(viper.New(), logger)
	if err := rootCmd.Execute(); err != nil {
		// The runner logs its own failures
		var usage *usageError
		if errors.As(err, &usage) {
			logger.WithError(err).Error("Invalid invocation")
		}
		os.Exit(exitStatus(err))
	}
}

func newRootCmd(v *viper.Viper, logger *logrus.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cvetrack <report.json>",
		Short: "Track CVE status changes between scans",
		Long: `cvetrack reads a cve-check JSON report, compares it with the patched and unpatched
sets from the previous run, and appends the transitions to a change history.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				return &usageError{err: err}
			}
			return nil
		},
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return configureLogger(v, logger)
		},
		RunE: func(_ *cobra.Command, args []string) error {
			_, err := runner.NewRunner(buildConfig(v, args[0]), logger).Run()
			return err
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	flags := rootCmd.Flags()
	flags.String("patched", runner.DefaultPatchedFile, "Output filename of the list of patched CVEs")
	flags.String("unpatched", runner.DefaultUnpatchedFile, "Output filename of the list of unpatched CVEs")
	flags.String("changed", runner.DefaultChangedFile, "Output filename of the list of changes since the last run")
	flags.String("vex", "", "Optional output filename for an OpenVEX document of the current sets")
	flags.String("vex-author", vex.DefaultAuthor, "Author recorded in the OpenVEX document")
	flags.String("metrics-file", "", "Optional Prometheus textfile to write run metrics to")
	flags.StringSlice("resolved-status", engine.DefaultResolvedStatuses, "Issue statuses treated as patched")
	flags.Bool("debug", false, "Enable debug level logging")
	flags.String("log-format", "json", "Log format: json or text")

	v.SetEnvPrefix("cvetrack")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		logger.WithError(err).Fatal("Failed to bind flags")
	}

	return rootCmd
}

func buildConfig(v *viper.Viper, reportFile string) *runner.Config {
	return &runner.Config{
		ReportFile:       reportFile,
		PatchedFile:      v.GetString("patched"),
		UnpatchedFile:    v.GetString("unpatched"),
		ChangedFile:      v.GetString("changed"),
		VEXFile:          v.GetString("vex"),
		VEXAuthor:        v.GetString("vex-author"),
		MetricsFile:      v.GetString("metrics-file"),
		ResolvedStatuses: v.GetStringSlice("resolved-status"),
	}
}

func configureLogger(v *viper.Viper, logger *logrus.Logger) error {
	if v.GetBool("debug") {
		logger.SetLevel(logrus.DebugLevel)
	}

	switch format := v.GetString("log-format"); format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return &usageError{err: errors.New("invalid log format " + format + ": must be json or text")}
	}
	return nil
}

// exitStatus maps a run error to the process exit status
func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	if code, ok := types.CodeOf(err); ok {
		return code.ExitStatus()
	}
	var usage *usageError
	if errors.As(err, &usage) {
		return exitUsage
	}
	return exitFailure
}
