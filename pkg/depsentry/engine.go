package depsentry

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/depsentry/depsentry/pkg/depsentry/suppression"
)

// Finding is a single vulnerability finding reported by the scanning engine.
type Finding struct {
	ID          string  `json:"id"`
	PackageName string  `json:"package"`
	CvssScore   float64 `json:"cvssScore"`
	Severity    string  `json:"severity,omitempty"`
}

// Report is the engine's scan result. Suppressed findings are kept separate
// so reports can show what the suppression rules filtered out.
type Report struct {
	Findings   []Finding `json:"findings"`
	Suppressed []Finding `json:"suppressed,omitempty"`
}

// Engine is the boundary to the external vulnerability-scanning engine. The
// plugin's only interaction in scope is injecting the merged suppression rule
// set before the scan starts.
type Engine interface {
	// SupportsSuppressions reports whether the engine's suppression
	// subsystem is present and enabled. When it is not, no injection is
	// attempted.
	SupportsSuppressions() bool

	// InjectSuppressions hands the merged rule set to the engine. Called
	// once, before Scan.
	InjectSuppressions(rules []suppression.Rule) error

	// Scan runs the engine against target.
	Scan(ctx context.Context, target string) (*Report, error)
}

const (
	// placeholderSuppressions is replaced with the path of the merged
	// suppression file in the engine command line.
	placeholderSuppressions = "{{suppressions}}"
	// placeholderTarget is replaced with the scan target.
	placeholderTarget = "{{target}}"
)

// ExecEngine drives an external scanning engine binary. The injected rules
// are serialized to a temporary suppression file whose path replaces the
// {{suppressions}} placeholder in the command line; the engine's JSON report
// is read from stdout.
type ExecEngine struct {
	Command []string

	rules []suppression.Rule
}

// NewExecEngine returns an engine invoking the given command line.
func NewExecEngine(command []string) *ExecEngine {
	return &ExecEngine{Command: command}
}

// SupportsSuppressions reports whether the command line accepts a
// suppression file.
func (e *ExecEngine) SupportsSuppressions() bool {
	for _, arg := range e.Command {
		if strings.Contains(arg, placeholderSuppressions) {
			return true
		}
	}
	return false
}

// InjectSuppressions stores the rules for the next Scan.
func (e *ExecEngine) InjectSuppressions(rules []suppression.Rule) error {
	e.rules = rules
	return nil
}

// Scan executes the engine command and decodes its JSON report.
func (e *ExecEngine) Scan(ctx context.Context, target string) (*Report, error) {
	if len(e.Command) == 0 {
		return nil, xerrors.Errorf("no scanning engine configured")
	}

	suppressionFile, cleanup, err := e.writeSuppressionFile()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	args := expandPlaceholders(e.Command, suppressionFile, target)
	log.WithField("command", strings.Join(args, " ")).Debug("Invoking scanning engine")

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stderr = os.Stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, xerrors.Errorf("scanning engine failed: %w", err)
	}

	var report Report
	if err := json.Unmarshal(out, &report); err != nil {
		return nil, xerrors.Errorf("cannot parse engine report: %w", err)
	}
	return &report, nil
}

func (e *ExecEngine) writeSuppressionFile() (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "depsentry-engine-*.xml")
	if err != nil {
		return "", nil, xerrors.Errorf("cannot create suppression file for engine: %w", err)
	}
	path = f.Name()
	cleanup = func() {
		if err := os.Remove(path); err != nil {
			log.WithError(err).WithField("path", path).Warn("Cannot remove temporary suppression file")
		}
	}

	if err := suppression.Write(f, e.rules); err != nil {
		f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, xerrors.Errorf("cannot close suppression file for engine: %w", err)
	}
	return path, cleanup, nil
}

func expandPlaceholders(command []string, suppressionFile, target string) []string {
	args := make([]string, 0, len(command))
	for _, arg := range command {
		arg = strings.ReplaceAll(arg, placeholderSuppressions, suppressionFile)
		arg = strings.ReplaceAll(arg, placeholderTarget, target)
		args = append(args, arg)
	}
	return args
}
