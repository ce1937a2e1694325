package loader

import (
	"fmt"

	"go.uber.org/zap"
)

// Phase is a step of the compile pipeline.
type Phase int

const (
	PhaseRead Phase = iota
	PhaseEnumerate
	PhaseSubshapes
	PhaseObjects
	PhaseSkins
	PhaseMaterials
	PhaseDefaultStates
	PhaseSequences
	PhaseInstall
	PhaseComplete
)

var phaseNames = [...]string{
	"read",
	"enumerate",
	"subshapes",
	"objects",
	"skins",
	"materials",
	"default-states",
	"sequences",
	"install",
	"complete",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Progress is reported once per phase and once per sequence. It is advisory
// only.
type Progress struct {
	Phase    Phase
	Message  string
	NumMinor int
	Minor    int
}

// ProgressFunc receives progress reports.
type ProgressFunc func(Progress)

// Severity grades a diagnostic.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "debug"
}

// Diagnostic is a recoverable problem or note recorded during a compile.
type Diagnostic struct {
	Phase    Phase
	Severity Severity
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s] %s: %s", d.Severity, d.Phase, d.Message)
}

func (l *Loader) warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.diags = append(l.diags, Diagnostic{Phase: l.phase, Severity: SeverityWarning, Message: msg})
	l.log.Warn(msg, zap.Stringer("phase", l.phase))
}

func (l *Loader) debugf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.diags = append(l.diags, Diagnostic{Phase: l.phase, Severity: SeverityDebug, Message: msg})
	l.log.Debug(msg, zap.Stringer("phase", l.phase))
}

func (l *Loader) warningCount() int {
	n := 0
	for _, d := range l.diags {
		if d.Severity == SeverityWarning {
			n++
		}
	}
	return n
}
