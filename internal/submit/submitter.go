package submit

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/bandplan/internal/plan"
)

// Submitter is the submission primitive: it accepts one job descriptor and
// returns the identifier the scheduler assigned (or will assign) to it. It
// is invoked exactly once per descriptor, in emission order.
type Submitter interface {
	Submit(ctx context.Context, job plan.JobDescriptor) (string, error)
}

// ScriptSubmitter renders each submission as a line of the master script.
// The returned identifier is a shell variable reference resolved when the
// script runs; dependency expressions built from it therefore reference
// only variables assigned earlier in the script.
type ScriptSubmitter struct {
	// Verbose echoes each submission command before running it.
	Verbose bool

	lines []string
	// displayed tracks whether the $IDs display accumulator has been
	// seeded yet.
	displayed bool
}

// Submit appends the capture line for one job and returns its variable
// reference.
func (s *ScriptSubmitter) Submit(_ context.Context, job plan.JobDescriptor) (string, error) {
	if job.CaptureVar == "" {
		return "", fmt.Errorf("job %q has no capture variable", job.StageName)
	}

	cmd := job.Command
	if job.Nested {
		if !job.Dependency.Empty() {
			cmd += fmt.Sprintf(" --dependency \"%s\"", job.Dependency.SchedulerArg())
		}
		// The nested run prints its chain's final job identifier as the
		// last stdout line.
		cmd += " | tail -n 1"
	} else {
		if !job.Dependency.Empty() {
			cmd = spliceDependency(cmd, job.Dependency)
		}
		cmd += " | cut -d ' ' -f4"
	}

	s.lines = append(s.lines, "", "#"+job.StageName)
	if s.Verbose {
		s.lines = append(s.lines, fmt.Sprintf("echo Submitting %s with command: %s", job.StageName, shellQuote(cmd)))
	}
	s.lines = append(s.lines, fmt.Sprintf("%s=$(%s)", job.CaptureVar, cmd))

	ref := "$" + job.CaptureVar
	if s.displayed {
		s.lines = append(s.lines, "IDs+=,"+ref)
	} else {
		s.lines = append(s.lines, "IDs="+ref)
		s.displayed = true
	}
	return ref, nil
}

// Lines returns the accumulated script body.
func (s *ScriptSubmitter) Lines() []string { return s.lines }

// shellQuote wraps a command for a literal echo.
func shellQuote(cmd string) string {
	return "'" + strings.ReplaceAll(cmd, "'", "'\\''") + "'"
}

// spliceDependency inserts the scheduler dependency argument right after
// the submission command word.
func spliceDependency(cmd string, dep plan.DependencyExpression) string {
	arg := "--dependency=" + dep.SchedulerArg()
	word, rest, ok := strings.Cut(cmd, " ")
	if !ok {
		return cmd + " " + arg
	}
	return word + " " + arg + " " + rest
}
