package submit

import (
	"fmt"
	"strings"

	"github.com/vk/bandplan/internal/pipeline"
	"github.com/vk/bandplan/internal/plan"
)

// ancillaryScript is one companion helper generated by the master script at
// submission time, parameterized over the captured $IDs set. Each is a
// minimal shell wrapper; no planning logic lives here.
type ancillaryScript struct {
	name string
	// do is the shell fragment the master script runs to produce the
	// helper's body; $IDs expands to the captured identifier set.
	do      string
	purpose string
}

// ancillaries returns the fixed companion set for a plan. The cleanup
// helper is only generated when partition working directories exist.
func ancillaries(p *plan.ExecutionPlan) []ancillaryScript {
	logDir := pipeline.LogDir
	scripts := []ancillaryScript{
		{
			name:    "killJobs",
			do:      "echo scancel $IDs",
			purpose: "kill all the jobs",
		},
		{
			name:    "summary",
			do:      "echo sacct -j $IDs",
			purpose: "view the progress",
		},
		{
			// $IDs expands at generation time so the concrete identifiers
			// are baked in; \$ID stays literal for the helper's own loop.
			name: "findErrors",
			do: fmt.Sprintf(
				`echo "for ID in ${IDs//,/ }; do ls %s/*\$ID*.out 2> /dev/null; cat %s/*\$ID*.{out,err,casa} 2> /dev/null | grep 'SEVERE\|rror' | grep -v 'mpi\|MPI'; done"`,
				logDir, logDir),
			purpose: "find errors (after pipeline has run)",
		},
		{
			name:    "displayTimes",
			do:      `echo sacct -j $IDs --format='JobID%-15,JobName%-15,Submit,Start,End,Elapsed,State'`,
			purpose: "display start and end timestamps",
		},
	}

	if len(p.Partitions) > 0 {
		dirs := make([]string, len(p.Partitions))
		for i, part := range p.Partitions {
			dirs[i] = "'" + part.Dir + "'"
		}
		scripts = append(scripts, ancillaryScript{
			name:    "cleanup",
			do:      "echo rm -r " + strings.Join(dirs, " "),
			purpose: "remove the intermediate partitioned data (after postcal has run)",
		})
	}
	return scripts
}

// writeAncillaryBlock appends the master-script lines that generate each
// companion script, suffix it with the run date for uniqueness, mark it
// executable, and symlink it to a stable name.
func writeAncillaryBlock(b *strings.Builder, p *plan.ExecutionPlan) {
	dir := pipeline.JobScriptsDir
	for _, s := range ancillaries(p) {
		fname := fmt.Sprintf("%s/%s_$DATE.sh", dir, s.name)
		fmt.Fprintf(b, "\n#Create %s file, make executable and symlink to current version\n", fname)
		fmt.Fprintf(b, "echo \"#!/bin/bash\" > %s\n", fname)
		fmt.Fprintf(b, "%s >> %s\n", s.do, fname)
		fmt.Fprintf(b, "chmod u+x %s\n", fname)
		fmt.Fprintf(b, "ln -f -s %s_$DATE.sh %s/%s.sh\n", s.name, dir, s.name)
		// The purpose text contains shell metacharacters (parentheses), so
		// the echo argument must be quoted.
		fmt.Fprintf(b, "echo \"Run %s/%s.sh to %s.\"\n", dir, s.name, s.purpose)
	}
}
