package submit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/vk/bandplan/internal/ctxlog"
	"github.com/vk/bandplan/internal/pipeline"
)

// ExecuteMaster runs the emitted master script, blocking until every
// submission in it has returned an identifier. The script's last output
// line — the final job of the chain — is returned so parent runs can gate
// on it. When quiet, the script's chatter goes nowhere and only the final
// identifier reaches outW's caller.
func ExecuteMaster(ctx context.Context, dir string, outW io.Writer, quiet bool) (string, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Running master submission script.", "script", pipeline.MasterScript, "dir", dir)

	var captured bytes.Buffer
	stdout := io.Writer(&captured)
	if !quiet {
		stdout = io.MultiWriter(&captured, outW)
	}

	cmd := exec.CommandContext(ctx, "/bin/bash", pipeline.MasterScript)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("master script failed: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(captured.String()), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return "", fmt.Errorf("master script produced no job identifier")
	}
	return last, nil
}
