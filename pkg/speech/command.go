package speech

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes a synthesizer binary and returns its standard output. It
// must honour ctx cancellation by terminating the process. CLI-based
// platforms accept a Runner so tests can stand in for the real binary.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// RunCommand is the default [Runner]. It runs name via [exec.CommandContext],
// so cancelling ctx kills the process. Standard error is included in the
// returned error; a cancelled run reports ctx.Err() only.
func RunCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: %w, stderr: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
