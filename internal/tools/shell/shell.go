// Package shell registers the run_command tool. Commands run through the
// shell in their own process group so that a timeout kills the whole tree,
// not just the immediate child.
package shell

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"memchat/internal/logging"
	"memchat/internal/policy"
	"memchat/internal/tools"
)

// maxOutputBytes caps combined stdout+stderr fed back into the conversation.
const maxOutputBytes = 50000

// Register adds the shell tool to the registry.
func Register(reg *tools.Registry) error {
	return reg.Register(runCommandTool())
}

func runCommandTool() *tools.Tool {
	return &tools.Tool{
		Name:            "run_command",
		Description:     "Run a shell command and return its combined stdout and stderr.",
		Category:        tools.CategorySideEffecting,
		Target:          policy.TargetCommand,
		TargetParameter: "command",
		Schema: tools.Schema{
			Properties: map[string]tools.Property{
				"command":     {Type: "string", Description: "The shell command to execute"},
				"working_dir": {Type: "string", Description: "Directory to run in (optional)"},
			},
			Required: []string{"command"},
		},
		Execute: runCommand,
	}
}

func runCommand(ctx context.Context, args map[string]interface{}) (string, error) {
	command := args["command"].(string)
	workingDir, _ := args["working_dir"].(string)

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if workingDir != "" {
		cmd.Dir = workingDir
	}

	// Own process group, killed as a group on cancellation. Without this a
	// timed-out `sh -c "sleep 600"` would leave the sleep running after sh
	// dies.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	logging.Tools("run_command: %s", command)
	start := time.Now()
	output, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	text := strings.TrimRight(string(output), "\n")
	if len(text) > maxOutputBytes {
		text = text[:maxOutputBytes] + fmt.Sprintf("\n... [truncated at %d bytes]", maxOutputBytes)
	}

	if err != nil {
		if ctx.Err() != nil {
			// Let the dispatcher report the distinct timeout outcome.
			return "", ctx.Err()
		}
		if text != "" {
			return "", fmt.Errorf("command failed (%v): %s", err, text)
		}
		return "", fmt.Errorf("command failed: %w", err)
	}

	logging.ToolsDebug("run_command finished in %v (%d bytes)", elapsed, len(output))
	if text == "" {
		return "(no output)", nil
	}
	return text, nil
}
