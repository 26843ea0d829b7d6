package run

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// CommandSpec describes one runner invocation.
type CommandSpec struct {
	Path string
	Args []string
	Dir  string
	Env  []string
}

// Handle wraps one spawned runner process. It carries no business state
// beyond the OS handle and its combined output stream.
type Handle interface {
	// Stdout is the process's combined stdout/stderr stream
	Stdout() io.Reader
	// Wait blocks until the process exits
	Wait() error
	// Terminate sends a termination request; best-effort, never blocking
	Terminate() error
}

// Spawner starts runner processes. The indirection keeps scheduling and
// cancellation testable with fake processes.
type Spawner interface {
	Spawn(ctx context.Context, spec CommandSpec) (Handle, error)
}

// ExecSpawner spawns real OS processes.
type ExecSpawner struct{}

// NewExecSpawner returns a Spawner backed by os/exec.
func NewExecSpawner() *ExecSpawner {
	return &ExecSpawner{}
}

// Spawn starts the process with stdout and stderr joined into one stream.
func (s *ExecSpawner) Spawn(ctx context.Context, spec CommandSpec) (Handle, error) {
	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("failed to start %s: %w", spec.Path, err)
	}
	// The child holds its own copy of the write end; closing ours makes the
	// read end reach EOF when the child exits.
	pw.Close()

	return &execHandle{cmd: cmd, out: pr}, nil
}

type execHandle struct {
	cmd *exec.Cmd
	out *os.File
}

func (h *execHandle) Stdout() io.Reader { return h.out }

func (h *execHandle) Wait() error {
	defer h.out.Close()
	return h.cmd.Wait()
}

func (h *execHandle) Terminate() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Signal(syscall.SIGTERM)
}
