package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Stage is one runnable pipeline step. Run blocks until the stage exits
// and returns its exit code; every produced output line is handed to
// onLine with no more than one line of buffering delay.
type Stage interface {
	Name() string
	Run(ctx context.Context, onLine func(line string)) (int, error)
}

// ExecStage runs a stage as a child process. Cancellation delivers
// SIGTERM; a process that ignores it is killed after a grace period.
type ExecStage struct {
	name string
	bin  string
	args []string

	// Env entries are appended to the parent environment.
	Env []string
	// OnStart is invoked with the child pid right after spawn.
	OnStart func(pid int)

	Logger *log.Logger

	mu  sync.Mutex
	pid int
}

var _ Stage = (*ExecStage)(nil)

// NewExecStage creates a child-process stage.
func NewExecStage(name, bin string, args ...string) *ExecStage {
	return &ExecStage{name: name, bin: bin, args: args}
}

// Name implements Stage.
func (s *ExecStage) Name() string { return s.name }

// Pid returns the pid of the running child, or 0.
func (s *ExecStage) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

// Run spawns the child and streams its stdout and stderr line by line.
func (s *ExecStage) Run(ctx context.Context, onLine func(string)) (int, error) {
	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}

	cmd := exec.CommandContext(ctx, s.bin, s.args...)
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("stage %s: stdout pipe: %w", s.name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, fmt.Errorf("stage %s: stderr pipe: %w", s.name, err)
	}

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("stage %s: spawn %s: %w", s.name, s.bin, err)
	}

	s.mu.Lock()
	s.pid = cmd.Process.Pid
	s.mu.Unlock()
	if s.OnStart != nil {
		s.OnStart(cmd.Process.Pid)
	}
	logger.Printf("[supervisor] stage %s started, pid %d", s.name, cmd.Process.Pid)

	var wg sync.WaitGroup
	for _, pipe := range []struct {
		r    interface{ Read([]byte) (int, error) }
		name string
	}{{stdout, "stdout"}, {stderr, "stderr"}} {
		wg.Add(1)
		go func(r interface{ Read([]byte) (int, error) }) {
			defer wg.Done()
			scanner := bufio.NewScanner(r)
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			for scanner.Scan() {
				onLine(scanner.Text())
			}
		}(pipe.r)
	}
	wg.Wait()

	waitErr := cmd.Wait()
	s.mu.Lock()
	s.pid = 0
	s.mu.Unlock()

	code := cmd.ProcessState.ExitCode()
	if waitErr != nil && code == 0 {
		return -1, fmt.Errorf("stage %s: %w", s.name, waitErr)
	}
	return code, nil
}

// FuncStage runs a stage in-process. The function's error maps to a
// non-zero exit code, preserving the child-process contract.
type FuncStage struct {
	name string
	fn   func(ctx context.Context, onLine func(string)) error
}

var _ Stage = (*FuncStage)(nil)

// NewFuncStage creates an in-process stage.
func NewFuncStage(name string, fn func(ctx context.Context, onLine func(string)) error) *FuncStage {
	return &FuncStage{name: name, fn: fn}
}

// Name implements Stage.
func (s *FuncStage) Name() string { return s.name }

// Run implements Stage.
func (s *FuncStage) Run(ctx context.Context, onLine func(string)) (int, error) {
	if err := s.fn(ctx, onLine); err != nil {
		if ctx.Err() != nil {
			// Cancelled stages mirror a SIGTERM'd child.
			return -1, nil
		}
		return 1, err
	}
	return 0, nil
}
