package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Handle is a running server instance. The Supervisor is its only owner:
// it is the sole caller of Wait and the sole writer to Stdin.
type Handle interface {
	PID() int
	Stdin() io.Writer
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until the process exits and returns its exit code.
	// Must be called exactly once.
	Wait() int
	// Kill forcefully terminates the process.
	Kill() error
}

// Launcher spawns the server. Two implementations exist: a local process
// and a Docker container.
type Launcher interface {
	// Validate checks the launch preconditions without spawning anything.
	Validate() error
	Launch(ctx context.Context) (Handle, error)
	// CommandLine describes what will be launched, for logging and events.
	CommandLine() string
}

// ProcessLauncher runs the server as a local child process.
type ProcessLauncher struct {
	Executable string
	Args       []string
	Workdir    string
}

func (l *ProcessLauncher) CommandLine() string {
	return strings.TrimSpace(l.Executable + " " + strings.Join(l.Args, " "))
}

// Validate checks that the executable (and the jar it points at, if any)
// exists. A bare command name is resolved through PATH.
func (l *ProcessLauncher) Validate() error {
	if l.Executable == "" {
		return errors.New("no executable configured")
	}
	if strings.ContainsRune(l.Executable, os.PathSeparator) {
		if _, err := os.Stat(l.Executable); err != nil {
			return fmt.Errorf("executable not found: %s", l.Executable)
		}
	} else if _, err := exec.LookPath(l.Executable); err != nil {
		return fmt.Errorf("executable not found in PATH: %s", l.Executable)
	}
	// A "-jar foo.jar" style invocation also needs the jar on disk.
	for i, arg := range l.Args {
		if arg == "-jar" && i+1 < len(l.Args) {
			jar := l.Args[i+1]
			if !filepath.IsAbs(jar) {
				jar = filepath.Join(l.Workdir, jar)
			}
			if _, err := os.Stat(jar); err != nil {
				return fmt.Errorf("server jar not found: %s", jar)
			}
		}
	}
	return nil
}

func (l *ProcessLauncher) Launch(ctx context.Context) (Handle, error) {
	cmd := exec.CommandContext(ctx, l.Executable, l.Args...)
	cmd.Dir = l.Workdir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", l.Executable, err)
	}
	return &processHandle{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

type processHandle struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader
}

func (h *processHandle) PID() int          { return h.cmd.Process.Pid }
func (h *processHandle) Stdin() io.Writer  { return h.stdin }
func (h *processHandle) Stdout() io.Reader { return h.stdout }
func (h *processHandle) Stderr() io.Reader { return h.stderr }

func (h *processHandle) Wait() int {
	err := h.cmd.Wait()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func (h *processHandle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

// readLines pumps a stream line by line into fn until EOF or read error.
func readLines(r io.Reader, fn func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line != "" {
			fn(line)
		}
	}
}
