// Package supervisor owns the game server child process: it drives the
// lifecycle state machine, pumps the output streams, serializes stdin
// writes, and drains the cross-process command queue.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/emberfall/stoker/internal/capture"
	"github.com/emberfall/stoker/internal/config"
	"github.com/emberfall/stoker/internal/events"
	"github.com/emberfall/stoker/internal/game"
	"github.com/emberfall/stoker/internal/queue"
)

// run bundles everything tied to one child process instance. A fresh run is
// created on every Start so channels and wait groups are never reused.
type run struct {
	handle    Handle
	cancel    context.CancelFunc
	startedAt time.Time
	ready     chan struct{}
	readyOnce sync.Once
	exited    chan struct{}
	exitCode  int
	pumps     sync.WaitGroup
}

type Supervisor struct {
	cfg      config.ServerConfig
	queueCfg config.QueueConfig
	bus      *events.Bus
	q        *queue.Queue
	cap      *capture.Capture
	adapter  game.Adapter
	launcher Launcher

	mu    sync.Mutex
	state State
	cur   *run

	// writeMu enforces the single-writer discipline on the child's stdin.
	writeMu sync.Mutex

	loopCancel context.CancelFunc
	loopWG     sync.WaitGroup
}

// New builds a Supervisor from config, picking the game adapter and the
// launcher (local process or container) the config names.
func New(cfg config.ServerConfig, queueCfg config.QueueConfig, bus *events.Bus, q *queue.Queue) (*Supervisor, error) {
	adapter := game.Get(cfg.Game)
	if adapter == nil {
		return nil, fmt.Errorf("unknown game %q", cfg.Game)
	}

	var launcher Launcher
	switch cfg.Runtime {
	case "", "process":
		launcher = &ProcessLauncher{
			Executable: cfg.Executable,
			Args:       cfg.Args,
			Workdir:    cfg.Workdir,
		}
	case "container":
		name := cfg.Container.Name
		if name == "" {
			name = "stoker-" + cfg.Game
		}
		cl, err := NewContainerLauncher(cfg.Container.Image, name)
		if err != nil {
			return nil, err
		}
		cl.Env = cfg.Container.Env
		cl.Binds = cfg.Container.Binds
		cl.MemoryLimit = cfg.Container.MemoryLimit
		launcher = cl
	default:
		return nil, fmt.Errorf("unknown runtime %q", cfg.Runtime)
	}

	return NewWithLauncher(cfg, queueCfg, bus, q, adapter, launcher), nil
}

// NewWithLauncher wires an explicit launcher; tests use this with a fake.
func NewWithLauncher(cfg config.ServerConfig, queueCfg config.QueueConfig, bus *events.Bus, q *queue.Queue, adapter game.Adapter, launcher Launcher) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		queueCfg: queueCfg,
		bus:      bus,
		q:        q,
		cap:      capture.New(),
		adapter:  adapter,
		launcher: launcher,
		state:    StateStopped,
	}
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsAlive is true iff a child process exists (Starting, Running, Stopping).
func (s *Supervisor) IsAlive() bool {
	return s.State().alive()
}

func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return 0
	}
	return s.cur.handle.PID()
}

func (s *Supervisor) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil || !s.state.alive() {
		return 0
	}
	return time.Since(s.cur.startedAt)
}

// Capture exposes the output capture component (the console API uses it).
func (s *Supervisor) Capture() *capture.Capture { return s.cap }

func (s *Supervisor) Adapter() game.Adapter { return s.adapter }

// setState changes the state and fires ServerStateChanged. The bus is
// invoked outside the mutex so listeners may call back into the Supervisor.
func (s *Supervisor) setState(next State) {
	s.mu.Lock()
	if s.state == next {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = next
	s.mu.Unlock()

	log.Printf("supervisor: state %s -> %s", prev, next)
	s.bus.Publish(&events.ServerStateChanged{Old: prev.String(), New: next.String()})
}

// Start spawns the server. Returns false without changing state when the
// launch preconditions fail or the current state does not allow starting.
// On success it blocks until the server reports ready (or the ready grace
// timeout elapses) and the state is Running.
func (s *Supervisor) Start() bool {
	s.mu.Lock()
	if s.state != StateStopped && s.state != StateCrashed {
		log.Printf("supervisor: cannot start from state %s", s.state)
		s.mu.Unlock()
		return false
	}
	if err := s.launcher.Validate(); err != nil {
		s.mu.Unlock()
		log.Printf("supervisor: cannot start: %v", err)
		return false
	}
	s.mu.Unlock()

	s.setState(StateStarting)
	s.bus.Publish(&events.ServerStarting{
		Command: s.launcher.CommandLine(),
		Workdir: s.cfg.Workdir,
	})

	ctx, cancel := context.WithCancel(context.Background())
	handle, err := s.launcher.Launch(ctx)
	if err != nil {
		cancel()
		log.Printf("supervisor: spawn failed: %v", err)
		s.setState(StateStopped)
		return false
	}

	r := &run{
		handle:    handle,
		cancel:    cancel,
		startedAt: time.Now(),
		ready:     make(chan struct{}),
		exited:    make(chan struct{}),
	}

	s.mu.Lock()
	s.cur = r
	s.mu.Unlock()

	log.Printf("supervisor: server process started, pid %d", handle.PID())

	r.pumps.Add(2)
	go s.pumpLines(r, handle.Stdout(), "stdout")
	go s.pumpLines(r, handle.Stderr(), "stderr")
	go s.waitExit(r)

	// Readiness: the adapter's ready line, bounded by the grace timeout.
	// Either way the transition is deterministic.
	select {
	case <-r.ready:
	case <-r.exited:
		// Died during startup; waitExit runs the crash path.
		return false
	case <-time.After(s.cfg.ReadyTimeout):
		log.Printf("supervisor: no ready line within %s, assuming running", s.cfg.ReadyTimeout)
	}

	s.mu.Lock()
	if s.cur != r || s.state != StateStarting {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	s.setState(StateRunning)
	s.bus.Publish(&events.ServerStarted{
		PID:         handle.PID(),
		StartupTime: time.Since(r.startedAt),
	})
	return true
}

// Stop shuts the server down. Graceful stops write the adapter's stop
// command to stdin and escalate to a kill when the timeout elapses.
// Calling Stop when already stopped is a no-op success.
func (s *Supervisor) Stop(force bool, timeout time.Duration) bool {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return true
	}
	if s.state != StateRunning && s.state != StateStarting {
		log.Printf("supervisor: cannot stop from state %s", s.state)
		s.mu.Unlock()
		return false
	}
	r := s.cur
	s.mu.Unlock()
	if r == nil {
		return false
	}

	s.setState(StateStopping)
	reason := "requested"
	if force {
		reason = "forced"
	}
	s.bus.Publish(&events.ServerStopping{Reason: reason, Force: force})

	if !force {
		s.writeLine(r, s.adapter.StopCommand())
	} else {
		r.handle.Kill()
	}

	select {
	case <-r.exited:
	case <-time.After(timeout):
		log.Printf("supervisor: no exit within %s, killing", timeout)
		r.handle.Kill()
		<-r.exited
	}

	r.cancel()
	r.pumps.Wait()
	uptime := time.Since(r.startedAt)
	s.clearRun(r)
	s.setState(StateStopped)
	s.bus.Publish(&events.ServerStopped{ExitCode: r.exitCode, Uptime: uptime})
	return true
}

// Restart composes Stop and Start with the configured delay between them.
func (s *Supervisor) Restart() bool {
	if !s.Stop(false, s.cfg.StopTimeout) {
		return false
	}
	time.Sleep(s.cfg.RestartDelay)
	return s.Start()
}

// SendCommand writes one command line to the server's stdin. Fails unless
// the server is Running. Blocks only on the write itself.
func (s *Supervisor) SendCommand(text string) bool {
	s.mu.Lock()
	if s.state != StateRunning || s.cur == nil {
		log.Printf("supervisor: cannot send command in state %s", s.state)
		s.mu.Unlock()
		return false
	}
	r := s.cur
	s.mu.Unlock()
	return s.writeLine(r, text)
}

// SendCommandViaQueue enqueues the command in the shared queue and waits for
// the drain loop to execute it. Usable from any goroutine; the queue itself
// is also reachable from other OS processes.
func (s *Supervisor) SendCommandViaQueue(ctx context.Context, text string, timeout time.Duration) (queue.Result, bool) {
	id, err := s.q.Add(text, timeout)
	if err != nil {
		return queue.Result{Status: "completed", Error: err.Error()}, false
	}
	res := s.q.WaitForCompletion(ctx, id, timeout)
	return res, res.Status == "completed" && res.Success
}

// writeLine holds the single-writer lock for the duration of the write.
// A failed write means a broken pipe: the process is gone or wedged, so it
// is killed to force the exit path and the crash handling that follows.
func (s *Supervisor) writeLine(r *run, text string) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := io.WriteString(r.handle.Stdin(), strings.TrimSpace(text)+"\n")
	if err != nil {
		log.Printf("supervisor: stdin write failed: %v", err)
		r.handle.Kill()
		return false
	}
	return true
}

// pumpLines delivers output lines in order: capture first, then the log
// event, then any structured event the classifier extracts.
func (s *Supervisor) pumpLines(r *run, stream io.Reader, source string) {
	defer r.pumps.Done()
	readLines(stream, func(line string) {
		s.handleLine(r, source, line)
	})
}

func (s *Supervisor) handleLine(r *run, source, line string) {
	s.cap.ProcessLine(line)

	level := s.adapter.Level(line)
	if source == "stderr" {
		level = "ERROR"
	}
	s.bus.Publish(&events.LogLine{Level: level, Message: line})

	if ev := s.adapter.ParseLine(line); ev != nil {
		s.bus.Publish(ev)
	}

	if s.adapter.IsReady(line) {
		r.readyOnce.Do(func() { close(r.ready) })
	}
}

// waitExit is the exit-waiter pump. A process death while the state is
// Running or Starting is a crash; planned stops are finished by Stop.
func (s *Supervisor) waitExit(r *run) {
	code := r.handle.Wait()
	r.exitCode = code
	close(r.exited)
	log.Printf("supervisor: server process exited with code %d", code)

	s.mu.Lock()
	st := s.state
	planned := st == StateStopping || st == StateStopped || s.cur != r
	s.mu.Unlock()
	if planned {
		return
	}

	r.cancel()
	r.pumps.Wait()
	s.clearRun(r)
	s.setState(StateCrashed)

	ev := &events.ServerCrashed{ExitCode: code, WillRestart: s.cfg.AutoRestart}
	s.bus.Publish(ev)

	// Cancelling the crash event is the one way to veto the restart.
	if s.cfg.AutoRestart && !ev.Cancelled() {
		log.Printf("supervisor: auto-restarting in %s", s.cfg.RestartDelay)
		time.Sleep(s.cfg.RestartDelay)
		s.Start()
	}
}

func (s *Supervisor) clearRun(r *run) {
	s.mu.Lock()
	if s.cur == r {
		s.cur = nil
	}
	s.mu.Unlock()
}
