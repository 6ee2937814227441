package supervisor

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emberfall/stoker/internal/config"
	"github.com/emberfall/stoker/internal/db"
	"github.com/emberfall/stoker/internal/events"
	"github.com/emberfall/stoker/internal/queue"
)

// fakeHandle is a scriptable child process. Tests feed its stdout through
// emit and script reactions to stdin writes with onStdin.
type fakeHandle struct {
	pid      int
	exitCh   chan struct{}
	exitCode int
	exitOnce sync.Once

	stdinMu  sync.Mutex
	stdinBuf strings.Builder
	onStdin  func(line string)

	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter
}

func newFakeHandle(pid int) *fakeHandle {
	h := &fakeHandle{pid: pid, exitCh: make(chan struct{})}
	h.stdoutR, h.stdoutW = io.Pipe()
	h.stderrR, h.stderrW = io.Pipe()
	return h
}

func (h *fakeHandle) PID() int          { return h.pid }
func (h *fakeHandle) Stdin() io.Writer  { return stdinWriter{h} }
func (h *fakeHandle) Stdout() io.Reader { return h.stdoutR }
func (h *fakeHandle) Stderr() io.Reader { return h.stderrR }

func (h *fakeHandle) Wait() int {
	<-h.exitCh
	return h.exitCode
}

func (h *fakeHandle) Kill() error {
	h.exit(-1)
	return nil
}

func (h *fakeHandle) exit(code int) {
	h.exitOnce.Do(func() {
		h.exitCode = code
		h.stdoutW.Close()
		h.stderrW.Close()
		close(h.exitCh)
	})
}

func (h *fakeHandle) emit(line string) {
	io.WriteString(h.stdoutW, line+"\n")
}

func (h *fakeHandle) stdin() string {
	h.stdinMu.Lock()
	defer h.stdinMu.Unlock()
	return h.stdinBuf.String()
}

type stdinWriter struct{ h *fakeHandle }

func (w stdinWriter) Write(p []byte) (int, error) {
	select {
	case <-w.h.exitCh:
		return 0, io.ErrClosedPipe
	default:
	}
	w.h.stdinMu.Lock()
	w.h.stdinBuf.Write(p)
	cb := w.h.onStdin
	w.h.stdinMu.Unlock()
	if cb != nil {
		cb(strings.TrimSpace(string(p)))
	}
	return len(p), nil
}

type fakeLauncher struct {
	mu       sync.Mutex
	handles  []*fakeHandle
	onLaunch func(h *fakeHandle)
}

func (l *fakeLauncher) Validate() error     { return nil }
func (l *fakeLauncher) CommandLine() string { return "fake-server" }

func (l *fakeLauncher) Launch(ctx context.Context) (Handle, error) {
	l.mu.Lock()
	h := newFakeHandle(1000 + len(l.handles))
	l.handles = append(l.handles, h)
	l.mu.Unlock()
	if l.onLaunch != nil {
		l.onLaunch(h)
	}
	return h, nil
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handles)
}

func (l *fakeLauncher) last() *fakeHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handles[len(l.handles)-1]
}

// fakeAdapter speaks a trivial line protocol: READY marks readiness and
// "JOIN name" is a player join.
type fakeAdapter struct{}

func (fakeAdapter) Game() string { return "fake" }

func (fakeAdapter) ParseLine(line string) events.Event {
	if name, ok := strings.CutPrefix(line, "JOIN "); ok {
		return &events.PlayerJoin{Name: name}
	}
	return nil
}

func (fakeAdapter) IsReady(line string) bool { return line == "READY" }
func (fakeAdapter) Level(string) string      { return "INFO" }
func (fakeAdapter) PlayerCommand() string    { return "list" }
func (fakeAdapter) StopCommand() string      { return "stop" }

type recorder struct {
	mu  sync.Mutex
	all []events.Event
}

func (r *recorder) record(ev events.Event) error {
	r.mu.Lock()
	r.all = append(r.all, ev)
	r.mu.Unlock()
	return nil
}

func (r *recorder) count(kind events.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.all {
		if ev.Kind() == kind {
			n++
		}
	}
	return n
}

func (r *recorder) first(kind events.Kind) events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.all {
		if ev.Kind() == kind {
			return ev
		}
	}
	return nil
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Game:         "fake",
		Runtime:      "process",
		Executable:   "fake",
		AutoRestart:  false,
		RestartDelay: 10 * time.Millisecond,
		StopTimeout:  2 * time.Second,
		ReadyTimeout: 100 * time.Millisecond,
	}
}

func testQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		DrainInterval:   20 * time.Millisecond,
		CaptureWindow:   80 * time.Millisecond,
		Retention:       time.Hour,
		CleanupInterval: time.Hour,
	}
}

func newTestSupervisor(t *testing.T, cfg config.ServerConfig) (*Supervisor, *fakeLauncher, *events.Bus, *queue.Queue) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	bus := events.NewBus()
	q := queue.New(database)
	launcher := &fakeLauncher{}
	sup := NewWithLauncher(cfg, testQueueConfig(), bus, q, fakeAdapter{}, launcher)
	return sup, launcher, bus, q
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartDetectsReadyLine(t *testing.T) {
	cfg := testServerConfig()
	cfg.ReadyTimeout = 5 * time.Second
	sup, launcher, bus, _ := newTestSupervisor(t, cfg)
	launcher.onLaunch = func(h *fakeHandle) {
		go h.emit("READY")
	}

	rec := &recorder{}
	bus.SubscribeAll(rec.record, events.Normal, false)

	if !sup.Start() {
		t.Fatal("Start returned false")
	}
	defer sup.Stop(true, time.Second)

	if got := sup.State(); got != StateRunning {
		t.Errorf("State = %s, want %s", got, StateRunning)
	}
	if n := rec.count(events.KindServerStarting); n != 1 {
		t.Errorf("ServerStarting fired %d times, want 1", n)
	}
	if n := rec.count(events.KindServerStarted); n != 1 {
		t.Errorf("ServerStarted fired %d times, want 1", n)
	}
	started := rec.first(events.KindServerStarted).(*events.ServerStarted)
	if started.PID != launcher.last().pid {
		t.Errorf("ServerStarted.PID = %d, want %d", started.PID, launcher.last().pid)
	}
}

func TestStartFallsBackToGraceTimeout(t *testing.T) {
	sup, _, _, _ := newTestSupervisor(t, testServerConfig())

	if !sup.Start() {
		t.Fatal("Start returned false")
	}
	defer sup.Stop(true, time.Second)

	if got := sup.State(); got != StateRunning {
		t.Errorf("State = %s, want %s", got, StateRunning)
	}
}

func TestStartWhileRunningFails(t *testing.T) {
	sup, launcher, _, _ := newTestSupervisor(t, testServerConfig())

	if !sup.Start() {
		t.Fatal("first Start returned false")
	}
	defer sup.Stop(true, time.Second)

	if sup.Start() {
		t.Error("second Start should fail while running")
	}
	if launcher.count() != 1 {
		t.Errorf("launched %d processes, want 1", launcher.count())
	}
}

func TestStopGraceful(t *testing.T) {
	sup, launcher, bus, _ := newTestSupervisor(t, testServerConfig())
	launcher.onLaunch = func(h *fakeHandle) {
		h.onStdin = func(line string) {
			if line == "stop" {
				h.exit(0)
			}
		}
	}

	rec := &recorder{}
	bus.SubscribeAll(rec.record, events.Normal, false)

	if !sup.Start() {
		t.Fatal("Start returned false")
	}
	if !sup.Stop(false, 2*time.Second) {
		t.Fatal("Stop returned false")
	}

	if got := sup.State(); got != StateStopped {
		t.Errorf("State = %s, want %s", got, StateStopped)
	}
	if !strings.Contains(launcher.last().stdin(), "stop\n") {
		t.Error("graceful stop never wrote the stop command to stdin")
	}
	if n := rec.count(events.KindServerStopped); n != 1 {
		t.Errorf("ServerStopped fired %d times, want 1", n)
	}
	if n := rec.count(events.KindServerCrashed); n != 0 {
		t.Errorf("planned stop fired %d crash events", n)
	}
	stopped := rec.first(events.KindServerStopped).(*events.ServerStopped)
	if stopped.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", stopped.ExitCode)
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	sup, _, _, _ := newTestSupervisor(t, testServerConfig())
	// The fake ignores the stop command, so Stop has to kill it.
	if !sup.Start() {
		t.Fatal("Start returned false")
	}
	if !sup.Stop(false, 100*time.Millisecond) {
		t.Fatal("Stop returned false")
	}
	if got := sup.State(); got != StateStopped {
		t.Errorf("State = %s, want %s", got, StateStopped)
	}
}

func TestStopWhenStoppedIsNoop(t *testing.T) {
	sup, _, bus, _ := newTestSupervisor(t, testServerConfig())

	rec := &recorder{}
	bus.SubscribeAll(rec.record, events.Normal, false)

	if !sup.Stop(false, time.Second) {
		t.Error("Stop on a stopped server should report success")
	}
	if n := rec.count(events.KindServerStopping); n != 0 {
		t.Errorf("no-op Stop fired %d ServerStopping events", n)
	}
}

func TestSendCommandRequiresRunning(t *testing.T) {
	sup, launcher, _, _ := newTestSupervisor(t, testServerConfig())

	if sup.SendCommand("say hi") {
		t.Error("SendCommand succeeded before start")
	}

	if !sup.Start() {
		t.Fatal("Start returned false")
	}
	defer sup.Stop(true, time.Second)

	if !sup.SendCommand("say hi") {
		t.Error("SendCommand failed while running")
	}
	if !strings.Contains(launcher.last().stdin(), "say hi\n") {
		t.Errorf("stdin = %q, missing command", launcher.last().stdin())
	}
}

func TestCrashAutoRestarts(t *testing.T) {
	cfg := testServerConfig()
	cfg.AutoRestart = true
	sup, launcher, bus, _ := newTestSupervisor(t, cfg)

	rec := &recorder{}
	bus.SubscribeAll(rec.record, events.Normal, false)

	if !sup.Start() {
		t.Fatal("Start returned false")
	}
	defer sup.Stop(true, time.Second)

	launcher.last().exit(2)

	waitFor(t, 3*time.Second, "restart", func() bool {
		return launcher.count() == 2 && sup.State() == StateRunning
	})

	if n := rec.count(events.KindServerCrashed); n != 1 {
		t.Fatalf("ServerCrashed fired %d times, want 1", n)
	}
	crashed := rec.first(events.KindServerCrashed).(*events.ServerCrashed)
	if crashed.ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", crashed.ExitCode)
	}
	if !crashed.WillRestart {
		t.Error("WillRestart = false, want true")
	}
}

func TestCrashRestartCanBeVetoed(t *testing.T) {
	cfg := testServerConfig()
	cfg.AutoRestart = true
	sup, launcher, bus, _ := newTestSupervisor(t, cfg)

	bus.Subscribe(events.KindServerCrashed, func(ev events.Event) error {
		ev.(events.Cancellable).SetCancelled(true)
		return nil
	}, events.Highest, false)

	if !sup.Start() {
		t.Fatal("Start returned false")
	}
	launcher.last().exit(1)

	waitFor(t, 2*time.Second, "crashed state", func() bool {
		return sup.State() == StateCrashed
	})

	// Give a vetoed restart time to (wrongly) happen.
	time.Sleep(5 * cfg.RestartDelay)
	if launcher.count() != 1 {
		t.Errorf("launched %d processes after veto, want 1", launcher.count())
	}
	if got := sup.State(); got != StateCrashed {
		t.Errorf("State = %s, want %s", got, StateCrashed)
	}
}

func TestAdapterEventsPublishedFromOutput(t *testing.T) {
	sup, launcher, bus, _ := newTestSupervisor(t, testServerConfig())

	joins := make(chan string, 1)
	bus.Subscribe(events.KindPlayerJoin, func(ev events.Event) error {
		joins <- ev.(*events.PlayerJoin).Name
		return nil
	}, events.Normal, false)

	logs := make(chan string, 8)
	bus.Subscribe(events.KindLogLine, func(ev events.Event) error {
		select {
		case logs <- ev.(*events.LogLine).Message:
		default:
		}
		return nil
	}, events.Normal, false)

	if !sup.Start() {
		t.Fatal("Start returned false")
	}
	defer sup.Stop(true, time.Second)

	go launcher.last().emit("JOIN steve")

	select {
	case name := <-joins:
		if name != "steve" {
			t.Errorf("join name = %s, want steve", name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no PlayerJoin published")
	}

	select {
	case msg := <-logs:
		if msg != "JOIN steve" {
			t.Errorf("log message = %q, want raw line", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no LogLine published")
	}
}

func TestQueueDrainExecutesFIFOAndCapturesOutput(t *testing.T) {
	sup, launcher, _, q := newTestSupervisor(t, testServerConfig())
	launcher.onLaunch = func(h *fakeHandle) {
		h.onStdin = func(line string) {
			if arg, ok := strings.CutPrefix(line, "echo "); ok {
				go h.emit("output:" + arg)
			}
		}
	}

	sup.StartLoops()
	defer sup.StopLoops()

	if !sup.Start() {
		t.Fatal("Start returned false")
	}
	defer sup.Stop(true, time.Second)

	id1, err := q.Add("echo one", 5*time.Second)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	id2, err := q.Add("echo two", 5*time.Second)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	res1 := q.WaitForCompletion(context.Background(), id1, 5*time.Second)
	res2 := q.WaitForCompletion(context.Background(), id2, 5*time.Second)

	if !res1.Success || !res2.Success {
		t.Fatalf("results not successful: %+v / %+v", res1, res2)
	}
	if !strings.Contains(res1.Output, "output:one") {
		t.Errorf("command 1 output = %q, want captured echo", res1.Output)
	}
	if !strings.Contains(res2.Output, "output:two") {
		t.Errorf("command 2 output = %q, want captured echo", res2.Output)
	}

	stdin := launcher.last().stdin()
	if strings.Index(stdin, "echo one") > strings.Index(stdin, "echo two") {
		t.Errorf("commands ran out of order, stdin = %q", stdin)
	}
}

func TestSendCommandViaQueue(t *testing.T) {
	sup, launcher, _, _ := newTestSupervisor(t, testServerConfig())
	launcher.onLaunch = func(h *fakeHandle) {
		h.onStdin = func(line string) {
			if arg, ok := strings.CutPrefix(line, "echo "); ok {
				go h.emit("output:" + arg)
			}
		}
	}

	sup.StartLoops()
	defer sup.StopLoops()

	if !sup.Start() {
		t.Fatal("Start returned false")
	}
	defer sup.Stop(true, time.Second)

	res, ok := sup.SendCommandViaQueue(context.Background(), "echo three", 5*time.Second)
	if !ok {
		t.Fatalf("SendCommandViaQueue failed: %+v", res)
	}
	if !strings.Contains(res.Output, "output:three") {
		t.Errorf("output = %q, want captured echo", res.Output)
	}
}

func TestQueuedCommandFailsWhenServerStopped(t *testing.T) {
	sup, _, _, q := newTestSupervisor(t, testServerConfig())
	sup.StartLoops()
	defer sup.StopLoops()

	id, err := q.Add("list", 300*time.Millisecond)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	// The drain loop skips everything while stopped; the command ages out.
	res := q.WaitForCompletion(context.Background(), id, 2*time.Second)
	if res.Status != "completed" || res.Success {
		t.Errorf("Result = %+v, want unsuccessful completion", res)
	}
}
