// Package worker runs yt-dlp and turns its output into an ordered event stream.
package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/suzxlabs/ytserver/pkg/logging"
	"github.com/suzxlabs/ytserver/pkg/models"
)

// waitDelay bounds how long Wait blocks on pipes held open by orphaned
// children after the worker itself has exited or been killed.
const waitDelay = 5 * time.Second

// MaxDiagnostics bounds the stderr tail kept for classification
const MaxDiagnostics = 64 * 1024

// EventKind tags a worker event
type EventKind int

const (
	EventStarted EventKind = iota
	EventStatus
	EventProgress
	EventSpawnFailed
	EventExited
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventStatus:
		return "status"
	case EventProgress:
		return "progress"
	case EventSpawnFailed:
		return "spawn_failed"
	case EventExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Event is one normalized observation of a worker process
type Event struct {
	Kind        EventKind
	PID         int             // EventStarted
	Text        string          // EventStatus
	Progress    models.Progress // EventProgress
	Err         error           // EventSpawnFailed
	ExitCode    int             // EventExited
	Diagnostics string          // EventExited: stderr tail
}

// Terminal reports whether no further events follow
func (e Event) Terminal() bool {
	return e.Kind == EventSpawnFailed || e.Kind == EventExited
}

// Adapter launches yt-dlp invocations
type Adapter struct {
	opts   Options
	logger *logging.Logger
}

// NewAdapter creates an adapter. An empty executable defaults to "yt-dlp".
func NewAdapter(opts Options, logger *logging.Logger) *Adapter {
	if opts.Executable == "" {
		opts.Executable = "yt-dlp"
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Adapter{opts: opts, logger: logger.WithField("component", "worker")}
}

// Options returns the adapter's process-wide settings
func (a *Adapter) Options() Options {
	return a.opts
}

// Run starts one worker. The returned channel yields Started, any number of
// status/progress events, then exactly one SpawnFailed or Exited event, and
// is closed afterwards. The caller must drain it.
func (a *Adapter) Run(ctx context.Context, inv Invocation) <-chan Event {
	events := make(chan Event, 16)
	go a.run(ctx, inv, events)
	return events
}

func (a *Adapter) run(ctx context.Context, inv Invocation, events chan<- Event) {
	defer close(events)

	args := BuildArgs(a.opts, inv)
	a.logger.Debug("Spawning worker", logging.Fields{"executable": a.opts.Executable, "args": args})

	cmd := exec.CommandContext(ctx, a.opts.Executable, args...)
	configureProcess(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		events <- Event{Kind: EventSpawnFailed, Err: fmt.Errorf("failed to open stdout: %w", err)}
		return
	}
	diagnostics := newTailBuffer(MaxDiagnostics)
	cmd.Stderr = diagnostics

	if err := cmd.Start(); err != nil {
		events <- Event{Kind: EventSpawnFailed, Err: err}
		return
	}
	events <- Event{Kind: EventStarted, PID: cmd.Process.Pid}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanLines)
	for scanner.Scan() {
		if ev, ok := parseLine(scanner.Text()); ok {
			events <- ev
		}
	}
	if err := scanner.Err(); err != nil {
		a.logger.Warn("Worker stdout scan stopped", logging.Fields{"error": err.Error()})
		// Keep the pipe drained so the process cannot block on a full buffer.
		io.Copy(io.Discard, stdout)
	}

	exitCode := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			diagnostics.WriteString(err.Error())
		}
	}

	events <- Event{Kind: EventExited, ExitCode: exitCode, Diagnostics: diagnostics.String()}
}

// tailBuffer keeps the last max bytes written to it
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) WriteString(s string) {
	t.Write([]byte(s))
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
