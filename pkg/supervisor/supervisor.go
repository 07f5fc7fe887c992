// Package supervisor drives download jobs from admission to their single
// terminal event.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/suzxlabs/ytserver/pkg/artifacts"
	"github.com/suzxlabs/ytserver/pkg/logging"
	"github.com/suzxlabs/ytserver/pkg/models"
	"github.com/suzxlabs/ytserver/pkg/worker"
)

// DefaultRetention is how long a finished artifact stays retrievable
const DefaultRetention = 10 * time.Minute

// defaultKillGrace bounds how long Wait waits for killed runs to finish.
// It exceeds the worker's own pipe wait delay.
const defaultKillGrace = 10 * time.Second

// ErrShuttingDown is returned by Submit once Wait has been called
var ErrShuttingDown = errors.New("server is shutting down")

// User-facing messages for failures that do not come from the worker
const (
	spawnFailedPrefix   = "Failed to start downloader: "
	missingOutputMsg    = "The download finished but its output file could not be found."
	internalErrorMsg    = "Internal error while processing the download."
	incompleteWorkerMsg = worker.GenericFailureMessage
)

// Sender delivers events to a session. *session.Registry implements it.
type Sender interface {
	Send(id string, event models.Event) bool
}

// Runner starts a worker. *worker.Adapter implements it.
type Runner interface {
	Run(ctx context.Context, inv worker.Invocation) <-chan worker.Event
}

// Recorder observes job lifecycles. Implemented by the metrics package.
type Recorder interface {
	JobAdmitted(mode string)
	JobFinished(mode, outcome string, d time.Duration)
}

// Supervisor admits JobRequests and supervises one worker per JobRun
type Supervisor struct {
	sessions  Sender
	runner    Runner
	store     *artifacts.Store
	retention time.Duration
	recorder  Recorder
	tracer    trace.Tracer
	logger    *logging.Logger
	newID     func() string

	// base is cancelled when draining gives up, killing remaining workers
	base      context.Context
	abort     context.CancelFunc
	killGrace time.Duration

	wg       sync.WaitGroup
	mu       sync.Mutex
	active   map[string]*models.JobRun
	draining bool
}

// New creates a supervisor. A non-positive retention uses DefaultRetention.
func New(sessions Sender, runner Runner, store *artifacts.Store, retention time.Duration, logger *logging.Logger) *Supervisor {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = logging.Discard()
	}
	base, abort := context.WithCancel(context.Background())
	return &Supervisor{
		base:      base,
		abort:     abort,
		killGrace: defaultKillGrace,
		sessions:  sessions,
		runner:    runner,
		store:     store,
		retention: retention,
		tracer:    noop.NewTracerProvider().Tracer(""),
		logger:    logger.WithField("component", "supervisor"),
		newID:     uuid.NewString,
		active:    make(map[string]*models.JobRun),
	}
}

// SetRecorder attaches a lifecycle recorder
func (s *Supervisor) SetRecorder(r Recorder) { s.recorder = r }

// SetTracer replaces the no-op tracer
func (s *Supervisor) SetTracer(t trace.Tracer) { s.tracer = t }

// Submit validates req, stages its artifact and starts the run in the
// background. Errors are returned only for admission failures; everything
// after that is reported to the session as events.
func (s *Supervisor) Submit(ctx context.Context, req models.JobRequest) (*models.JobRun, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	title := req.Title
	if artifacts.SanitizeFilename(title) == "" {
		title = req.Mode.FallbackName()
	}
	selector := ComposeSelector(req.Mode, req.VideoQuality, req.AudioQuality)

	// Staging scans the download dir, so it runs before s.mu is taken.
	artifact, err := s.store.Stage(title, req.Mode.Extension())
	if err != nil {
		return nil, fmt.Errorf("failed to stage artifact: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		s.store.Discard(artifact)
		return nil, ErrShuttingDown
	}

	run := models.NewJobRun(s.newID(), req, selector)
	s.active[run.ID] = run
	s.wg.Add(1)
	if s.recorder != nil {
		s.recorder.JobAdmitted(string(req.Mode))
	}

	s.logger.Info("Job admitted", logging.Fields{
		"job":      run.ID,
		"session":  req.ClientID,
		"mode":     string(req.Mode),
		"selector": selector,
		"artifact": artifact.Name,
	})

	// The run outlives the HTTP request that submitted it but not the
	// supervisor.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(s.base, cancel)
	go func() {
		defer cancel()
		defer stop()
		s.execute(runCtx, run, artifact)
	}()
	return run, nil
}

func (s *Supervisor) execute(ctx context.Context, run *models.JobRun, artifact artifacts.Artifact) {
	ctx, span := s.tracer.Start(ctx, "job.run", trace.WithAttributes(
		attribute.String("job.id", run.ID),
		attribute.String("job.mode", string(run.Request.Mode)),
	))
	logger := s.logger.WithField("job", run.ID).WithField("session", run.Request.ClientID)

	var events <-chan worker.Event
	defer func() {
		if p := recover(); p != nil {
			logger.Error("Job panicked", logging.Fields{"panic": fmt.Sprint(p)})
			s.fail(run, artifact, internalErrorMsg, fmt.Sprintf("panic: %v", p), logger)
			if events != nil {
				// Let the worker goroutine finish its sends.
				go func() {
					for range events {
					}
				}()
			}
		}
		s.finish(run, span, logger)
	}()

	events = s.runner.Run(ctx, worker.Invocation{
		URL:            run.Request.URL,
		Selector:       run.Selector,
		Mode:           run.Request.Mode,
		OutputTemplate: s.store.OutputTemplate(artifact),
	})

	for ev := range events {
		switch ev.Kind {
		case worker.EventStarted:
			if err := run.Transition(models.RunStateRunning, fmt.Sprintf("worker pid %d", ev.PID)); err != nil {
				logger.Warn("Unexpected start event", logging.Fields{"error": err.Error()})
			}
		case worker.EventStatus:
			s.send(run, models.StatusEvent(ev.Text), logger)
		case worker.EventProgress:
			s.send(run, models.ProgressEvent(ev.Progress), logger)
		case worker.EventSpawnFailed:
			s.fail(run, artifact, spawnFailedPrefix+ev.Err.Error(), "spawn failed", logger)
		case worker.EventExited:
			if ev.ExitCode != 0 {
				failure := worker.Classify(ev.Diagnostics)
				reason := fmt.Sprintf("exit code %d (%s)", ev.ExitCode, failure.Kind)
				s.fail(run, artifact, failure.Message, reason, logger)
			} else {
				s.succeed(run, artifact, logger)
			}
		}
	}

	if !models.IsTerminalState(run.State()) {
		s.fail(run, artifact, incompleteWorkerMsg, "worker stream ended without a result", logger)
	}
}

func (s *Supervisor) succeed(run *models.JobRun, artifact artifacts.Artifact, logger *logging.Logger) {
	if err := s.store.Finalize(artifact); err != nil {
		s.fail(run, artifact, missingOutputMsg, err.Error(), logger)
		return
	}
	if err := run.Transition(models.RunStateSucceeded, "exit code 0"); err != nil {
		logger.Warn("Dropping duplicate completion", logging.Fields{"error": err.Error()})
		return
	}

	req := run.Request
	filename := artifacts.DisplayName(req.Title, req.Mode.FallbackName(), req.Mode.Extension())
	s.send(run, models.CompleteEvent(s.store.Publish(artifact), filename), logger)
	s.store.ScheduleReclaim(artifact.Path, s.retention)
}

// fail moves run to failed and reports message. A run that is already
// terminal is left untouched, so the session sees one terminal event.
func (s *Supervisor) fail(run *models.JobRun, artifact artifacts.Artifact, message, reason string, logger *logging.Logger) {
	if err := run.Transition(models.RunStateFailed, reason); err != nil {
		logger.Warn("Dropping duplicate failure", logging.Fields{"reason": reason, "error": err.Error()})
		return
	}
	s.store.Discard(artifact)
	logger.Warn("Job failed", logging.Fields{"reason": reason, "message": message})
	s.send(run, models.ErrorEvent(message), logger)
}

func (s *Supervisor) send(run *models.JobRun, event models.Event, logger *logging.Logger) {
	if !s.sessions.Send(run.Request.ClientID, event) {
		logger.Debug("Event not delivered", logging.Fields{"type": string(event.Type)})
	}
}

func (s *Supervisor) finish(run *models.JobRun, span trace.Span, logger *logging.Logger) {
	state := run.State()
	duration := run.Duration()

	s.mu.Lock()
	delete(s.active, run.ID)
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.JobFinished(string(run.Request.Mode), string(state), duration)
	}

	span.SetAttributes(attribute.String("job.outcome", string(state)))
	if state != models.RunStateSucceeded {
		span.SetStatus(codes.Error, string(state))
	}
	span.End()

	logger.Info("Job finished", logging.Fields{"state": string(state), "duration": duration.String()})
	s.wg.Done()
}

// Get returns an in-flight run by id
func (s *Supervisor) Get(id string) (*models.JobRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.active[id]
	return run, ok
}

// Active returns the number of runs that have not reached a terminal state
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Wait stops admitting new jobs and blocks until every run has finished. If
// ctx ends first the remaining workers are killed; their sessions still get
// an error event.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		remaining := s.Active()
		s.abort()
		// Give killed runs time to report their error before sessions close.
		grace := time.NewTimer(s.killGrace)
		defer grace.Stop()
		select {
		case <-done:
		case <-grace.C:
		}
		return fmt.Errorf("%d jobs still running: %w", remaining, ctx.Err())
	}
}
