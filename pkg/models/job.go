package models

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// JobMode distinguishes merged media jobs from audio-only transcodes
type JobMode string

const (
	JobModeMedia JobMode = "media" // video + audio merged into mp4
	JobModeAudio JobMode = "audio" // audio extracted and transcoded to mp3
)

// Extension returns the artifact extension produced by the mode
func (m JobMode) Extension() string {
	if m == JobModeAudio {
		return "mp3"
	}
	return "mp4"
}

// FallbackName is the human filename stem used when a request has no title
func (m JobMode) FallbackName() string {
	if m == JobModeAudio {
		return "audio"
	}
	return "video"
}

// ErrInvalidRequest marks admission failures. Wrapped errors carry the missing field.
var ErrInvalidRequest = errors.New("invalid job request")

// JobRequest is one download request as submitted by the browser
type JobRequest struct {
	URL          string  `json:"url"`
	VideoQuality string  `json:"videoQuality,omitempty"`
	AudioQuality string  `json:"audioQuality,omitempty"`
	Title        string  `json:"title,omitempty"`
	ClientID     string  `json:"clientId"`
	Mode         JobMode `json:"-"`
}

// Validate performs the synchronous admission check
func (r JobRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.URL) == "" {
		missing = append(missing, "url")
	}
	if strings.TrimSpace(r.ClientID) == "" {
		missing = append(missing, "clientId")
	}
	switch r.Mode {
	case JobModeMedia:
		if strings.TrimSpace(r.VideoQuality) == "" {
			missing = append(missing, "videoQuality")
		}
	case JobModeAudio:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, r.Mode)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

// StateTransition tracks run state changes with timestamps
type StateTransition struct {
	From      RunState  `json:"from"`
	To        RunState  `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// JobRun is one in-flight execution of a JobRequest
type JobRun struct {
	ID       string
	Request  JobRequest
	Selector string

	mu          sync.Mutex
	state       RunState
	createdAt   time.Time
	startedAt   time.Time
	finishedAt  time.Time
	transitions []StateTransition
}

// NewJobRun creates a run in the created state
func NewJobRun(id string, req JobRequest, selector string) *JobRun {
	return &JobRun{
		ID:        id,
		Request:   req,
		Selector:  selector,
		state:     RunStateCreated,
		createdAt: time.Now(),
	}
}

// State returns the current state
func (r *JobRun) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Transition moves the run to a new state. Terminal states accept no further
// transitions, so at most one caller can ever finish a run.
func (r *JobRun) Transition(to RunState, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ValidateTransition(r.state, to); err != nil {
		return err
	}

	now := time.Now()
	r.transitions = append(r.transitions, StateTransition{
		From:      r.state,
		To:        to,
		Timestamp: now,
		Reason:    reason,
	})
	r.state = to

	switch {
	case to == RunStateRunning:
		r.startedAt = now
	case IsTerminalState(to):
		r.finishedAt = now
	}
	return nil
}

// Transitions returns a copy of the transition history
func (r *JobRun) Transitions() []StateTransition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StateTransition, len(r.transitions))
	copy(out, r.transitions)
	return out
}

// Duration returns the time from creation to the terminal state, or until now
func (r *JobRun) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finishedAt.IsZero() {
		return time.Since(r.createdAt)
	}
	return r.finishedAt.Sub(r.createdAt)
}
