package models

import (
	"errors"
	"sync"
	"testing"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    RunState
		to      RunState
		wantErr bool
	}{
		// Valid transitions
		{"Created to Running", RunStateCreated, RunStateRunning, false},
		{"Created to Failed", RunStateCreated, RunStateFailed, false},
		{"Running to Succeeded", RunStateRunning, RunStateSucceeded, false},
		{"Running to Failed", RunStateRunning, RunStateFailed, false},

		// Invalid transitions
		{"Created to Succeeded", RunStateCreated, RunStateSucceeded, true},
		{"Running to Created", RunStateRunning, RunStateCreated, true},
		{"Succeeded to Failed", RunStateSucceeded, RunStateFailed, true},
		{"Failed to Succeeded", RunStateFailed, RunStateSucceeded, true},
		{"Failed to Failed", RunStateFailed, RunStateFailed, true},
		{"Unknown source", RunState("bogus"), RunStateRunning, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTransition(%v, %v) error = %v, wantErr %v",
					tt.from, tt.to, err, tt.wantErr)
			}
		})
	}
}

func TestIsTerminalState(t *testing.T) {
	tests := []struct {
		state    RunState
		expected bool
	}{
		{RunStateCreated, false},
		{RunStateRunning, false},
		{RunStateSucceeded, true},
		{RunStateFailed, true},
	}

	for _, tt := range tests {
		if got := IsTerminalState(tt.state); got != tt.expected {
			t.Errorf("IsTerminalState(%v) = %v, want %v", tt.state, got, tt.expected)
		}
	}
}

func TestJobRunTransitionHistory(t *testing.T) {
	run := NewJobRun("run-1", JobRequest{URL: "https://x", ClientID: "c", Mode: JobModeAudio}, "bestaudio/best")

	if err := run.Transition(RunStateRunning, "spawned"); err != nil {
		t.Fatalf("Transition to running failed: %v", err)
	}
	if err := run.Transition(RunStateSucceeded, "exit 0"); err != nil {
		t.Fatalf("Transition to succeeded failed: %v", err)
	}
	err := run.Transition(RunStateFailed, "late exit signal")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition after terminal state, got %v", err)
	}

	history := run.Transitions()
	if len(history) != 2 {
		t.Fatalf("Expected 2 transitions, got %d", len(history))
	}
	if history[1].To != RunStateSucceeded || history[1].Reason != "exit 0" {
		t.Errorf("Unexpected final transition: %+v", history[1])
	}
	if run.State() != RunStateSucceeded {
		t.Errorf("Expected succeeded, got %s", run.State())
	}
}

func TestJobRunTerminalOnlyOnce(t *testing.T) {
	run := NewJobRun("run-2", JobRequest{}, "")
	if err := run.Transition(RunStateRunning, ""); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := RunStateFailed
			if i%2 == 0 {
				to = RunStateSucceeded
			}
			if run.Transition(to, "race") == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("Expected exactly one terminal transition, got %d", wins)
	}
}
