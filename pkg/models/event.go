package models

import (
	"encoding/json"
	"fmt"
	"math"
)

// EventType tags the messages pushed to a session
type EventType string

const (
	EventTypeClientID EventType = "clientId"
	EventTypeStatus   EventType = "status"
	EventTypeProgress EventType = "progress"
	EventTypeComplete EventType = "complete"
	EventTypeError    EventType = "error"
)

// Progress is one transfer sample reported by the worker
type Progress struct {
	Percent float64 `json:"percent"`
	Size    string  `json:"size,omitempty"`
	Rate    string  `json:"rate,omitempty"`
	ETA     string  `json:"eta,omitempty"`
}

// Text renders the sample for display next to the progress bar
func (p Progress) Text() string {
	text := fmt.Sprintf("%.1f%%", p.Percent)
	if p.Size != "" {
		text += " of " + p.Size
	}
	if p.Rate != "" {
		text += " at " + p.Rate
	}
	if p.ETA != "" {
		text += ", ETA " + p.ETA
	}
	return text
}

// Event is a server-to-client session message. Only the fields relevant to
// Type are encoded on the wire.
type Event struct {
	Type        EventType
	Value       string
	Progress    Progress
	DownloadURL string
	Filename    string
}

// ClientIDEvent is the handshake message carrying the session id
func ClientIDEvent(id string) Event { return Event{Type: EventTypeClientID, Value: id} }

// StatusEvent carries a free-form status line
func StatusEvent(text string) Event { return Event{Type: EventTypeStatus, Value: text} }

// ProgressEvent carries a progress sample
func ProgressEvent(p Progress) Event { return Event{Type: EventTypeProgress, Progress: p} }

// ErrorEvent is the terminal failure message
func ErrorEvent(message string) Event { return Event{Type: EventTypeError, Value: message} }

// CompleteEvent is the terminal success message
func CompleteEvent(downloadURL, filename string) Event {
	return Event{Type: EventTypeComplete, DownloadURL: downloadURL, Filename: filename}
}

// IsTerminal reports whether the event ends a JobRun's stream
func (e Event) IsTerminal() bool {
	return e.Type == EventTypeComplete || e.Type == EventTypeError
}

type progressWire struct {
	Type  EventType `json:"type"`
	Value float64   `json:"value"`
	Text  string    `json:"text"`
}

type completeWire struct {
	Type        EventType `json:"type"`
	DownloadURL string    `json:"downloadUrl"`
	Filename    string    `json:"filename"`
}

type valueWire struct {
	Type  EventType `json:"type"`
	Value string    `json:"value"`
}

// MarshalJSON encodes the event in the browser wire format
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventTypeProgress:
		percent := math.Round(clamp(e.Progress.Percent, 0, 100)*10) / 10
		return json.Marshal(progressWire{Type: e.Type, Value: percent, Text: e.Progress.Text()})
	case EventTypeComplete:
		return json.Marshal(completeWire{Type: e.Type, DownloadURL: e.DownloadURL, Filename: e.Filename})
	case EventTypeClientID, EventTypeStatus, EventTypeError:
		return json.Marshal(valueWire{Type: e.Type, Value: e.Value})
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
