package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventWireFormat(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{
			name:  "client id handshake",
			event: ClientIDEvent("abc-123"),
			want:  `{"type":"clientId","value":"abc-123"}`,
		},
		{
			name:  "status",
			event: StatusEvent("[Merger] Merging formats"),
			want:  `{"type":"status","value":"[Merger] Merging formats"}`,
		},
		{
			name:  "progress",
			event: ProgressEvent(Progress{Percent: 42.04, Size: "10.00MiB", Rate: "1.00MiB/s", ETA: "00:05"}),
			want:  `{"type":"progress","value":42,"text":"42.0% of 10.00MiB at 1.00MiB/s, ETA 00:05"}`,
		},
		{
			name:  "progress at zero keeps value",
			event: ProgressEvent(Progress{}),
			want:  `{"type":"progress","value":0,"text":"0.0%"}`,
		},
		{
			name:  "complete",
			event: CompleteEvent("/downloads/My%20Clip-1a2b3c4d.mp4", "My Clip.mp4"),
			want:  `{"type":"complete","downloadUrl":"/downloads/My%20Clip-1a2b3c4d.mp4","filename":"My Clip.mp4"}`,
		},
		{
			name:  "error",
			event: ErrorEvent("Download failed."),
			want:  `{"type":"error","value":"Download failed."}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestProgressValueClamped(t *testing.T) {
	data, err := json.Marshal(ProgressEvent(Progress{Percent: 180}))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 100.0, decoded["value"])
}

func TestUnknownEventTypeFailsToEncode(t *testing.T) {
	_, err := json.Marshal(Event{Type: "bogus"})
	assert.Error(t, err)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, CompleteEvent("/d", "f").IsTerminal())
	assert.True(t, ErrorEvent("x").IsTerminal())
	assert.False(t, StatusEvent("x").IsTerminal())
	assert.False(t, ProgressEvent(Progress{}).IsTerminal())
	assert.False(t, ClientIDEvent("x").IsTerminal())
}
