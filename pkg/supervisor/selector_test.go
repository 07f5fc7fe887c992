package supervisor

import (
	"testing"

	"github.com/suzxlabs/ytserver/pkg/models"
)

func TestComposeSelector(t *testing.T) {
	tests := []struct {
		name  string
		mode  models.JobMode
		video string
		audio string
		want  string
	}{
		{"video and audio merge", models.JobModeMedia, "137", "140", "137+140"},
		{"single video unchanged", models.JobModeMedia, "135", "", "135"},
		{"combined format unchanged", models.JobModeMedia, "18", "", "18"},
		{"whitespace trimmed", models.JobModeMedia, " 137 ", " 140 ", "137+140"},
		{"audio default", models.JobModeAudio, "", "", "bestaudio/best"},
		{"audio ignores video", models.JobModeAudio, "137", "", "bestaudio/best"},
		{"explicit audio", models.JobModeAudio, "", "251", "251"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComposeSelector(tt.mode, tt.video, tt.audio); got != tt.want {
				t.Errorf("ComposeSelector() = %q, want %q", got, tt.want)
			}
		})
	}
}
