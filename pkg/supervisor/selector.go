package supervisor

import (
	"strings"

	"github.com/suzxlabs/ytserver/pkg/models"
)

// DefaultAudioSelector is used for audio jobs without an explicit choice
const DefaultAudioSelector = "bestaudio/best"

// ComposeSelector builds the yt-dlp format selector for a request.
// Media jobs merge video and audio as "V+A" when both are given; a single
// video selector passes through unchanged.
func ComposeSelector(mode models.JobMode, video, audio string) string {
	video = strings.TrimSpace(video)
	audio = strings.TrimSpace(audio)

	if mode == models.JobModeAudio {
		if audio != "" {
			return audio
		}
		return DefaultAudioSelector
	}

	if audio != "" && video != "" {
		return video + "+" + audio
	}
	return video
}
