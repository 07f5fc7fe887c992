package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/suzxlabs/ytserver/pkg/models"
)

func indexOf(args []string, want string) int {
	for i, a := range args {
		if a == want {
			return i
		}
	}
	return -1
}

func TestBuildArgsMedia(t *testing.T) {
	args := BuildArgs(Options{}, Invocation{
		URL:            "https://www.youtube.com/watch?v=abc",
		Selector:       "137+140",
		Mode:           models.JobModeMedia,
		OutputTemplate: "downloads/clip-1a2b3c4d.%(ext)s",
	})

	assert.Equal(t, "137+140", args[indexOf(args, "-f")+1])
	assert.Equal(t, "downloads/clip-1a2b3c4d.%(ext)s", args[indexOf(args, "-o")+1])
	assert.Equal(t, "mp4", args[indexOf(args, "--merge-output-format")+1])
	assert.Contains(t, args, "--newline")
	assert.Contains(t, args, "--no-playlist")
	assert.NotContains(t, args, "-x")
	assert.NotContains(t, args, "--cookies-from-browser")
	assert.NotContains(t, args, "--user-agent")
	assert.NotContains(t, args, "--no-check-certificate")
	assert.Contains(t, args, "--no-mtime")
	assert.Equal(t, []string{"--", "https://www.youtube.com/watch?v=abc"}, args[len(args)-2:])
}

func TestBuildArgsAudioWithOptions(t *testing.T) {
	opts := Options{
		FFmpegLocation:     "/opt/ffmpeg/bin",
		CookiesFromBrowser: "firefox",
		UserAgent:          "Mozilla/5.0",
		NoCheckCertificate: true,
	}
	args := BuildArgs(opts, Invocation{
		URL:            "-weird",
		Selector:       "bestaudio/best",
		Mode:           models.JobModeAudio,
		OutputTemplate: "out.%(ext)s",
	})

	assert.Equal(t, "mp3", args[indexOf(args, "--audio-format")+1])
	assert.Equal(t, "0", args[indexOf(args, "--audio-quality")+1])
	assert.Contains(t, args, "-x")
	assert.NotContains(t, args, "--merge-output-format")
	assert.Equal(t, "/opt/ffmpeg/bin", args[indexOf(args, "--ffmpeg-location")+1])
	assert.Equal(t, "firefox", args[indexOf(args, "--cookies-from-browser")+1])
	assert.Equal(t, "Mozilla/5.0", args[indexOf(args, "--user-agent")+1])
	assert.Contains(t, args, "--no-check-certificate")
	assert.Equal(t, "-weird", args[len(args)-1])
	assert.Less(t, indexOf(args, "--no-check-certificate"), indexOf(args, "--"))
}

func TestBuildArgsAudioDefaults(t *testing.T) {
	args := BuildArgs(Options{}, Invocation{
		URL:            "https://www.youtube.com/watch?v=abc",
		Selector:       "bestaudio/best",
		Mode:           models.JobModeAudio,
		OutputTemplate: "out.%(ext)s",
	})

	assert.Equal(t, BrowserUserAgent, args[indexOf(args, "--user-agent")+1])
	assert.Contains(t, args, "--no-check-certificate")
	assert.Contains(t, args, "--no-mtime")
}
