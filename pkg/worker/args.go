package worker

import "github.com/suzxlabs/ytserver/pkg/models"

// Options are the process-wide yt-dlp settings applied to every invocation
type Options struct {
	Executable         string
	FFmpegLocation     string
	CookiesFromBrowser string
	UserAgent          string
	NoCheckCertificate bool
}

// Invocation describes a single download
type Invocation struct {
	URL            string
	Selector       string
	Mode           models.JobMode
	OutputTemplate string
}

// BrowserUserAgent is sent on audio jobs when no user agent is configured
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// BuildArgs renders the yt-dlp command line for inv
func BuildArgs(opts Options, inv Invocation) []string {
	args := []string{
		"--newline",
		"--no-playlist",
		"--no-mtime",
		"--progress-template", progressTemplate,
		"-f", inv.Selector,
		"-o", inv.OutputTemplate,
	}

	switch inv.Mode {
	case models.JobModeAudio:
		args = append(args, "-x", "--audio-format", "mp3", "--audio-quality", "0")
		opts = audioOptions(opts)
	default:
		args = append(args, "--merge-output-format", "mp4")
	}

	args = append(args, commonArgs(opts)...)

	// "--" keeps a URL starting with a dash from being read as a flag
	return append(args, "--", inv.URL)
}

// audioOptions applies the browser-like defaults audio extraction runs with
func audioOptions(opts Options) Options {
	if opts.UserAgent == "" {
		opts.UserAgent = BrowserUserAgent
	}
	opts.NoCheckCertificate = true
	return opts
}

// commonArgs are the config-driven flags shared by downloads and probes
func commonArgs(opts Options) []string {
	var args []string
	if opts.FFmpegLocation != "" {
		args = append(args, "--ffmpeg-location", opts.FFmpegLocation)
	}
	if opts.CookiesFromBrowser != "" {
		args = append(args, "--cookies-from-browser", opts.CookiesFromBrowser)
	}
	if opts.UserAgent != "" {
		args = append(args, "--user-agent", opts.UserAgent)
	}
	if opts.NoCheckCertificate {
		args = append(args, "--no-check-certificate")
	}
	return args
}
