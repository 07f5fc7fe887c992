package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"

	"github.com/suzxlabs/ytserver/pkg/logging"
)

// ErrProbeFailed wraps every metadata lookup failure
var ErrProbeFailed = errors.New("failed to fetch video formats")

// ProbeFormat is the subset of a yt-dlp format entry we use
type ProbeFormat struct {
	ID             string  `json:"format_id"`
	Ext            string  `json:"ext"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	Height         int     `json:"height"`
	ABR            float64 `json:"abr"`
	Note           string  `json:"format_note"`
	Filesize       float64 `json:"filesize"`
	FilesizeApprox float64 `json:"filesize_approx"`
}

// HasVideo reports whether the format carries a video stream
func (f ProbeFormat) HasVideo() bool { return f.VCodec != "" && f.VCodec != "none" }

// HasAudio reports whether the format carries an audio stream
func (f ProbeFormat) HasAudio() bool { return f.ACodec != "" && f.ACodec != "none" }

// Size returns the exact or approximate size in bytes, or 0 if unknown
func (f ProbeFormat) Size() float64 {
	if f.Filesize > 0 {
		return f.Filesize
	}
	return f.FilesizeApprox
}

// ProbeResult is the decoded output of yt-dlp -J
type ProbeResult struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Thumbnail string        `json:"thumbnail"`
	Duration  float64       `json:"duration"`
	Formats   []ProbeFormat `json:"formats"`
}

// FormatOption is one selectable entry offered to the browser
type FormatOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func sizeLabel(f ProbeFormat) string {
	if size := f.Size(); size > 0 {
		return fmt.Sprintf("(%.2f MB)", size/1024/1024)
	}
	return "(Size N/A)"
}

// CombinedFormats lists the progressive mp4 formats with both streams
func (p *ProbeResult) CombinedFormats() []FormatOption {
	out := []FormatOption{}
	for _, f := range p.Formats {
		if f.HasVideo() && f.HasAudio() && f.Ext == "mp4" {
			out = append(out, FormatOption{
				ID:   f.ID,
				Text: fmt.Sprintf("%dp - %s %s", f.Height, f.Ext, sizeLabel(f)),
			})
		}
	}
	return out
}

// VideoFormats lists video-only formats, tallest first, for the merge flow
func (p *ProbeResult) VideoFormats() []FormatOption {
	var picked []ProbeFormat
	for _, f := range p.Formats {
		if f.HasVideo() && !f.HasAudio() {
			picked = append(picked, f)
		}
	}
	sort.SliceStable(picked, func(i, j int) bool { return picked[i].Height > picked[j].Height })

	out := make([]FormatOption, 0, len(picked))
	for _, f := range picked {
		text := fmt.Sprintf("%dp - %s", f.Height, f.Ext)
		if f.Note != "" {
			text += " " + f.Note
		}
		out = append(out, FormatOption{ID: f.ID, Text: text + " " + sizeLabel(f)})
	}
	return out
}

// AudioFormats lists audio-only formats, highest bitrate first
func (p *ProbeResult) AudioFormats() []FormatOption {
	var picked []ProbeFormat
	for _, f := range p.Formats {
		if f.HasAudio() && !f.HasVideo() {
			picked = append(picked, f)
		}
	}
	sort.SliceStable(picked, func(i, j int) bool { return picked[i].ABR > picked[j].ABR })

	out := make([]FormatOption, 0, len(picked))
	for _, f := range picked {
		out = append(out, FormatOption{
			ID:   f.ID,
			Text: fmt.Sprintf("%.0fkbps - %s %s", f.ABR, f.Ext, sizeLabel(f)),
		})
	}
	return out
}

// Probe fetches metadata and the format list for url without downloading
func (a *Adapter) Probe(ctx context.Context, url string) (*ProbeResult, error) {
	args := append([]string{"-J", "--no-playlist"}, commonArgs(a.opts)...)
	args = append(args, "--", url)

	cmd := exec.CommandContext(ctx, a.opts.Executable, args...)
	configureProcess(cmd)
	var stdout bytes.Buffer
	stderr := newTailBuffer(MaxDiagnostics)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		failure := Classify(stderr.String())
		a.logger.Warn("Probe failed", logging.Fields{"url": url, "error": err.Error(), "reason": failure.Message})
		return nil, fmt.Errorf("%w: %s", ErrProbeFailed, failure.Message)
	}

	var result ProbeResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("%w: invalid metadata: %v", ErrProbeFailed, err)
	}
	return &result, nil
}
