package worker

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/suzxlabs/ytserver/pkg/models"
)

// progressPrefix marks the lines yt-dlp prints through our --progress-template
const progressPrefix = "ytserver-progress:"

// progressTemplate asks yt-dlp for a pipe-separated progress record per update
const progressTemplate = "download:" + progressPrefix +
	"%(progress._percent_str)s|" +
	"%(progress._total_bytes_str,progress._total_bytes_estimate_str)s|" +
	"%(progress._speed_str)s|" +
	"%(progress._eta_str)s"

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// parseLine turns one stdout line into a normalized event
func parseLine(raw string) (Event, bool) {
	line := strings.TrimSpace(ansiEscape.ReplaceAllString(raw, ""))
	if line == "" {
		return Event{}, false
	}

	if strings.HasPrefix(line, progressPrefix) {
		if p, ok := parseTemplateProgress(strings.TrimPrefix(line, progressPrefix)); ok {
			return Event{Kind: EventProgress, Progress: p}, true
		}
		return Event{}, false
	}

	if p, ok := parseNativeProgress(line); ok {
		return Event{Kind: EventProgress, Progress: p}, true
	}

	if strings.HasPrefix(line, "[") {
		return Event{Kind: EventStatus, Text: line}, true
	}
	return Event{}, false
}

// parseTemplateProgress parses "percent|size|rate|eta"
func parseTemplateProgress(record string) (models.Progress, bool) {
	fields := strings.Split(record, "|")
	if len(fields) != 4 {
		return models.Progress{}, false
	}

	percent, ok := parsePercent(fields[0])
	if !ok {
		return models.Progress{}, false
	}
	return models.Progress{
		Percent: percent,
		Size:    cleanField(fields[1]),
		Rate:    cleanField(fields[2]),
		ETA:     cleanField(fields[3]),
	}, true
}

// parseNativeProgress parses yt-dlp's default progress line, e.g.
// "[download]  42.0% of ~10.00MiB at  1.00MiB/s ETA 00:05 (frag 3/9)"
func parseNativeProgress(line string) (models.Progress, bool) {
	if !strings.HasPrefix(line, "[download]") {
		return models.Progress{}, false
	}
	tokens := strings.Fields(strings.TrimPrefix(line, "[download]"))
	if len(tokens) == 0 {
		return models.Progress{}, false
	}

	percent, ok := parsePercent(tokens[0])
	if !ok {
		return models.Progress{}, false
	}

	p := models.Progress{Percent: percent}
	for i := 1; i < len(tokens)-1; i++ {
		next := tokens[i+1]
		switch tokens[i] {
		case "of":
			if next == "~" && i+2 < len(tokens) {
				next = tokens[i+2]
			}
			p.Size = cleanField(strings.TrimPrefix(next, "~"))
		case "at":
			p.Rate = cleanField(next)
		case "ETA":
			p.ETA = cleanField(next)
		}
	}
	return p, true
}

func parsePercent(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "%") {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// cleanField drops the placeholders yt-dlp prints for unknown values
func cleanField(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case s == "", s == "NA", s == "N/A", strings.HasPrefix(s, "Unknown"):
		return ""
	}
	return s
}

// scanLines splits on \n, \r\n or a bare \r so carriage-return progress
// redraws are seen as separate lines.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance = i + 1
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			advance++
		} else if data[i] == '\r' && i+1 == len(data) && !atEOF {
			// Could be the first half of \r\n; wait for more data.
			return 0, nil, nil
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
