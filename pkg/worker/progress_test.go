package worker

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suzxlabs/ytserver/pkg/models"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		ok   bool
		want Event
	}{
		{
			name: "template progress",
			line: "ytserver-progress: 42.0%|10.00MiB|1.00MiB/s|00:05",
			ok:   true,
			want: Event{Kind: EventProgress, Progress: models.Progress{Percent: 42, Size: "10.00MiB", Rate: "1.00MiB/s", ETA: "00:05"}},
		},
		{
			name: "template progress with unknowns",
			line: "ytserver-progress:  3.1%|N/A|Unknown B/s|Unknown",
			ok:   true,
			want: Event{Kind: EventProgress, Progress: models.Progress{Percent: 3.1}},
		},
		{
			name: "malformed template record",
			line: "ytserver-progress: 42.0%|10.00MiB",
			ok:   false,
		},
		{
			name: "native progress",
			line: "[download]  42.0% of 10.00MiB at  1.00MiB/s ETA 00:05",
			ok:   true,
			want: Event{Kind: EventProgress, Progress: models.Progress{Percent: 42, Size: "10.00MiB", Rate: "1.00MiB/s", ETA: "00:05"}},
		},
		{
			name: "native progress with estimate and fragments",
			line: "[download]   7.5% of ~  120.50MiB at  3.20MiB/s ETA 00:35 (frag 3/40)",
			ok:   true,
			want: Event{Kind: EventProgress, Progress: models.Progress{Percent: 7.5, Size: "120.50MiB", Rate: "3.20MiB/s", ETA: "00:35"}},
		},
		{
			name: "native completion line",
			line: "[download] 100% of 10.00MiB in 00:00:02 at 4.50MiB/s",
			ok:   true,
			want: Event{Kind: EventProgress, Progress: models.Progress{Percent: 100, Size: "10.00MiB", Rate: "4.50MiB/s"}},
		},
		{
			name: "download destination is status",
			line: "[download] Destination: downloads/clip-1a2b3c4d.f137.mp4",
			ok:   true,
			want: Event{Kind: EventStatus, Text: "[download] Destination: downloads/clip-1a2b3c4d.f137.mp4"},
		},
		{
			name: "merger status",
			line: "[Merger] Merging formats into \"downloads/clip.mp4\"",
			ok:   true,
			want: Event{Kind: EventStatus, Text: "[Merger] Merging formats into \"downloads/clip.mp4\""},
		},
		{
			name: "ansi colours stripped",
			line: "\x1b[0;94m[youtube]\x1b[0m abc: Downloading webpage",
			ok:   true,
			want: Event{Kind: EventStatus, Text: "[youtube] abc: Downloading webpage"},
		},
		{
			name: "untagged line ignored",
			line: "Deleting original file downloads/clip.f140.m4a",
			ok:   false,
		},
		{
			name: "blank",
			line: "   ",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseLine(tt.line)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestScanLinesSplitsCarriageReturns(t *testing.T) {
	input := "[youtube] a\r\n[download]  1.0% of 1MiB\r[download]  2.0% of 1MiB\r[Merger] done\nlast"
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Split(scanLines)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{
		"[youtube] a",
		"[download]  1.0% of 1MiB",
		"[download]  2.0% of 1MiB",
		"[Merger] done",
		"last",
	}, lines)
}
