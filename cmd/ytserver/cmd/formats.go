package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/suzxlabs/ytserver/pkg/logging"
	"github.com/suzxlabs/ytserver/pkg/worker"
)

var formatsCmd = &cobra.Command{
	Use:   "formats <url>",
	Short: "List the formats yt-dlp offers for a URL",
	Long: `Probes a URL with yt-dlp and prints the selectable formats: progressive
mp4 formats with both streams, video-only formats and audio-only formats.`,
	Args: cobra.ExactArgs(1),
	RunE: runFormats,
}

func init() {
	rootCmd.AddCommand(formatsCmd)
}

func runFormats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogJSON)
	logger.SetOutput(os.Stderr)
	adapter := worker.NewAdapter(workerOptions(cfg), logger)

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.ProbeTimeout)
	defer cancel()

	result, err := adapter.Probe(ctx, args[0])
	if err != nil {
		return err
	}
	return renderFormats(os.Stdout, result, IsJSONOutput())
}

type formatsOutput struct {
	ID           string                `json:"id"`
	Title        string                `json:"title"`
	Duration     float64               `json:"duration"`
	Formats      []worker.FormatOption `json:"formats"`
	VideoFormats []worker.FormatOption `json:"videoFormats"`
	AudioFormats []worker.FormatOption `json:"audioFormats"`
}

func renderFormats(w io.Writer, result *worker.ProbeResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(formatsOutput{
			ID:           result.ID,
			Title:        result.Title,
			Duration:     result.Duration,
			Formats:      result.CombinedFormats(),
			VideoFormats: result.VideoFormats(),
			AudioFormats: result.AudioFormats(),
		})
	}

	fmt.Fprintf(w, "%s (%s)\n\n", result.Title, result.ID)

	table := tablewriter.NewWriter(w)
	table.Header("Kind", "ID", "Description")
	sections := []struct {
		kind    string
		options []worker.FormatOption
	}{
		{"combined", result.CombinedFormats()},
		{"video", result.VideoFormats()},
		{"audio", result.AudioFormats()},
	}
	for _, s := range sections {
		for _, opt := range s.options {
			table.Append(s.kind, opt.ID, opt.Text)
		}
	}
	return table.Render()
}
