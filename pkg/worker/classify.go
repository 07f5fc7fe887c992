package worker

import "strings"

// FailureKind names a known class of worker failure
type FailureKind string

const (
	FailureCredentials FailureKind = "credentials" // browser cookie store unreadable
	FailureForbidden   FailureKind = "forbidden"   // host refused the request
	FailureUnsupported FailureKind = "unsupported" // local tooling or format mismatch
	FailureOther       FailureKind = "other"       // unrecognised diagnostic, reported verbatim
	FailureUnknown     FailureKind = "unknown"     // no diagnostic output at all
)

// Failure is the user-facing result of classifying worker diagnostics
type Failure struct {
	Kind    FailureKind
	Message string
}

// GenericFailureMessage is reported when the worker left no diagnostics
const GenericFailureMessage = "Download failed."

type rule struct {
	kind    FailureKind
	needles []string
	message string
}

// rules are checked in order; the first match wins.
var rules = []rule{
	{
		kind:    FailureCredentials,
		needles: []string{"Could not copy"},
		message: "Could not read the browser cookies needed for this video. Close the browser and try again.",
	},
	{
		kind:    FailureForbidden,
		needles: []string{"HTTP Error 403"},
		message: "Access denied by the video host (HTTP 403). The video may be private or region-locked, or the request was blocked.",
	},
	{
		kind: FailureUnsupported,
		needles: []string{
			"ffprobe and ffmpeg not found",
			"ffmpeg not found",
			"Requested format is not available",
		},
		message: "The server cannot produce the requested format. Check that ffmpeg is installed or pick another quality.",
	},
}

// Classify maps accumulated stderr text to a user-facing failure. It is a
// best-effort heuristic: unmatched text is reported as its last non-empty line.
func Classify(diagnostics string) Failure {
	for _, r := range rules {
		for _, needle := range r.needles {
			if strings.Contains(diagnostics, needle) {
				return Failure{Kind: r.kind, Message: r.message}
			}
		}
	}

	if line := lastLine(diagnostics); line != "" {
		return Failure{Kind: FailureOther, Message: line}
	}
	return Failure{Kind: FailureUnknown, Message: GenericFailureMessage}
}

func lastLine(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimRight(lines[i], "\r \t")
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}
