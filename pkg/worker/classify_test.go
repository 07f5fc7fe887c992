package worker

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		diagnostics string
		kind        FailureKind
		message     string
	}{
		{
			name:        "cookie database locked",
			diagnostics: "ERROR: Could not copy Chrome cookie database. See https://github.com/yt-dlp/yt-dlp/issues/7271\n",
			kind:        FailureCredentials,
		},
		{
			name:        "forbidden",
			diagnostics: "WARNING: something\nERROR: unable to download video data: HTTP Error 403: Forbidden\n",
			kind:        FailureForbidden,
		},
		{
			name:        "missing ffmpeg",
			diagnostics: "ERROR: You have requested merging of multiple formats but ffmpeg not found\n",
			kind:        FailureUnsupported,
		},
		{
			name:        "missing ffprobe and ffmpeg",
			diagnostics: "ERROR: Postprocessing: ffprobe and ffmpeg not found. Please install or provide the path\n",
			kind:        FailureUnsupported,
		},
		{
			name:        "unavailable format",
			diagnostics: "ERROR: [youtube] abc: Requested format is not available\n",
			kind:        FailureUnsupported,
		},
		{
			name:        "first rule wins",
			diagnostics: "HTTP Error 403\nCould not copy\n",
			kind:        FailureCredentials,
		},
		{
			name:        "last line verbatim",
			diagnostics: "foo\nbar baz\n",
			kind:        FailureOther,
			message:     "bar baz",
		},
		{
			name:        "trailing blank lines skipped",
			diagnostics: "ERROR: Unsupported URL: https://example.com\r\n\n  \n",
			kind:        FailureOther,
			message:     "ERROR: Unsupported URL: https://example.com",
		},
		{
			name:        "empty",
			diagnostics: "",
			kind:        FailureUnknown,
			message:     GenericFailureMessage,
		},
		{
			name:        "whitespace only",
			diagnostics: "\n \n",
			kind:        FailureUnknown,
			message:     GenericFailureMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.diagnostics)
			if got.Kind != tt.kind {
				t.Errorf("Classify() kind = %v, want %v", got.Kind, tt.kind)
			}
			if tt.message != "" && got.Message != tt.message {
				t.Errorf("Classify() message = %q, want %q", got.Message, tt.message)
			}
			if got.Message == "" {
				t.Error("Classify() returned empty message")
			}
		})
	}
}

func TestClassifyRuleMessagesDiffer(t *testing.T) {
	seen := map[string]FailureKind{}
	for _, r := range rules {
		if prev, ok := seen[r.message]; ok {
			t.Errorf("rules %s and %s share a message", prev, r.kind)
		}
		seen[r.message] = r.kind
	}
}
