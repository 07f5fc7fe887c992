package artifacts

import (
	"regexp"
	"strings"
)

var (
	forbiddenChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
)

// SanitizeFilename makes a display title safe to use as a file name.
// Forbidden characters become underscores and whitespace runs collapse to a
// single space. An empty result means the title had nothing usable.
func SanitizeFilename(name string) string {
	name = whitespaceRuns.ReplaceAllString(name, " ")
	name = forbiddenChars.ReplaceAllString(name, "_")
	name = strings.TrimSpace(name)
	// Leading dots would hide the file or escape to a parent path.
	return strings.TrimLeft(name, ".")
}

// DisplayName is the filename offered to the browser, e.g. "My Clip.mp4"
func DisplayName(title, fallback, ext string) string {
	name := SanitizeFilename(title)
	if name == "" {
		name = fallback
	}
	return name + "." + ext
}
