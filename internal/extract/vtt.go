package extract

import (
	"regexp"
	"strings"
)

var (
	vttTimingPattern = regexp.MustCompile(`^\d{1,2}:?\d{2}:\d{2}[.,]\d{3}\s+-->\s+`)
	vttTagPattern    = regexp.MustCompile(`<[^>]+>`)
)

// ParseVTT extracts plain transcript text from a WebVTT caption file.
// Cue timings, identifiers, inline tags, and consecutive duplicate lines
// (common in auto-generated captions) are dropped.
func ParseVTT(data string) string {
	lines := strings.Split(strings.ReplaceAll(data, "\r\n", "\n"), "\n")

	var out []string
	var last string
	inHeader := true

	for _, line := range lines {
		line = strings.TrimSpace(line)

		if inHeader {
			// Header ends at the first blank line after WEBVTT.
			if line == "" {
				inHeader = false
			}
			continue
		}

		if line == "" || vttTimingPattern.MatchString(line) {
			continue
		}
		// NOTE/STYLE blocks and bare cue identifiers carry no speech.
		if strings.HasPrefix(line, "NOTE") || strings.HasPrefix(line, "STYLE") {
			continue
		}
		if isCueIdentifier(line) {
			continue
		}

		line = vttTagPattern.ReplaceAllString(line, "")
		line = strings.TrimSpace(line)
		if line == "" || line == last {
			continue
		}
		out = append(out, line)
		last = line
	}

	return strings.Join(out, " ")
}

// isCueIdentifier reports whether a line is a bare numeric cue id.
func isCueIdentifier(line string) bool {
	for _, r := range line {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(line) > 0
}
