package domain

import (
	"regexp"
	"strings"
)

// DefaultTOCLineFraction is the share of number-terminated lines above which
// a chunk is classified as a table of contents.
const DefaultTOCLineFraction = 0.45

var tocHeaderPhrases = []string{
	"sommaire",
	"table des matières",
	"table des matieres",
	"contents",
}

// Lines like "2.1 Occupation de voirie ......... 14" or "Annexe B   7":
// a short page number at the end, alone or after whitespace/dot leaders.
var tocLinePattern = regexp.MustCompile(`(^|\s|\.{3,})\d{1,4}$`)

// LooksLikeTOC applies the textual table-of-contents heuristics shared by
// ingestion-time marking and the client-side noise filter. A structural
// label set upstream is trusted before ever calling this.
func LooksLikeTOC(content string, lineFraction float64) bool {
	if lineFraction <= 0 || lineFraction >= 1 {
		lineFraction = DefaultTOCLineFraction
	}

	trimmed := strings.TrimSpace(strings.ToLower(content))
	if trimmed == "" {
		return false
	}

	head := trimmed
	if len(head) > 120 {
		head = head[:120]
	}
	for _, phrase := range tocHeaderPhrases {
		if strings.Contains(head, phrase) {
			return true
		}
	}

	lines := strings.Split(trimmed, "\n")
	total := 0
	numbered := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		total++
		if tocLinePattern.MatchString(line) {
			numbered++
		}
	}
	if total < 3 {
		return false
	}
	return float64(numbered)/float64(total) > lineFraction
}
