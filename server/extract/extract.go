// Package extract separates generated code from explanatory prose in raw
// backend output.
package extract

import (
	"regexp"
	"strings"
)

// fencedBlock matches a triple-backtick fence with an optional language tag and a
// newline, up to the next triple backtick. The match is non-greedy and only
// closed fences match, so a dangling opener and everything after it stay prose.
var fencedBlock = regexp.MustCompile("(?s)```(?:\\w+)?\\n(.*?)```")

// Extraction is the result of splitting raw text into code and explanation.
type Extraction struct {
	Code        string
	Explanation string
}

// Found reports whether a fenced block was present.
func (e Extraction) Found() bool {
	return e.Code != ""
}

// Extract returns the trimmed contents of the first fenced block as Code and the
// raw text with every fenced block removed as Explanation. When raw contains no
// closed fence both fields are empty and the caller decides the fallback.
func Extract(raw string) Extraction {
	first := fencedBlock.FindStringSubmatch(raw)
	if first == nil {
		return Extraction{}
	}
	return Extraction{
		Code:        strings.TrimSpace(first[1]),
		Explanation: strings.TrimSpace(fencedBlock.ReplaceAllLiteralString(raw, "")),
	}
}
