// internal/llmutil/parser.go
package llmutil

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// fenceRegex matches one fenced block and captures its language tag and body.
// Backticks are written as \x60 because Go raw strings cannot contain them.
var fenceRegex = regexp.MustCompile("(?s)\x60\x60\x60([a-zA-Z0-9_+-]*)[ \t]*\r?\n(.*?)\x60\x60\x60")

// ExtractCode returns the first TypeScript (or untagged) fenced block of a
// model response, falling back to the first fenced block of any language,
// then to the whole response. The result is trimmed.
func ExtractCode(response string) string {
	blocks := fenceRegex.FindAllStringSubmatch(response, -1)
	for _, b := range blocks {
		switch strings.ToLower(b[1]) {
		case "", "ts", "typescript":
			return strings.TrimSpace(b[2])
		}
	}
	if len(blocks) > 0 {
		return strings.TrimSpace(blocks[0][2])
	}
	return strings.TrimSpace(response)
}

// Truncate shortens s to at most maxLen bytes without splitting a rune.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 0 {
		return ""
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
