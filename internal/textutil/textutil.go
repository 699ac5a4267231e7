package textutil

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	tagPattern    = regexp.MustCompile(`(?s)<[^>]*>`)
	stylePattern  = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	spacePattern  = regexp.MustCompile(`[ \t]+`)
	blanksPattern = regexp.MustCompile(`\n{3,}`)
)

// TruncateText caps text at maxLen runes, appending an ellipsis marker when
// truncation occurred.
func TruncateText(text string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}

// SanitizeUTF8 replaces invalid byte sequences so downstream JSON encoding
// never fails on wire garbage.
func SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "�")
}

// StripHTMLTags removes markup from an HTML body, leaving readable text.
// Script and style blocks are dropped wholesale, remaining tags are cut and
// whitespace is collapsed.
func StripHTMLTags(html string) string {
	text := stylePattern.ReplaceAllString(html, " ")
	text = tagPattern.ReplaceAllString(text, " ")
	text = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	).Replace(text)
	text = spacePattern.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blanksPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
