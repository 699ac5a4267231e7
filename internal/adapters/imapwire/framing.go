package imapwire

import (
	"bytes"
	"regexp"
	"strconv"
)

// Framing helpers for the tagged retrieval protocol. These operate on the
// accumulated response bytes only, so every wire quirk can be exercised
// without a live server.

var (
	searchLinePattern = regexp.MustCompile(`\* SEARCH ([^\r\n]+)\r?\n`)
	existsPattern     = regexp.MustCompile(`\* (\d+) EXISTS`)

	// Literal marker placements observed across servers, tried in order:
	// the marker directly inside the FETCH summary line, the marker followed
	// by a line break, and the marker anywhere within a multi-line FETCH
	// response.
	literalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\* \d+ FETCH \(RFC822 \{(\d+)\}\r?\n`),
		regexp.MustCompile(`RFC822 \{(\d+)\}\r?\n`),
		regexp.MustCompile(`(?s)FETCH \(.*?\{(\d+)\}\r?\n`),
	}
)

// ContainsTag reports whether the completion tag has appeared in the
// accumulated stream.
func ContainsTag(buf []byte, tag string) bool {
	return bytes.Contains(buf, []byte(tag))
}

// IsTaggedOK reports whether the response affirmatively acknowledges success.
func IsTaggedOK(buf []byte, tag string) bool {
	return bytes.Contains(buf, []byte(tag+" OK")) || bytes.Contains(buf, []byte("OK"))
}

// ParseSearchIDs extracts the ordered message identifiers from an untagged
// SEARCH response line. It returns nil when the response carries none.
func ParseSearchIDs(buf []byte) []string {
	m := searchLinePattern.FindSubmatch(buf)
	if m == nil {
		return nil
	}
	fields := bytes.Fields(m[1])
	if len(fields) == 0 {
		return nil
	}
	ids := make([]string, 0, len(fields))
	for _, f := range fields {
		ids = append(ids, string(f))
	}
	return ids
}

// ParseExistsCount extracts the message count from an untagged EXISTS line,
// returning 0 when the line is absent.
func ParseExistsCount(buf []byte) int {
	m := existsPattern.FindSubmatch(buf)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return 0
	}
	return n
}

// ExtractLiteral locates the {N} length marker in a FETCH response and slices
// exactly the next N bytes, regardless of line terminators or control bytes
// inside that span. Each recognized marker placement is attempted in turn;
// ok is false when none matches or the announced length overruns the buffer.
func ExtractLiteral(buf []byte) ([]byte, bool) {
	for _, p := range literalPatterns {
		loc := p.FindSubmatchIndex(buf)
		if loc == nil {
			continue
		}
		size, err := strconv.Atoi(string(buf[loc[2]:loc[3]]))
		if err != nil {
			continue
		}
		start := loc[1]
		if start+size > len(buf) {
			continue
		}
		return buf[start : start+size], true
	}
	return nil, false
}
