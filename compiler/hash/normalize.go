package hash

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ---------------------------------------------------------------------------
// Source normalization
//
// Two sources that differ only in CRLF line endings, trailing whitespace,
// trailing blank lines or the Unicode composition of text outside string
// literals normalize to the same text. None of these change what a script
// does: string literals are kept byte for byte, a lone CR is left alone
// and indentation and comments stay where the author put them.
// ---------------------------------------------------------------------------

// Normalize returns the canonical form of src:
//   - CRLF becomes LF
//   - trailing spaces and tabs are trimmed from every line
//   - text outside string literals is put in Unicode NFC
//   - trailing blank lines are dropped
//
// A non-empty result never ends with a newline.
func Normalize(src string) string {
	src = strings.ReplaceAll(src, "\r\n", "\n")

	lines := strings.Split(src, "\n")
	for i, line := range lines {
		lines[i] = composeOutsideStrings(strings.TrimRight(line, " \t"))
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// composeOutsideStrings applies NFC to one line, skipping quoted literals.
// Literals never span lines, and everything after a # is a comment.
func composeOutsideStrings(line string) string {
	if norm.NFC.IsNormalString(line) {
		return line
	}
	var sb strings.Builder
	start := 0
	for i := 0; i < len(line); {
		q := line[i]
		if q == '#' {
			break
		}
		if q != '\'' && q != '"' {
			i++
			continue
		}
		sb.WriteString(norm.NFC.String(line[start:i]))
		j := i + 1
		for j < len(line) && line[j] != q {
			if line[j] == '\\' {
				j++
			}
			j++
		}
		j = min(j+1, len(line))
		sb.WriteString(line[i:j])
		start, i = j, j
	}
	sb.WriteString(norm.NFC.String(line[start:]))
	return sb.String()
}

// IsNormal reports whether src is already in canonical form.
func IsNormal(src string) bool {
	return Normalize(src) == src
}
