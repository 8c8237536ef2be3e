package indexer

import (
	"strings"
	"unicode"
)

// Preprocess normalizes extracted text before splitting: line endings become \n,
// runs of horizontal whitespace collapse to one space, lines are trimmed, and more
// than one blank line collapses to a single paragraph break.
func Preprocess(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	var b strings.Builder
	blank := 0
	for _, line := range strings.Split(text, "\n") {
		line = collapseSpaces(line)
		if line == "" {
			blank++
			continue
		}
		if b.Len() > 0 {
			if blank > 0 {
				b.WriteString("\n\n")
			} else {
				b.WriteByte('\n')
			}
		}
		b.WriteString(line)
		blank = 0
	}
	return b.String()
}

func collapseSpaces(line string) string {
	line = strings.TrimSpace(line)
	var b strings.Builder
	wasSpace := false
	for _, r := range line {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}
