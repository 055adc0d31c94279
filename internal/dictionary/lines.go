package dictionary

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/morphdict/pkg/errors"
)

// LineEnding is the terminator appended to every line on write.
type LineEnding string

const (
	LF   LineEnding = "\n"
	CRLF LineEnding = "\r\n"
)

func (le LineEnding) String() string {
	if le == CRLF {
		return "crlf"
	}
	return "lf"
}

// DetectLineEnding returns CRLF when most terminators in text are CRLF, and
// LF otherwise, including for text without any terminator.
func DetectLineEnding(text string) LineEnding {
	crlf := strings.Count(text, "\r\n")
	lf := strings.Count(text, "\n") - crlf
	if crlf > lf {
		return CRLF
	}
	return LF
}

// SplitLines splits decoded text into lines. Terminators (LF or CRLF) are
// removed and lines that are empty or whitespace-only are dropped; every
// other line is kept byte for byte.
func SplitLines(text string) []string {
	lines := make([]string, 0, strings.Count(text, "\n")+1)
	for line := range strings.SplitSeq(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// JoinLines renders lines with le after each one, including the last.
func JoinLines(lines []string, le LineEnding) string {
	if le == "" {
		le = LF
	}
	var b strings.Builder
	n := 0
	for _, l := range lines {
		n += len(l) + len(le)
	}
	b.Grow(n)
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString(string(le))
	}
	return b.String()
}

// CleanWords prepares words that did not come from a file, such as an HTTP
// body or a change event. Blank entries are dropped and a trailing
// terminator is removed. Entries with an embedded line break are rejected
// because they could not be written back as a single line.
func CleanWords(words []string) ([]string, error) {
	out := make([]string, 0, len(words))
	for i, w := range words {
		w = strings.TrimSuffix(strings.TrimSuffix(w, "\n"), "\r")
		if strings.ContainsAny(w, "\r\n") {
			return nil, fmt.Errorf("word %d contains a line break: %w", i, apperrors.ErrInvalidInput)
		}
		if strings.TrimSpace(w) == "" {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}
