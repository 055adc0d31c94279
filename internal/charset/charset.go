// Package charset classifies and converts the two text encodings a
// dictionary file may use: UTF-8 and the Windows-1251 Cyrillic code page.
//
// Classification is a best-effort heuristic tuned for Cyrillic word lists. A
// buffer is only labelled when its decoded text contains real Cyrillic
// letters; anything else, including pure ASCII, is reported as Unknown and
// must not be decoded or rewritten by callers.
package charset

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Label identifies the encoding of a raw buffer.
type Label string

const (
	// UTF8 is UTF-8, with or without a byte-order mark.
	UTF8 Label = "utf8"

	// Windows1251 is the single-byte Cyrillic code page CP1251.
	Windows1251 Label = "windows1251"

	// Unknown means neither heuristic matched.
	Unknown Label = "unknown"
)

// String implements fmt.Stringer.
func (l Label) String() string {
	return string(l)
}

// Known reports whether l is one of the encodings that can be decoded.
func (l Label) Known() bool {
	return l == UTF8 || l == Windows1251
}

// ParseLabel converts user input such as "utf-8", "cp1251" or "windows-1251"
// into a Label. The empty string and "unknown" are rejected.
func ParseLabel(s string) (Label, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "utf8", "utf-8":
		return UTF8, nil
	case "windows1251", "windows-1251", "cp1251", "cp-1251":
		return Windows1251, nil
	default:
		return Unknown, fmt.Errorf("unsupported encoding %q (expected utf8 or windows1251)", s)
	}
}

// Classify inspects buf and returns its encoding label. The first matching
// rule wins:
//
//  1. buf is valid UTF-8 whose text has a Cyrillic letter and no U+FFFD.
//  2. buf decoded as Windows-1251 has a Cyrillic letter and no undefined byte.
//  3. Unknown.
//
// Classify never fails and never mutates buf.
func Classify(buf []byte) Label {
	if utf8.Valid(buf) && looksCyrillic(string(buf), isReplacement) {
		return UTF8
	}

	decoded, err := charmap.Windows1251.NewDecoder().Bytes(buf)
	if err == nil && looksCyrillic(string(decoded), isUndefined1251) {
		return Windows1251
	}

	return Unknown
}

// looksCyrillic reports whether text contains at least one Cyrillic letter
// and no rune rejected by bad.
func looksCyrillic(text string, bad func(rune) bool) bool {
	found := false
	for _, r := range text {
		if bad(r) {
			return false
		}
		if !found && unicode.IsLetter(r) && unicode.Is(unicode.Cyrillic, r) {
			found = true
		}
	}
	return found
}

func isReplacement(r rune) bool {
	return r == utf8.RuneError
}

// isUndefined1251 treats C1 controls like U+FFFD: the code page's one
// unassigned byte, 0x98, decodes to U+0098 in the WHATWG table.
func isUndefined1251(r rune) bool {
	return r == utf8.RuneError || (r >= 0x80 && r <= 0x9F)
}
