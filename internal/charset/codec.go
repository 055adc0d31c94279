package charset

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var (
	// ErrUnknownEncoding is returned when asked to decode or encode with a
	// label other than UTF8 or Windows1251.
	ErrUnknownEncoding = errors.New("unknown encoding")

	// ErrUnrepresentable is returned when text contains a rune the target
	// encoding has no byte for.
	ErrUnrepresentable = errors.New("character not representable in target encoding")

	// ErrMalformed is returned when a buffer is not valid in the requested
	// encoding.
	ErrMalformed = errors.New("malformed input for encoding")
)

var bomUTF8 = []byte{0xEF, 0xBB, 0xBF}

// StripBOM removes a leading UTF-8 byte-order mark, reporting whether one was
// present. The returned slice aliases buf.
func StripBOM(buf []byte) ([]byte, bool) {
	if bytes.HasPrefix(buf, bomUTF8) {
		return buf[len(bomUTF8):], true
	}
	return buf, false
}

// AddBOM prefixes buf with a UTF-8 byte-order mark unless it already has one.
func AddBOM(buf []byte) []byte {
	if bytes.HasPrefix(buf, bomUTF8) {
		return buf
	}
	out := make([]byte, 0, len(bomUTF8)+len(buf))
	out = append(out, bomUTF8...)
	return append(out, buf...)
}

// Decode converts buf from the given encoding into a Go string.
func Decode(buf []byte, label Label) (string, error) {
	switch label {
	case UTF8:
		if !utf8.Valid(buf) {
			return "", fmt.Errorf("decoding %s: %w", label, ErrMalformed)
		}
		return string(buf), nil
	case Windows1251:
		out, err := charmap.Windows1251.NewDecoder().Bytes(buf)
		if err != nil {
			return "", fmt.Errorf("decoding %s: %w", label, err)
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("decoding %q: %w", label, ErrUnknownEncoding)
	}
}

// Encode converts text into the given encoding. Nothing is returned unless
// every rune could be converted.
func Encode(text string, label Label) ([]byte, error) {
	switch label {
	case UTF8:
		if !utf8.ValidString(text) {
			return nil, fmt.Errorf("encoding %s: %w", label, ErrMalformed)
		}
		return []byte(text), nil
	case Windows1251:
		out := make([]byte, 0, len(text))
		for i, r := range text {
			if r == utf8.RuneError {
				return nil, fmt.Errorf("encoding %s at byte %d: %w", label, i, ErrMalformed)
			}
			b, ok := charmap.Windows1251.EncodeRune(r)
			if !ok {
				return nil, fmt.Errorf("encoding %s: %w: %q (U+%04X)", label, ErrUnrepresentable, r, r)
			}
			out = append(out, b)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("encoding %q: %w", label, ErrUnknownEncoding)
	}
}
