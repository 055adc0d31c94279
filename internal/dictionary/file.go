// Package dictionary reads, rewrites and reports on dictionary files: plain
// text word lists in UTF-8 or Windows-1251, one entry per line.
package dictionary

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/charset"
	apperrors "github.com/Adithya-Monish-Kumar-K/morphdict/pkg/errors"
)

const defaultFileMode os.FileMode = 0o644

// File is a decoded dictionary together with everything needed to write it
// back the way it was found.
type File struct {
	Path       string
	Encoding   charset.Label
	LineEnding LineEnding
	HasBOM     bool
	Mode       os.FileMode
	Lines      []string
}

// NewFile describes a dictionary that does not exist yet.
func NewFile(path string, enc charset.Label, mode os.FileMode) *File {
	if mode == 0 {
		mode = defaultFileMode
	}
	return &File{
		Path:       path,
		Encoding:   enc,
		LineEnding: LF,
		Mode:       mode,
		Lines:      []string{},
	}
}

// ReadRaw returns the bytes of path. A missing file is reported as
// ErrNotFound, any other failure as ErrIO.
func ReadRaw(path string) ([]byte, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, ioError("reading", path, err)
	}
	return buf, nil
}

// Load reads path, classifies its encoding and decodes it into lines. A file
// whose encoding cannot be determined yields ErrUnknownEncoding.
func Load(path string) (*File, error) {
	raw, err := ReadRaw(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(path, raw)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(path); err == nil {
		f.Mode = info.Mode().Perm()
	}
	return f, nil
}

// Parse decodes raw as if it had been read from path.
func Parse(path string, raw []byte) (*File, error) {
	label := charset.Classify(raw)
	if !label.Known() {
		return nil, fmt.Errorf("%s: %w", path, apperrors.ErrUnknownEncoding)
	}

	body, hasBOM := raw, false
	if label == charset.UTF8 {
		body, hasBOM = charset.StripBOM(raw)
	}
	text, err := charset.Decode(body, label)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &File{
		Path:       path,
		Encoding:   label,
		LineEnding: DetectLineEnding(text),
		HasBOM:     hasBOM,
		Mode:       defaultFileMode,
		Lines:      SplitLines(text),
	}, nil
}

// Encode renders lines in f's encoding, line ending and BOM. It fails
// without partial output if any line cannot be represented.
func Encode(f *File, lines []string) ([]byte, error) {
	out, err := charset.Encode(JoinLines(lines, f.LineEnding), f.Encoding)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	if f.HasBOM && f.Encoding == charset.UTF8 {
		out = charset.AddBOM(out)
	}
	return out, nil
}

// Save replaces f's file with lines. The content is fully encoded before
// anything touches the disk, then written to a temporary file in the same
// directory and renamed over the destination.
func Save(f *File, lines []string) error {
	data, err := Encode(f, lines)
	if err != nil {
		return err
	}
	mode := f.Mode
	if mode == 0 {
		mode = defaultFileMode
	}
	return writeAtomic(f.Path, data, mode)
}

func writeAtomic(dest string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return ioError("creating temp file for", dest, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return ioError("writing", tmpPath, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		cleanup()
		return ioError("setting mode of", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return ioError("syncing", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return ioError("closing", tmpPath, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return ioError("replacing", dest, err)
	}
	syncDir(dir)
	return nil
}

// syncDir persists the rename on filesystems that need it; failures are
// ignored because the data itself is already synced.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

func ioError(op, path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s %s: %w", op, path, apperrors.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w: %w", op, path, apperrors.ErrIO, err)
}

func isBlank(raw []byte) bool {
	body, _ := charset.StripBOM(raw)
	return len(bytes.TrimSpace(body)) == 0
}
