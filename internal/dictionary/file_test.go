package dictionary

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/charset"
	apperrors "github.com/Adithya-Monish-Kumar-K/morphdict/pkg/errors"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing fixture %s: %v", name, err)
	}
	return path
}

func cp1251(t *testing.T, text string) []byte {
	t.Helper()
	b, err := charset.Encode(text, charset.Windows1251)
	if err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}
	return b
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	bom := []byte{0xEF, 0xBB, 0xBF}

	tests := []struct {
		name      string
		data      []byte
		wantEnc   charset.Label
		wantLE    LineEnding
		wantBOM   bool
		wantLines []string
	}{
		{
			name:      "utf8",
			data:      []byte("банан\nяблоко\n\nгруша\n"),
			wantEnc:   charset.UTF8,
			wantLE:    LF,
			wantLines: []string{"банан", "яблоко", "груша"},
		},
		{
			name:      "utf8 bom crlf",
			data:      append(slices.Clone(bom), []byte("кот\r\nпёс\r\n")...),
			wantEnc:   charset.UTF8,
			wantLE:    CRLF,
			wantBOM:   true,
			wantLines: []string{"кот", "пёс"},
		},
		{
			name:      "windows1251",
			data:      cp1251(t, "кот\nпёс\n"),
			wantEnc:   charset.Windows1251,
			wantLE:    LF,
			wantLines: []string{"кот", "пёс"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.name+".txt", tt.data)
			f, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if f.Encoding != tt.wantEnc || f.LineEnding != tt.wantLE || f.HasBOM != tt.wantBOM {
				t.Errorf("got encoding=%s ending=%s bom=%v", f.Encoding, f.LineEnding, f.HasBOM)
			}
			if !slices.Equal(f.Lines, tt.wantLines) {
				t.Errorf("lines = %q, want %q", f.Lines, tt.wantLines)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.txt"))
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("missing file: err = %v, want ErrNotFound", err)
	}

	digits := writeFile(t, dir, "digits.txt", []byte("123\n456\n"))
	_, err = Load(digits)
	if !errors.Is(err, apperrors.ErrUnknownEncoding) {
		t.Errorf("digits: err = %v, want ErrUnknownEncoding", err)
	}
	if apperrors.ExitCode(err) != apperrors.ExitUnknownEncoding {
		t.Errorf("exit code = %d", apperrors.ExitCode(err))
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, enc := range []charset.Label{charset.UTF8, charset.Windows1251} {
		t.Run(enc.String(), func(t *testing.T) {
			path := filepath.Join(dir, enc.String()+".txt")
			f := NewFile(path, enc, 0)
			f.LineEnding = CRLF
			lines := []string{"ёж", "кот", "Лиса"}
			if err := Save(f, lines); err != nil {
				t.Fatalf("Save: %v", err)
			}

			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got.Encoding != enc {
				t.Errorf("re-detected %s, want %s", got.Encoding, enc)
			}
			if got.LineEnding != CRLF {
				t.Errorf("line ending %s, want crlf", got.LineEnding)
			}
			if !slices.Equal(got.Lines, lines) {
				t.Errorf("lines = %q, want %q", got.Lines, lines)
			}
		})
	}
}

func TestSaveKeepsBOM(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bom.txt", append([]byte{0xEF, 0xBB, 0xBF}, "кот\n"...))
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Save(f, []string{"кот", "пёс"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, _ := os.ReadFile(path)
	want := append([]byte{0xEF, 0xBB, 0xBF}, "кот\nпёс\n"...)
	if !bytes.Equal(raw, want) {
		t.Errorf("file = %q, want %q", raw, want)
	}
}

func TestSaveUnrepresentableLeavesFile(t *testing.T) {
	dir := t.TempDir()
	original := cp1251(t, "кот\n")
	path := writeFile(t, dir, "cp.txt", original)
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	err = Save(f, []string{"кот", "日本"})
	if !errors.Is(err, apperrors.ErrUnrepresentable) {
		t.Fatalf("err = %v, want ErrUnrepresentable", err)
	}
	raw, _ := os.ReadFile(path)
	if !bytes.Equal(raw, original) {
		t.Errorf("file modified after failed save: %q", raw)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("stray files left behind: %d entries", len(entries))
	}
}

func TestSavePreservesMode(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "mode.txt", []byte("кот\n"))
	if err := os.Chmod(path, 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := Save(f, []string{"кот", "пёс"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}
