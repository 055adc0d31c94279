package dictionary

import (
	"errors"
	"slices"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/morphdict/pkg/errors"
)

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "empty", text: "", want: []string{}},
		{name: "lf", text: "кот\nпёс\n", want: []string{"кот", "пёс"}},
		{name: "crlf", text: "кот\r\nпёс\r\n", want: []string{"кот", "пёс"}},
		{name: "no trailing terminator", text: "кот\nпёс", want: []string{"кот", "пёс"}},
		{name: "blank lines dropped", text: "\nкот\n\n  \n\t\nпёс\n\n", want: []string{"кот", "пёс"}},
		{name: "inner spaces kept", text: " кот \nсобака лайка\n", want: []string{" кот ", "собака лайка"}},
		{name: "duplicates kept", text: "а\nа\n", want: []string{"а", "а"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitLines(tt.text)
			if !slices.Equal(got, tt.want) {
				t.Errorf("SplitLines(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestDetectLineEnding(t *testing.T) {
	tests := []struct {
		text string
		want LineEnding
	}{
		{"", LF},
		{"кот", LF},
		{"а\nб\n", LF},
		{"а\r\nб\r\n", CRLF},
		{"а\r\nб\r\nв\n", CRLF},
		{"а\nб\nв\r\n", LF},
	}
	for _, tt := range tests {
		if got := DetectLineEnding(tt.text); got != tt.want {
			t.Errorf("DetectLineEnding(%q) = %s, want %s", tt.text, got, tt.want)
		}
	}
}

func TestJoinLines(t *testing.T) {
	if got := JoinLines([]string{"а", "б"}, CRLF); got != "а\r\nб\r\n" {
		t.Errorf("JoinLines CRLF = %q", got)
	}
	if got := JoinLines([]string{"а"}, ""); got != "а\n" {
		t.Errorf("JoinLines default = %q", got)
	}
	if got := JoinLines(nil, LF); got != "" {
		t.Errorf("JoinLines(nil) = %q", got)
	}
}

func TestCleanWords(t *testing.T) {
	got, err := CleanWords([]string{"кот\n", "", "  ", "лиса\r\n", "пёс"})
	if err != nil {
		t.Fatalf("CleanWords: %v", err)
	}
	if want := []string{"кот", "лиса", "пёс"}; !slices.Equal(got, want) {
		t.Errorf("CleanWords = %q, want %q", got, want)
	}

	_, err = CleanWords([]string{"два\nслова"})
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("embedded newline: err = %v, want ErrInvalidInput", err)
	}
}

func TestValidateName(t *testing.T) {
	valid := []string{"ru.txt", "словарь.dic", "a-b_c"}
	for _, n := range valid {
		if err := ValidateName(n); err != nil {
			t.Errorf("ValidateName(%q) = %v", n, err)
		}
	}
	invalid := []string{"", ".", "..", ".hidden", "../etc/passwd", "a/b", `a\b`, "a\x00b"}
	for _, n := range invalid {
		if err := ValidateName(n); !errors.Is(err, apperrors.ErrInvalidInput) {
			t.Errorf("ValidateName(%q) = %v, want ErrInvalidInput", n, err)
		}
	}
}
