package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateLocation_EmptyAndWhitespace(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"spaces", "   "},
		{"tab", "\t"},
		{"only control chars", "\x00\x07"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateLocation(tc.input, 1, 100)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrLocationEmpty) {
				t.Errorf("error = %v, want ErrLocationEmpty", err)
			}
		})
	}
}

func TestValidateLocation_TooShort(t *testing.T) {
	_, err := ValidateLocation("x", 2, 100)
	if !errors.Is(err, ErrLocationTooShort) {
		t.Errorf("error = %v, want ErrLocationTooShort", err)
	}
}

func TestValidateLocation_InvalidChars(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"slash", "sea/ttle"},
		{"backslash", "sea\\ttle"},
		{"question", "sea?ttle"},
		{"hash", "sea#ttle"},
		{"percent", "sea%ttle"},
		{"ampersand", "sea&ttle"},
		{"angle brackets", "<script>"},
		{"pipe", "seattle|imperial"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateLocation(tc.input, 1, 100)
			if !errors.Is(err, ErrLocationInvalidChars) {
				t.Errorf("error = %v, want ErrLocationInvalidChars", err)
			}
		})
	}
}

func TestValidateLocation_Valid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "Seattle", "Seattle"},
		{"with space", "New York", "New York"},
		{"comma", "London,uk", "London,uk"},
		{"hyphen", "Some-City", "Some-City"},
		{"period and apostrophe", "St. John's", "St. John's"},
		{"trimmed", "  Boston  ", "Boston"},
		{"collapsed whitespace", "New \t  York", "New York"},
		{"control stripped", "Sea\x00ttle", "Seattle"},
		{"unicode", "Zürich", "Zürich"},
		{"digits", "Area51", "Area51"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateLocation(tc.input, 1, 100)
			if err != nil {
				t.Fatalf("ValidateLocation() err = %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestValidateLocation_LengthBoundaries(t *testing.T) {
	got, err := ValidateLocation("ab", 2, 100)
	if err != nil || got != "ab" {
		t.Fatalf("min boundary: got %q, err = %v", got, err)
	}
	s100 := strings.Repeat("a", 100)
	if _, err := ValidateLocation(s100, 1, 100); err != nil {
		t.Fatalf("max boundary: err = %v", err)
	}
	if _, err := ValidateLocation(s100+"a", 1, 100); !errors.Is(err, ErrLocationTooLong) {
		t.Errorf("over max: err = %v, want ErrLocationTooLong", err)
	}
	// bounds count runes, not bytes
	if _, err := ValidateLocation(strings.Repeat("ü", 100), 1, 100); err != nil {
		t.Errorf("multibyte max boundary: err = %v", err)
	}
}

func TestSanitizeText(t *testing.T) {
	tests := map[string]string{
		"":                     "",
		"  My Weather  ":       "My Weather",
		"line\nbreak":          "line break",
		"tabs\t\tand   spaces": "tabs and spaces",
		"bell\x07 removed":     "bell removed",
		"del\x7f":              "del",
		" nbsp ":               "nbsp",
		"unchanged":            "unchanged",
	}
	for in, want := range tests {
		if got := SanitizeText(in); got != want {
			t.Errorf("SanitizeText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClampCacheMinutes(t *testing.T) {
	tests := []struct {
		minutes, want int
	}{
		{15, 15},
		{1, 1},
		{0, 1},
		{-5, 1},
		{1440, 1440},
	}
	for _, tc := range tests {
		if got := ClampCacheMinutes(tc.minutes); got != tc.want {
			t.Errorf("ClampCacheMinutes(%d) = %d, want %d", tc.minutes, got, tc.want)
		}
	}
}
