package util

import (
	"strings"
	"testing"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "cat.png", want: "cat.png"},
		{in: " dir/cat.png ", want: "dir_cat.png"},
		{in: `c:\photos\cat.png`, want: "c:_photos_cat.png"},
		{in: "line\nbreak.png", want: "linebreak.png"},
		{in: "../etc/passwd", wantErr: true},
		{in: "   ", wantErr: true},
	}
	for _, tt := range tests {
		got, err := SanitizeFileName(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("SanitizeFileName(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("SanitizeFileName(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}

	long, err := SanitizeFileName(strings.Repeat("a", 500))
	if err != nil || len(long) != maxFileNameLen {
		t.Fatalf("expected truncation to %d, got %d (%v)", maxFileNameLen, len(long), err)
	}
}
