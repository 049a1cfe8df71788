package util

import (
	"errors"
	"strings"
	"unicode"
)

const maxFileNameLen = 128

// SanitizeFileName makes a client-supplied file name safe to echo in
// logs and audit messages: no path separators, no control characters,
// bounded length.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", errors.New("invalid file name")
	}
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return "", errors.New("invalid file name")
	}
	if r := []rune(s); len(r) > maxFileNameLen {
		s = string(r[:maxFileNameLen])
	}
	return s, nil
}
