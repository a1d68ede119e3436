package analytics

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxSignatureLen = 160

var (
	quotedRe = regexp.MustCompile(`"[^"]*"|'[^']*'|` + "`[^`]*`")
	uuidRe   = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	hexRe    = regexp.MustCompile(`\b0x[0-9a-f]+\b|\b[0-9a-f]*[a-f][0-9a-f]*\b`)
	numberRe = regexp.MustCompile(`\d+(?:\.\d+)?`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// NormalizeSignature reduces an error message to a stable signature so that
// failures differing only in ids, numbers or quoted values group together.
func NormalizeSignature(msg string) string {
	s := strings.ToLower(msg)
	s = quotedRe.ReplaceAllString(s, "<str>")
	s = uuidRe.ReplaceAllString(s, "<id>")
	s = hexRe.ReplaceAllStringFunc(s, func(m string) string {
		if isHexID(m) {
			return "<id>"
		}
		return m
	})
	s = numberRe.ReplaceAllString(s, "<n>")
	s = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))

	if utf8.RuneCountInString(s) > maxSignatureLen {
		s = string([]rune(s)[:maxSignatureLen])
	}
	return s
}

// isHexID accepts 0x-prefixed values and bare hex runs of 8+ chars that
// contain a digit. Words made of hex letters alone are kept.
func isHexID(m string) bool {
	if strings.HasPrefix(m, "0x") {
		return len(m) > 2
	}
	return len(m) >= 8 && strings.ContainsAny(m, "0123456789")
}
