package visits

import (
	"strings"
	"unicode/utf8"
)

const (
	maxFieldLen     = 255
	maxRequestIDLen = 36
)

// normalizePhone strips everything but digits, preserving a single leading +.
func normalizePhone(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	var b strings.Builder
	if trimmed[0] == '+' {
		b.WriteByte('+')
	}
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 || (b.Len() == 1 && trimmed[0] == '+') {
		return ""
	}
	return b.String()
}

// safeRequestID reduces a raw idempotency token to the safe alphabet
// (letters, digits, '.', '_', '-'), capped at 36 chars. Returns "" when
// nothing usable remains or the token would start with a separator.
func safeRequestID(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
		if b.Len() >= maxRequestIDLen {
			break
		}
	}
	id := b.String()
	if id == "" || id[0] == '.' || id[0] == '_' || id[0] == '-' {
		return ""
	}
	return id
}

// clampString trims the value and caps it at max characters. The cap counts
// runes, not bytes, so multi-byte input is never cut mid-character.
func clampString(v string, max int) string {
	s := strings.TrimSpace(v)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// truncateError caps an error message for storage in an audit record.
func truncateError(err error, maxLength int) string {
	msg := err.Error()
	if utf8.RuneCountInString(msg) <= maxLength {
		return msg
	}
	return string([]rune(msg)[:maxLength])
}
