// Package email holds small helpers for addressing outgoing mail.
package email

import (
	"net/mail"
	"strings"
	"unicode"
)

// Normalize trims and lowercases addr and reports whether it parses as a
// bare address.
func Normalize(addr string) (string, bool) {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" {
		return "", false
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return "", false
	}
	return addr, true
}

// GreetingName returns name when set, otherwise a first name guessed from
// the local part of addr.
func GreetingName(name, addr string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	localPart := addr
	if at := strings.IndexByte(addr, '@'); at > 0 {
		localPart = addr[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+' || unicode.IsDigit(r)
	})
	if len(parts) == 0 {
		return "there"
	}
	return capitalize(parts[0])
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
