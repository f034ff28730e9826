package utils

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Truncate cuts s to at most max bytes without splitting a UTF-8 sequence
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// BasicAuth builds the value of a Basic Authorization header
func BasicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// MaskSecret shortens a secret for logs: abcd...wxyz
func MaskSecret(secret string) string {
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return fmt.Sprintf("%s...%s", secret[:4], secret[len(secret)-4:])
}
