// Package redact masks personal data in user text before it reaches logs.
package redact

import (
	"regexp"
	"strings"
)

// Kind names a category of personal data
type Kind string

const (
	KindEmail      Kind = "email"
	KindPhone      Kind = "phone"
	KindSSN        Kind = "ssn"
	KindCreditCard Kind = "credit_card"
	KindIPAddress  Kind = "ip_address"
)

type rule struct {
	kind    Kind
	pattern *regexp.Regexp
	valid   func(string) bool
}

// Rules run in order. Card numbers go first so the phone rule cannot split them.
var rules = []rule{
	{KindCreditCard, regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`), luhnValid},
	{KindSSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), ssnValid},
	{KindEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`), nil},
	{KindIPAddress, regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`), nil},
	{KindPhone, regexp.MustCompile(`(?:\+?1[-. ]?)?\(?\b\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`), nil},
}

// String replaces every detected item with a [KIND_REDACTED] marker
func String(s string) string {
	for _, r := range rules {
		r := r
		s = r.pattern.ReplaceAllStringFunc(s, func(match string) string {
			if r.valid != nil && !r.valid(match) {
				return match
			}
			return marker(r.kind)
		})
	}
	return s
}

// Preview returns the redacted text cut to at most n runes
func Preview(s string, n int) string {
	s = String(s)
	runes := []rune(s)
	if n <= 0 || len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// Contains reports whether s holds any detectable personal data
func Contains(s string) bool {
	return String(s) != s
}

func marker(k Kind) string {
	return "[" + strings.ToUpper(string(k)) + "_REDACTED]"
}

// ssnValid rejects area, group and serial numbers that are never issued
func ssnValid(s string) bool {
	digits := strings.ReplaceAll(s, "-", "")
	if digits[:3] == "000" || digits[:3] == "666" || digits[0] == '9' {
		return false
	}
	return digits[3:5] != "00" && digits[5:] != "0000"
}

func luhnValid(s string) bool {
	sum := 0
	second := false
	count := 0
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c == ' ' || c == '-' {
			continue
		}
		d := int(c - '0')
		if second {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		second = !second
		count++
	}
	return count >= 13 && sum%10 == 0
}
