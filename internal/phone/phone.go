// Package phone canonicalizes dialed and caller identities coming from the
// telephony layer (SIP URIs, tel: URIs, bare digits) into E.164-style strings.
package phone

import (
	"regexp"
	"strings"
)

var (
	schemePrefixes = []string{"sips:", "sip:", "tel:"}
	separators     = strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "")
	e164Pattern    = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)
)

// Canonicalize strips the transport scheme, any @host suffix, URI parameters
// and visual separators. It does not add or remove a leading '+'.
func Canonicalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	lower := strings.ToLower(s)
	for _, prefix := range schemePrefixes {
		if strings.HasPrefix(lower, prefix) {
			s = s[len(prefix):]
			break
		}
	}

	if at := strings.IndexByte(s, '@'); at >= 0 {
		s = s[:at]
	}
	if semi := strings.IndexByte(s, ';'); semi >= 0 {
		s = s[:semi]
	}

	return separators.Replace(s)
}

// Alternate returns the other canonical spelling of a number: a "+"-prefixed
// international form becomes bare digits and vice versa. Bare 10-digit
// national numbers are assumed to be NANP and gain "+1". Returns "" when the
// input has no meaningful alternate.
func Alternate(canonical string) string {
	if canonical == "" {
		return ""
	}
	if strings.HasPrefix(canonical, "+") {
		digits := canonical[1:]
		if !isDigits(digits) {
			return ""
		}
		return digits
	}
	if !isDigits(canonical) {
		return ""
	}
	if len(canonical) == 10 {
		return "+1" + canonical
	}
	return "+" + canonical
}

// IsValidE164 reports whether the number is a syntactically valid E.164 string.
func IsValidE164(number string) bool {
	return e164Pattern.MatchString(number)
}

// Normalize returns the canonical number in "+"-prefixed form when it can be
// derived, otherwise the canonicalized input.
func Normalize(raw string) string {
	c := Canonicalize(raw)
	if c == "" || strings.HasPrefix(c, "+") {
		return c
	}
	if alt := Alternate(c); alt != "" && IsValidE164(alt) {
		return alt
	}
	return c
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
