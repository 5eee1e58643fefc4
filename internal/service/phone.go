package service

import "strings"

// NormalizePhone rewrites a local or international number into the digits-only
// international form the gateway expects. It returns "" when nothing dialable remains.
func NormalizePhone(raw string, countryCode string) string {
	digits := digitsOnly(raw)
	if digits == "" {
		return ""
	}

	code := digitsOnly(countryCode)
	if code == "" {
		return digits
	}

	switch {
	case strings.HasPrefix(digits, "00"+code):
		return digits[2:]
	case strings.HasPrefix(digits, "0"):
		return code + digits[1:]
	case strings.HasPrefix(digits, code):
		return digits
	default:
		return code + digits
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
