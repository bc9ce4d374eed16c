package policy

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// NormalizeVehicleNumber upper-cases and drops spaces, dashes and dots:
// "kl-07 ab 1234" becomes "KL07AB1234".
func NormalizeVehicleNumber(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if r == ' ' || r == '-' || r == '.' || r == '\t' {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// NormalizeMobile strips spaces, dashes, brackets and a +91 or 0 prefix.
// The result is not validated.
func NormalizeMobile(raw string) string {
	cleaned := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(cleaned, "+91") && len(cleaned) == 13:
		cleaned = cleaned[3:]
	case strings.HasPrefix(cleaned, "0") && len(cleaned) == 11:
		cleaned = cleaned[1:]
	}
	return cleaned
}

// ValidMobile reports whether digits is a bare 10-digit number.
func ValidMobile(digits string) bool {
	if len(digits) != 10 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// MaskVehicleNumber keeps the first four and last two characters.
func MaskVehicleNumber(vehicle string) string {
	runes := []rune(vehicle)
	if len(runes) <= 6 {
		if len(runes) <= 2 {
			return strings.Repeat("*", len(runes))
		}
		return strings.Repeat("*", len(runes)-2) + string(runes[len(runes)-2:])
	}
	return string(runes[:4]) + strings.Repeat("*", len(runes)-6) + string(runes[len(runes)-2:])
}

// MaskName keeps the first letter of every word.
func MaskName(name string) string {
	words := strings.Fields(name)
	for i, word := range words {
		first, size := utf8.DecodeRuneInString(word)
		words[i] = string(first) + strings.Repeat("*", utf8.RuneCountInString(word[size:]))
	}
	return strings.Join(words, " ")
}

func MaskMobile(last4 string) string {
	if last4 == "" {
		return ""
	}
	return "******" + last4
}

func lastFour(mobile string) string {
	if len(mobile) <= 4 {
		return mobile
	}
	return mobile[len(mobile)-4:]
}
