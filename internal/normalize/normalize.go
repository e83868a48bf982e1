// Package normalize converts raw phone, email and name strings into the
// canonical keys used for equality comparisons across sources.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CountryCode is prefixed to every canonical phone number.
const CountryCode = "+1"

// phoneDigits is the number of national digits kept from a raw phone.
const phoneDigits = 10

var multiSpaceRe = regexp.MustCompile(`\s+`)

// Phone returns the E.164 form of raw, or ok=false when fewer than ten
// digits remain after stripping everything that is not a digit. Only the
// last ten digits are kept, so "1-404-555-0199" and "(404) 555-0199" agree.
// Phone is idempotent on its own output.
func Phone(raw string) (string, bool) {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < phoneDigits {
		return "", false
	}
	return CountryCode + digits[len(digits)-phoneDigits:], true
}

// Email lower-cases and trims raw; an empty result is absent.
func Email(raw string) (string, bool) {
	e := strings.ToLower(strings.TrimSpace(raw))
	if e == "" {
		return "", false
	}
	return e, true
}

// PhoneOrEmpty is Phone without the ok flag.
func PhoneOrEmpty(raw string) string {
	p, _ := Phone(raw)
	return p
}

// EmailOrEmpty is Email without the ok flag.
func EmailOrEmpty(raw string) string {
	e, _ := Email(raw)
	return e
}

// Name folds raw for comparison: accents are stripped (NFKD, combining
// marks removed), whitespace collapsed and the result upper-cased.
func Name(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, raw)
	if err != nil {
		folded = raw
	}
	folded = multiSpaceRe.ReplaceAllString(folded, " ")
	return strings.ToUpper(folded)
}
