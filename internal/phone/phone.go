// Package phone normalizes Singapore phone numbers into the variant sets used
// for duplicate matching.
package phone

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

// CountryCode is the Singapore dialing prefix without the plus sign.
const CountryCode = "65"

// sgPattern matches an 8-digit mobile (8x, 9x) or landline (6x) number with
// an optional 65 / +65 prefix.
var sgPattern = regexp.MustCompile(`^(\+?65)?[689]\d{7}$`)

// separators are stripped before validation.
var separators = strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "", "\u00a0", "")

// VariantSet holds every representation of one physical number, canonical
// local form first. Order is stable and entries are unique.
type VariantSet []string

// Contains reports whether v is one of the variants.
func (s VariantSet) Contains(v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Normalize expands raw into the variants used to match stored records:
// the 8-digit local number, the 65-prefixed and +65-prefixed forms, plus the
// untouched input and its digits. Input that is not a Singapore number is
// passed through; Normalize never fails.
func Normalize(raw string) VariantSet {
	var out VariantSet
	add := func(v string) {
		if v != "" && !out.Contains(v) {
			out = append(out, v)
		}
	}

	digits := Digits(raw)
	if local := localFromDigits(digits); local != "" {
		add(local)
		add(CountryCode + local)
		add("+" + CountryCode + local)
	}

	add(raw)
	add(digits)
	return out
}

// Digits returns only the ASCII digits of raw. Full-width digits are folded
// first so numbers pasted from East Asian keyboards still match.
func Digits(raw string) string {
	folded := width.Fold.String(raw)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Clean strips everything except digits and a single leading plus sign.
func Clean(raw string) string {
	folded := strings.TrimSpace(width.Fold.String(raw))
	d := Digits(folded)
	if strings.HasPrefix(folded, "+") && d != "" {
		return "+" + d
	}
	return d
}

// Local returns the canonical 8-digit local number, or "" when raw is not a
// recognisable Singapore number.
func Local(raw string) string {
	return localFromDigits(Digits(raw))
}

// IsValid reports whether raw is a Singapore mobile or landline number.
func IsValid(raw string) bool {
	s := separators.Replace(strings.TrimSpace(width.Fold.String(raw)))
	return sgPattern.MatchString(s)
}

func localFromDigits(digits string) string {
	switch {
	case len(digits) == 8 && strings.ContainsRune("689", rune(digits[0])):
		return digits
	case len(digits) == 10 && strings.HasPrefix(digits, CountryCode) && strings.ContainsRune("689", rune(digits[2])):
		return digits[2:]
	default:
		return ""
	}
}
