package geo

import (
	"regexp"
	"strings"
)

var (
	laPattern   = regexp.MustCompile(`^[EWSN]\d{8}$`)
	lsoaPattern = regexp.MustCompile(`^([ESW]01\d{6}|N00\d{6})$`)
	msoaPattern = regexp.MustCompile(`^([ESW]02\d{6}|N00\d{6})$`)
	caPattern   = regexp.MustCompile(`^E47\d{6}$`)

	// Compact (no space) form. Outward code: area letters with the restricted first and
	// second slots, then district. Inward code: sector digit plus two unit letters
	// excluding C, I, K, M, O and V.
	postcodePattern = regexp.MustCompile(
		`^(GIR0AA|[A-PR-UWYZ](\d[A-HJKPSTUW]?|\d\d|[A-HK-Y]\d([ABEHMNPRVWXY]|\d)?)\d[ABD-HJLNP-UW-Z]{2})$`)
)

// ValidCode reports whether code matches the official pattern for level.
// Postcodes are normalized first.
func ValidCode(level Level, code string) bool {
	switch level {
	case Postcode:
		return postcodePattern.MatchString(compactPostcode(code))
	case LSOA:
		return lsoaPattern.MatchString(code)
	case MSOA:
		return msoaPattern.MatchString(code)
	case LA:
		return laPattern.MatchString(code)
	case CA:
		return caPattern.MatchString(code)
	}
	return false
}

func compactPostcode(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

// NormalizePostcode returns the canonical "OUT IN" form, upper-cased with a single
// space before the inward code. Inputs too short to split come back compacted.
func NormalizePostcode(s string) string {
	c := compactPostcode(s)
	if len(c) < 5 {
		return c
	}
	return c[:len(c)-3] + " " + c[len(c)-3:]
}

// NormalizeCode applies the per-level canonical form used for lookup keys.
func NormalizeCode(level Level, code string) string {
	if level == Postcode {
		return NormalizePostcode(code)
	}
	return strings.TrimSpace(code)
}
