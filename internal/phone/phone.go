// Package phone holds the canonical phone-number format check and region lookup.
package phone

import (
	"regexp"

	"github.com/nyaruka/phonenumbers"
)

// E.164-like: leading plus, no leading zero, 10 to 15 digits.
var canonical = regexp.MustCompile(`^\+[1-9]\d{9,14}$`)

// Valid reports whether phoneNumber is in the canonical form accepted as an identity.
func Valid(phoneNumber string) bool {
	return canonical.MatchString(phoneNumber)
}

// Region returns the ISO region for a canonical number, or "" when the
// numbering plan is unknown. It never decides validity; Valid does.
func Region(phoneNumber string) string {
	if !Valid(phoneNumber) {
		return ""
	}
	num, err := phonenumbers.Parse(phoneNumber, "")
	if err != nil {
		return ""
	}
	region := phonenumbers.GetRegionCodeForNumber(num)
	if region == "ZZ" {
		return ""
	}
	return region
}
