package resolver

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// NormalizeEmail canonicalizes an email for use as a natural key: legacy rows
// carry trailing dashes, stray whitespace and mixed case.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	email = strings.TrimRight(email, "-")
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}
	// Casers are stateful, one per call
	return cases.Lower(language.Und).String(norm.NFKC.String(email))
}

// NormalizeChassis canonicalizes a chassis number: NFKC, trimmed, upper case
func NormalizeChassis(chassis string) string {
	chassis = strings.TrimSpace(norm.NFKC.String(chassis))
	if chassis == "" {
		return ""
	}
	return cases.Upper(language.Und).String(chassis)
}

// SplitBrandModel splits a free-text vehicle type on the first space. A single
// token is used as both brand and model.
func SplitBrandModel(vehicleType string) (brand, model string) {
	vehicleType = strings.TrimSpace(vehicleType)
	brand, model, found := strings.Cut(vehicleType, " ")
	model = strings.TrimSpace(model)
	if !found || model == "" {
		return brand, brand
	}
	return brand, model
}
