package redact

import "strings"

// Category identifies one class of personal data masked by the engine.
type Category string

const (
	CategoryFirstName     Category = "first_name"
	CategoryLastName      Category = "last_name"
	CategoryEmail         Category = "email"
	CategoryPhone         Category = "phone"
	CategoryAddress       Category = "address"
	CategoryPostalCode    Category = "postal_code"
	CategoryCity          Category = "city"
	CategoryBirthDate     Category = "birth_date"
	CategoryDate          Category = "date"
	CategoryAge           Category = "age"
	CategoryNationalID    Category = "national_id"
	CategoryDriverLicense Category = "driver_license"
)

// MaskToken is the literal placeholder substituted for a detected span.
//
// Tokens contain no digits and every word inside them is joined by an
// underscore, so neither the digit rules nor a whole-word override can
// match inside an already inserted token.
type MaskToken string

const (
	TokenFirstName     MaskToken = "[PRÉNOM_MASQUÉ]"
	TokenLastName      MaskToken = "[NOM_MASQUÉ]"
	TokenEmail         MaskToken = "[EMAIL_MASQUÉ]"
	TokenPhone         MaskToken = "[TÉLÉPHONE_MASQUÉ]"
	TokenAddress       MaskToken = "[ADRESSE_MASQUÉE]"
	TokenPostalCode    MaskToken = "[CODE_POSTAL_MASQUÉ]"
	TokenCity          MaskToken = "[VILLE_MASQUÉE]"
	TokenBirthDate     MaskToken = "[DATE_NAISSANCE_MASQUÉE]"
	TokenDate          MaskToken = "[DATE_MASQUÉE]"
	TokenAge           MaskToken = "[ÂGE_MASQUÉ]"
	TokenNationalID    MaskToken = "[NUMÉRO_SÉCU_MASQUÉ]"
	TokenDriverLicense MaskToken = "[PERMIS_MASQUÉ]"
)

// Categories lists every category in report order.
var Categories = []Category{
	CategoryFirstName,
	CategoryLastName,
	CategoryEmail,
	CategoryPhone,
	CategoryAddress,
	CategoryPostalCode,
	CategoryCity,
	CategoryBirthDate,
	CategoryDate,
	CategoryAge,
	CategoryNationalID,
	CategoryDriverLicense,
}

var tokens = map[Category]MaskToken{
	CategoryFirstName:     TokenFirstName,
	CategoryLastName:      TokenLastName,
	CategoryEmail:         TokenEmail,
	CategoryPhone:         TokenPhone,
	CategoryAddress:       TokenAddress,
	CategoryPostalCode:    TokenPostalCode,
	CategoryCity:          TokenCity,
	CategoryBirthDate:     TokenBirthDate,
	CategoryDate:          TokenDate,
	CategoryAge:           TokenAge,
	CategoryNationalID:    TokenNationalID,
	CategoryDriverLicense: TokenDriverLicense,
}

// Token returns the placeholder used for the category, or "" for an unknown category.
func (c Category) Token() MaskToken {
	return tokens[c]
}

// Tokens returns every mask token in report order.
func Tokens() []MaskToken {
	out := make([]MaskToken, 0, len(Categories))
	for _, c := range Categories {
		out = append(out, tokens[c])
	}
	return out
}

// CountOccurrences returns the number of non-overlapping literal occurrences
// of token in redactedText.
func CountOccurrences(redactedText string, token MaskToken) int {
	if token == "" {
		return 0
	}
	return strings.Count(redactedText, string(token))
}

// Statistics counts every mask token in redactedText, keyed by category.
func Statistics(redactedText string) map[Category]int {
	stats := make(map[Category]int, len(Categories))
	for _, c := range Categories {
		stats[c] = CountOccurrences(redactedText, tokens[c])
	}
	return stats
}
