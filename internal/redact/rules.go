package redact

import (
	"time"

	"github.com/dlclark/regexp2"
)

// Letter classes covering the extended Latin alphabet used in French names.
const (
	upper = `A-ZÀ-ÖØ-ÞŒŸ`
	lower = `a-zß-öø-ÿœ`

	// capWord is a capitalized word, optionally hyphenated: "Jean", "Jean-Pierre", "O'Neil".
	capWord = `[` + upper + `][` + lower + `]+(?:[-'’][` + upper + `][` + lower + `]+)?`
	// capsWord is an all-caps word of at least two letters: "DUPONT", "LE-GALL".
	capsWord = `[` + upper + `]{2,}(?:[-'’][` + upper + `]{2,})*`
	// cityWords is a capitalized phrase following a postal code: "Paris", "Saint-Étienne", "Aix en Provence".
	cityWords = `[` + upper + `][\w'’-]*(?:[ \t]+(?!(?i:cedex)\b)[` + upper + `][\w'’-]*)*`
	cedex     = `(?:[ \t]+(?i:cedex)(?:[ \t]+\d{1,2})?)?`

	honorifics = `Monsieur|Madame|Mademoiselle|Mlle\.?|Mme\.?|Mr\.?|M\.|Dr\.?|Pr\.?|Me`

	// lineHeadStop lists line openings that look like a name pair but are headings or street lines.
	lineHeadStop = `(?i:(?:exp[ée]riences?|formations?|comp[ée]tences|langues|certifications?|projets?|centres?|int[ée]r[êe]ts|loisirs|profil|contact|coordonn[ée]es|curriculum|permis|email|t[ée]l[ée]phone|adresse|date|skills|education|languages|interests|hobbies|projects|rue|avenue|boulevard|all[ée]e|impasse|chemin|quai|place|route|square|r[ée]sidence)\b)`

	streetTypes      = `(?:(?:rue|avenue|boulevard|bd|blvd|all[ée]e|impasse|place|chemin|route|quai|cours|square|passage|voie|r[ée]sidence|lotissement|hameau|faubourg|esplanade|promenade|sentier)\b|av\.)`
	streetTypesFirst = `(?i:(?:rue|avenue|boulevard|bd|all[ée]e|impasse|chemin|quai|square|faubourg|esplanade|promenade|lotissement|hameau|r[ée]sidence)\b|av\.)`
	particle         = `(?:de[ \t]+la[ \t]+|de[ \t]+l['’]|d['’]|l['’]|(?:du|des|de|la|le|les)[ \t]+)`

	frenchMonths = `janvier|f[ée]vrier|mars|avril|mai|juin|juillet|ao[uû]t|septembre|octobre|novembre|d[ée]cembre`
)

// ruleSpec is the uncompiled form of a Rule.
type ruleSpec struct {
	name          string
	description   string
	pattern       string
	caseSensitive bool
	multiline     bool
	replacement   string
	emits         []Category
	dependsOn     []string
}

// ruleSpecs is the canonical rule order. Later stages see the text as rewritten
// by every earlier stage, so the order is part of the output contract.
var ruleSpecs = []ruleSpec{
	// 1. Names. The manual override pass runs before these three.
	{
		name:          "honorific_name",
		description:   "Honorific followed by a capitalized given name and a family name; the honorific is kept",
		pattern:       `\b(` + honorifics + `)[ \t]+` + capWord + `[ \t]+(?:` + capsWord + `(?:[ \t]+` + capsWord + `)*|` + capWord + `)\b`,
		caseSensitive: true,
		replacement:   "${1} " + string(TokenFirstName) + " " + string(TokenLastName),
		emits:         []Category{CategoryFirstName, CategoryLastName},
	},
	// 2. Family-name-first convention. Also hits headings such as "DIRECTEUR Commercial".
	{
		name:          "family_first_name",
		description:   "All-caps family name followed by a capitalized given name",
		pattern:       `\b` + capsWord + `[ \t]+` + capWord + `\b`,
		caseSensitive: true,
		replacement:   string(TokenLastName) + " " + string(TokenFirstName),
		emits:         []Category{CategoryLastName, CategoryFirstName},
	},
	// 3.
	{
		name:          "line_initial_name",
		description:   "Capitalized given name and family name opening a line",
		pattern:       `^([ \t]*)(?!` + lineHeadStop + `)` + capWord + `[ \t]+` + capWord + `\b`,
		caseSensitive: true,
		multiline:     true,
		replacement:   "${1}" + string(TokenFirstName) + " " + string(TokenLastName),
		emits:         []Category{CategoryFirstName, CategoryLastName},
	},
	// 4.
	{
		name:        "email",
		description: "Email address with a top-level label of two letters or more",
		pattern:     `\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`,
		replacement: string(TokenEmail),
		emits:       []Category{CategoryEmail},
	},
	// 5. Phones, French prefixes first.
	{
		name:          "phone_fr",
		description:   "French phone number with 0, +33 or 0033 prefix",
		pattern:       `(?<![\w+])(?:(?:\+|00)33[ \t.-]?(?:\(0\)[ \t.-]?)?|0)[1-9](?:[ \t.-]?\d{2}){4}(?!\d)`,
		caseSensitive: true,
		replacement:   string(TokenPhone),
		emits:         []Category{CategoryPhone},
	},
	{
		name:          "phone_generic",
		description:   "Five groups of two digits with optional separators",
		pattern:       `\b\d{2}(?:[ \t.-]?\d{2}){4}\b`,
		caseSensitive: true,
		replacement:   string(TokenPhone),
		emits:         []Category{CategoryPhone},
	},
	// 6. Addresses consume their postal code and city before stage 7 sees them.
	{
		name:        "address_numbered",
		description: "Numbered street address, with optional postal code, city and CEDEX",
		pattern: `\b\d{1,5}(?:[ \t]*(?:bis|ter|quater)\b)?,?[ \t]+` + streetTypes + `[^,;\n]*?` +
			`(?:,?[ \t]*\d{5}(?:[ \t]+(?-i:` + cityWords + `))?` + cedex + `|(?=[,;\n]|$))`,
		replacement: string(TokenAddress),
		emits:       []Category{CategoryAddress},
	},
	{
		name:        "address_street_first",
		description: "Street type followed by a capitalized street name, without a leading number",
		pattern: `\b` + streetTypesFirst + `[ \t]+` + particle + `?[` + upper + `][\w'’-]*` +
			`(?:[ \t]+` + particle + `?[` + upper + `][\w'’-]*)*` +
			`(?:,?[ \t]*\d{5}(?:[ \t]+` + cityWords + `)?` + cedex + `)?`,
		caseSensitive: true,
		replacement:   string(TokenAddress),
		emits:         []Category{CategoryAddress},
	},
	// 7.
	{
		name:          "postal_code",
		description:   "Standalone five-digit sequence",
		pattern:       `\b\d{5}\b`,
		caseSensitive: true,
		replacement:   string(TokenPostalCode),
		emits:         []Category{CategoryPostalCode},
	},
	// 8. Keys off the literal postal-code token inserted by stage 7.
	{
		name:          "city",
		description:   "Capitalized word or phrase directly after a masked postal code",
		pattern:       `(` + regexp2.Escape(string(TokenPostalCode)) + `)[ \t]+` + cityWords + cedex,
		caseSensitive: true,
		replacement:   "${1} " + string(TokenCity),
		emits:         []Category{CategoryCity},
		dependsOn:     []string{"postal_code"},
	},
	// 9. Must precede the generic date stage.
	{
		name:        "birth_date",
		description: "Birth keyword followed by a numeric or written date",
		pattern: `\b(?:date[ \t]+de[ \t]+naissance|n[ée]e?|naissance|date[ \t]+of[ \t]+birth|birth(?:[ \t]*date)?|born)` +
			`\s*(?:le|on)?\s*:?\s*(?:\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}|\d{1,2}(?:er)?[ \t]+(?:` + frenchMonths + `)[ \t]+\d{4})\b`,
		replacement: string(TokenBirthDate),
		emits:       []Category{CategoryBirthDate},
	},
	// 10.
	{
		name:          "date",
		description:   "Day/month/year date with a year starting with 19 or 20",
		pattern:       `\b\d{1,2}[/.-]\d{1,2}[/.-](?:19|20)\d{2}\b`,
		caseSensitive: true,
		replacement:   string(TokenDate),
		emits:         []Category{CategoryDate},
	},
	// 11. "10 ans d'expérience" is masked too.
	{
		name:        "age",
		description: "Two-digit number followed by \"ans\"",
		pattern:     `\b\d{2}\s*ans\b`,
		replacement: string(TokenAge),
		emits:       []Category{CategoryAge},
	},
	// 12.
	{
		name:          "national_id",
		description:   "French social security number (NIR), spaced or compact, key optional",
		pattern:       `\b[12][ \t]?\d{2}[ \t]?\d{2}[ \t]?(?:\d{2}|2[ABab])[ \t]?\d{3}[ \t]?\d{3}(?:[ \t]?\d{2})?\b`,
		caseSensitive: true,
		replacement:   string(TokenNationalID),
		emits:         []Category{CategoryNationalID},
	},
	// 13. The code must contain a digit so prose after "permis" survives.
	{
		name:        "driver_license",
		description: "Driver's license keyword followed by an alphanumeric code of ten characters or more",
		pattern: `\b(?:permis(?:[ \t]+de[ \t]+conduire)?|driver['’]?s?[ \t]+licen[cs]e|driving[ \t]+licen[cs]e)` +
			`(?:[ \t]+[a-e]\b)?[ \t]*,?[ \t]*(?:(?:n°|no\.?|num[ée]ro|number|#)[ \t]*)?:?[ \t]*(?=[a-z]*\d)[a-z0-9]{10,}\b`,
		replacement: string(TokenDriverLicense),
		emits:       []Category{CategoryDriverLicense},
	},
}

// DefaultRules compiles the canonical rule list. A positive timeout bounds each
// rule evaluation; zero leaves evaluation unbounded.
func DefaultRules(timeout time.Duration) []Rule {
	rules := make([]Rule, 0, len(ruleSpecs))
	for _, spec := range ruleSpecs {
		rules = append(rules, spec.compile(timeout))
	}
	return rules
}

// RuleNames returns the canonical rule names in application order.
func RuleNames() []string {
	names := make([]string, 0, len(ruleSpecs))
	for _, spec := range ruleSpecs {
		names = append(names, spec.name)
	}
	return names
}

func (s ruleSpec) compile(timeout time.Duration) Rule {
	opts := regexp2.None
	if !s.caseSensitive {
		opts |= regexp2.IgnoreCase
	}
	if s.multiline {
		opts |= regexp2.Multiline
	}

	re := regexp2.MustCompile(s.pattern, opts)
	if timeout > 0 {
		re.MatchTimeout = timeout
	}

	return Rule{
		Name:          s.name,
		Description:   s.description,
		Pattern:       re,
		CaseSensitive: s.caseSensitive,
		Replacement:   s.replacement,
		Emits:         s.emits,
		DependsOn:     s.dependsOn,
	}
}
