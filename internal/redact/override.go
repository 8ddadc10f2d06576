package redact

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/dlclark/regexp2"
)

// Override boundaries. A name touching a word character is not a whole-word
// occurrence. Neither is a name inside an email address, whether in the domain
// ("x@dupont.fr") or the local part ("jean.dupont@mail.com"): the email rule
// masks the whole address later. Dots elsewhere ("linkedin.com/in/jean.dupont",
// "J.Jean") are ordinary boundaries.
const (
	overrideBefore = `(?<!\w)(?<!@[\w.-]*)`
	overrideAfter  = `(?!\w)(?![\w.%+-]*@)`
)

// ApplyOverride masks every whole-word, case-insensitive occurrence of the
// supplied first name, then of the supplied last name.
func ApplyOverride(document string, names OverrideNames) (string, error) {
	out, _, err := applyOverride(document, names, 0)
	return out, err
}

func applyOverride(document string, names OverrideNames, timeout time.Duration) (string, []Finding, error) {
	passes := []struct {
		rule     string
		value    string
		category Category
	}{
		{"override_first_name", names.FirstName, CategoryFirstName},
		{"override_last_name", names.LastName, CategoryLastName},
	}

	var findings []Finding
	for _, pass := range passes {
		if isBlank(pass.value) {
			continue
		}

		re, err := compileOverride(pass.value, timeout)
		if err != nil {
			return "", nil, fmt.Errorf("failed to compile %s: %w", pass.rule, err)
		}

		rule := Rule{
			Name:        pass.rule,
			Pattern:     re,
			Replacement: string(pass.category.Token()),
			Emits:       []Category{pass.category},
		}
		out, n, err := applyRule(document, rule)
		if err != nil {
			return "", nil, err
		}
		if n > 0 {
			findings = append(findings, Finding{Rule: rule.Name, Categories: rule.Emits, Count: n})
		}
		document = out
	}

	return document, findings, nil
}

// compileOverride builds a literal pattern from caller input. Every part is
// escaped; internal whitespace runs match any whitespace run.
func compileOverride(value string, timeout time.Duration) (*regexp2.Regexp, error) {
	parts := strings.Fields(value)
	for i, part := range parts {
		parts[i] = regexp2.Escape(part)
	}

	re, err := regexp2.Compile(overrideBefore+strings.Join(parts, `\s+`)+overrideAfter, regexp2.IgnoreCase)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		re.MatchTimeout = timeout
	}
	return re, nil
}

func isBlank(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}
