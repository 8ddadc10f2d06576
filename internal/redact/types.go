package redact

import "github.com/dlclark/regexp2"

// Rule is one ordered detection stage.
type Rule struct {
	Name          string
	Description   string
	Pattern       *regexp2.Regexp
	CaseSensitive bool
	// Replacement is a fixed token or a template; ${n} inserts capture group n.
	Replacement string
	// Emits lists the categories whose tokens the replacement inserts.
	Emits []Category
	// DependsOn names earlier rules whose inserted tokens this rule matches on.
	DependsOn []string
}

// OverrideNames carries caller-known names that are masked before any heuristic rule runs.
// Both values are matched literally; empty or blank values are ignored.
type OverrideNames struct {
	FirstName string `json:"first_name,omitempty" validate:"max=200"`
	LastName  string `json:"last_name,omitempty" validate:"max=200"`
}

// Empty reports whether neither name would be applied.
func (o OverrideNames) Empty() bool {
	return isBlank(o.FirstName) && isBlank(o.LastName)
}

// Finding reports how many spans one rule masked.
type Finding struct {
	Rule       string     `json:"rule"`
	Categories []Category `json:"categories"`
	Count      int        `json:"count"`
}

// Result contains the outcome of one redaction run.
type Result struct {
	Redacted   string           `json:"redacted"`
	Findings   []Finding        `json:"findings"`
	Statistics map[Category]int `json:"statistics"`
	Original   string           `json:"-"` // never serialized
}

// RuleInfo describes a rule without its compiled pattern.
type RuleInfo struct {
	Order         int        `json:"order"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	CaseSensitive bool       `json:"case_sensitive"`
	Emits         []Category `json:"emits"`
	DependsOn     []string   `json:"depends_on,omitempty"`
	Enabled       bool       `json:"enabled"`
}
