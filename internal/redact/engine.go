package redact

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/dlclark/regexp2"
	"github.com/raaihank/cv-anonymizer/internal/config"
	"github.com/raaihank/cv-anonymizer/internal/logger"
	"go.uber.org/zap"
)

// ErrDocumentTooLarge is returned when a document exceeds redaction.max_document_bytes.
var ErrDocumentTooLarge = errors.New("document exceeds redaction size limit")

// Engine applies the override pass and the enabled rules in canonical order.
// It holds only compiled patterns and is safe for concurrent use.
type Engine struct {
	rules   []Rule
	enabled map[string]bool
	logger  *logger.Logger
	config  config.RedactionConfig
}

// New creates a redaction engine from configuration
func New(cfg config.RedactionConfig, log *logger.Logger) (*Engine, error) {
	if log == nil {
		log = logger.NewNop()
	}

	engine := &Engine{
		rules:   DefaultRules(cfg.MatchTimeout),
		enabled: make(map[string]bool),
		logger:  log.WithComponent("redact"),
		config:  cfg,
	}

	if err := engine.configureDetectors(cfg.Detectors); err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}

	engine.logger.Info("Redaction engine initialized",
		zap.Int("total_rules", len(engine.rules)),
		zap.Int("enabled_rules", engine.countEnabledRules()),
		zap.Duration("match_timeout", cfg.MatchTimeout),
	)

	return engine, nil
}

// configureDetectors enables rules by name ("all" enables every rule) and
// rejects a selection that disables a stage another enabled stage keys off.
func (e *Engine) configureDetectors(detectors []string) error {
	for _, rule := range e.rules {
		e.enabled[rule.Name] = false
	}

	for _, detector := range detectors {
		if detector == "all" {
			for _, rule := range e.rules {
				e.enabled[rule.Name] = true
			}
			continue
		}

		if _, ok := e.enabled[detector]; !ok {
			return fmt.Errorf("unknown detector: %s", detector)
		}
		e.enabled[detector] = true
	}

	for _, rule := range e.rules {
		if !e.enabled[rule.Name] {
			continue
		}
		for _, dep := range rule.DependsOn {
			if !e.enabled[dep] {
				return fmt.Errorf("detector %s requires %s", rule.Name, dep)
			}
		}
	}

	return nil
}

// Redact runs the override pass and then every enabled rule. On a match
// timeout the whole call fails and no partially redacted text is returned.
func (e *Engine) Redact(text string, names OverrideNames) (*Result, error) {
	if e.config.MaxDocumentBytes > 0 && len(text) > e.config.MaxDocumentBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrDocumentTooLarge, len(text), e.config.MaxDocumentBytes)
	}

	redacted, findings, err := applyOverride(text, names, e.config.MatchTimeout)
	if err != nil {
		return nil, fmt.Errorf("override pass failed: %w", err)
	}

	for _, rule := range e.rules {
		if !e.enabled[rule.Name] {
			continue
		}

		out, n, err := applyRule(redacted, rule)
		if err != nil {
			e.logger.Error("Rule evaluation failed", zap.String("rule", rule.Name), zap.Error(err))
			return nil, fmt.Errorf("rule %s failed: %w", rule.Name, err)
		}
		if n > 0 {
			findings = append(findings, Finding{Rule: rule.Name, Categories: rule.Emits, Count: n})
			e.logger.Debug("PII masked", zap.String("rule", rule.Name), zap.Int("count", n))
		}
		redacted = out
	}

	if findings == nil {
		findings = []Finding{}
	}

	return &Result{
		Redacted:   redacted,
		Findings:   findings,
		Statistics: Statistics(redacted),
		Original:   text,
	}, nil
}

// Rules describes every rule in application order.
func (e *Engine) Rules() []RuleInfo {
	infos := make([]RuleInfo, 0, len(e.rules))
	for i, rule := range e.rules {
		infos = append(infos, RuleInfo{
			Order:         i + 1,
			Name:          rule.Name,
			Description:   rule.Description,
			CaseSensitive: rule.CaseSensitive,
			Emits:         rule.Emits,
			DependsOn:     rule.DependsOn,
			Enabled:       e.enabled[rule.Name],
		})
	}
	return infos
}

// GetEnabledRules returns enabled rule names in application order
func (e *Engine) GetEnabledRules() []string {
	var names []string
	for _, rule := range e.rules {
		if e.enabled[rule.Name] {
			names = append(names, rule.Name)
		}
	}
	return names
}

func (e *Engine) countEnabledRules() int {
	count := 0
	for _, enabled := range e.enabled {
		if enabled {
			count++
		}
	}
	return count
}

// Apply runs rules over document in order, each rule seeing the previous rule's output.
func Apply(document string, rules []Rule) (string, error) {
	for _, rule := range rules {
		out, _, err := applyRule(document, rule)
		if err != nil {
			return "", fmt.Errorf("rule %s failed: %w", rule.Name, err)
		}
		document = out
	}
	return document, nil
}

// applyRule replaces every leftmost, non-overlapping match and returns the match count.
func applyRule(document string, rule Rule) (string, int, error) {
	count := 0
	out, err := rule.Pattern.ReplaceFunc(document, func(m regexp2.Match) string {
		count++
		return expand(rule.Replacement, &m)
	}, -1, -1)
	if err != nil {
		return "", 0, err
	}
	return out, count, nil
}

// expand substitutes ${n} references in tmpl with the groups of m.
func expand(tmpl string, m *regexp2.Match) string {
	if !strings.Contains(tmpl, "${") {
		return tmpl
	}

	var b strings.Builder
	for {
		start := strings.Index(tmpl, "${")
		if start < 0 {
			b.WriteString(tmpl)
			return b.String()
		}
		end := strings.IndexByte(tmpl[start:], '}')
		if end < 0 {
			b.WriteString(tmpl)
			return b.String()
		}
		end += start

		b.WriteString(tmpl[:start])
		if n, err := strconv.Atoi(tmpl[start+2 : end]); err == nil {
			if g := m.GroupByNumber(n); g != nil {
				b.WriteString(g.String())
			}
		} else {
			b.WriteString(tmpl[start : end+1])
		}
		tmpl = tmpl[end+1:]
	}
}

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
)

// Redact masks rawText with every rule enabled and no match timeout. Blank
// override names are ignored. It is a pure function of its inputs.
func Redact(rawText, overrideFirstName, overrideLastName string) string {
	defaultOnce.Do(func() {
		engine, err := New(config.RedactionConfig{Detectors: []string{"all"}}, logger.NewNop())
		if err != nil {
			panic(err)
		}
		defaultEngine = engine
	})

	result, err := defaultEngine.Redact(rawText, OverrideNames{FirstName: overrideFirstName, LastName: overrideLastName})
	if err != nil {
		// unreachable: without a match timeout no rule can fail
		panic(err)
	}
	return result.Redacted
}
