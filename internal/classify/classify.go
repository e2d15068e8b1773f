// ABOUTME: Two-stage keyword classifier for inbound notes
// ABOUTME: Stage one picks the target integration, stage two the sub-command

package classify

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Target identifies which integration family a note is aimed at.
type Target int

const (
	TargetNone Target = iota
	TargetSlack
	TargetTrello
)

// String returns the lowercase label used in rules and logs.
func (t Target) String() string {
	switch t {
	case TargetSlack:
		return "slack"
	case TargetTrello:
		return "trello"
	default:
		return "none"
	}
}

// Result is the outcome of classifying one note. Produced fresh per
// message, never persisted.
type Result struct {
	Target     Target
	SubCommand string
}

// Classifier decides the target integration and sub-command for a note.
type Classifier interface {
	Classify(text string) Result
}

//go:embed rules.toml
var defaultRules []byte

// targetRule maps keywords to an integration family.
type targetRule struct {
	Name     string   `toml:"name"`
	Keywords []string `toml:"keywords"`
}

// commandRule maps phrases to a sub-command label.
type commandRule struct {
	Name     string   `toml:"name"`
	Keywords []string `toml:"keywords"`
}

// Ruleset holds the keyword rules for both classification stages.
// Rules are matched in declaration order; the first hit wins, which keeps
// classification deterministic for identical input.
type Ruleset struct {
	Targets  []targetRule  `toml:"target"`
	Commands []commandRule `toml:"command"`
}

// Matcher is the rules-driven Classifier implementation.
type Matcher struct {
	rules Ruleset
}

// NewMatcher builds a matcher from the embedded default ruleset.
func NewMatcher() *Matcher {
	m, err := newMatcherFromBytes(defaultRules)
	if err != nil {
		// The embedded ruleset is validated by tests; failing to parse it
		// is a build defect, not a runtime condition.
		panic(fmt.Sprintf("classify: embedded ruleset invalid: %v", err))
	}
	return m
}

// NewMatcherFromFile builds a matcher from a TOML ruleset on disk.
func NewMatcherFromFile(path string) (*Matcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ruleset: %w", err)
	}
	m, err := newMatcherFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parsing ruleset %s: %w", path, err)
	}
	return m, nil
}

func newMatcherFromBytes(data []byte) (*Matcher, error) {
	var rules Ruleset
	if err := toml.Unmarshal(data, &rules); err != nil {
		return nil, err
	}
	if len(rules.Targets) == 0 {
		return nil, fmt.Errorf("ruleset declares no targets")
	}
	for _, t := range rules.Targets {
		if targetFromName(t.Name) == TargetNone {
			return nil, fmt.Errorf("unknown target %q in ruleset", t.Name)
		}
	}
	return &Matcher{rules: rules}, nil
}

// Classify runs both stages over the note text. Pure and deterministic:
// the same text always yields the same result. Ambiguity resolves to
// TargetNone; unmatched sub-commands resolve to the empty string so the
// dispatcher can fall back safely.
func (m *Matcher) Classify(text string) Result {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Result{Target: TargetNone}
	}

	res := Result{Target: m.classifyTarget(normalized)}
	if res.Target == TargetNone {
		return res
	}
	res.SubCommand = m.classifySubCommand(normalized)
	return res
}

func (m *Matcher) classifyTarget(normalized string) Target {
	for _, rule := range m.rules.Targets {
		for _, kw := range rule.Keywords {
			if strings.Contains(normalized, strings.ToLower(kw)) {
				return targetFromName(rule.Name)
			}
		}
	}
	return TargetNone
}

func (m *Matcher) classifySubCommand(normalized string) string {
	for _, rule := range m.rules.Commands {
		for _, kw := range rule.Keywords {
			if strings.Contains(normalized, strings.ToLower(kw)) {
				return rule.Name
			}
		}
	}
	return ""
}

func targetFromName(name string) Target {
	switch strings.ToLower(name) {
	case "slack":
		return TargetSlack
	case "trello":
		return TargetTrello
	default:
		return TargetNone
	}
}

var _ Classifier = (*Matcher)(nil)
