// Package recognize executes recognition strategies (deny-lists, regular
// expressions and statistical models) against a text body.
package recognize

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Kind identifies a strategy variant.
type Kind int

const (
	KindDenyList Kind = iota + 1
	KindPattern
	KindModel
)

func (k Kind) String() string {
	switch k {
	case KindDenyList:
		return "deny_list"
	case KindPattern:
		return "pattern"
	case KindModel:
		return "model"
	default:
		return "unknown"
	}
}

// Strategy is one immutable recognition rule. Label is the engine-reported
// type attached to every match it produces.
type Strategy interface {
	Kind() Kind
	Label() string
}

// Match is one span found by a strategy.
type Match struct {
	Label string
	Text  string
	Start int // byte offset, -1 when the producer does not report offsets
	End   int
	Score float64
}

// DenyList matches any of a fixed set of literal terms as whole words.
type DenyList struct {
	label         string
	terms         []string
	caseSensitive bool
	re            *regexp.Regexp
}

// NewDenyList compiles terms into a single alternation. Terms are trimmed and
// de-duplicated; longer terms are tried first so "Type 2 diabetes" wins over
// "diabetes" at the same position.
func NewDenyList(label string, terms []string, caseSensitive bool) (*DenyList, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, errors.New("deny-list label is empty")
	}
	norm := normalizeTerms(terms, caseSensitive)
	if len(norm) == 0 {
		return nil, fmt.Errorf("deny-list %s has no terms", label)
	}

	quoted := make([]string, len(norm))
	for i, t := range norm {
		quoted[i] = regexp.QuoteMeta(t)
	}
	expr := "(?:" + strings.Join(quoted, "|") + ")"
	if !caseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile deny-list %s: %w", label, err)
	}
	return &DenyList{label: label, terms: norm, caseSensitive: caseSensitive, re: re}, nil
}

func (d *DenyList) Kind() Kind          { return KindDenyList }
func (d *DenyList) Label() string       { return d.label }
func (d *DenyList) CaseSensitive() bool { return d.caseSensitive }

// Terms returns a copy of the normalized term list.
func (d *DenyList) Terms() []string {
	out := make([]string, len(d.terms))
	copy(out, d.terms)
	return out
}

// normalizeTerms trims, drops blanks and duplicates, and orders by length
// descending so the regexp alternation prefers the longest term.
func normalizeTerms(terms []string, caseSensitive bool) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		trimmed := strings.Join(strings.Fields(t), " ")
		if trimmed == "" {
			continue
		}
		key := trimmed
		if !caseSensitive {
			key = strings.ToLower(trimmed)
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// Pattern is a regular expression with a fixed confidence score.
type Pattern struct {
	label string
	name  string
	re    *regexp.Regexp
	score float64
}

// NewPattern compiles expr. The score must lie in [0, 1].
func NewPattern(label, name, expr string, score float64) (*Pattern, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, errors.New("pattern label is empty")
	}
	if score < 0 || score > 1 {
		return nil, fmt.Errorf("pattern %s: score %v out of range [0,1]", label, score)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %s: %w", label, err)
	}
	if name == "" {
		name = label
	}
	return &Pattern{label: label, name: name, re: re, score: score}, nil
}

// MustPattern is NewPattern for static tables; it panics on error.
func MustPattern(label, name, expr string, score float64) *Pattern {
	p, err := NewPattern(label, name, expr, score)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pattern) Kind() Kind     { return KindPattern }
func (p *Pattern) Label() string  { return p.label }
func (p *Pattern) Name() string   { return p.name }
func (p *Pattern) Score() float64 { return p.score }
func (p *Pattern) Expr() string   { return p.re.String() }

// Model selects the entities a statistical extractor labels with Target.
type Model struct {
	label  string
	target string
}

// NewModel binds a model label filter. label defaults to target.
func NewModel(label, target string) (*Model, error) {
	target = strings.ToUpper(strings.TrimSpace(target))
	if target == "" {
		return nil, errors.New("model target label is empty")
	}
	label = strings.TrimSpace(label)
	if label == "" {
		label = target
	}
	return &Model{label: label, target: target}, nil
}

func (m *Model) Kind() Kind     { return KindModel }
func (m *Model) Label() string  { return m.label }
func (m *Model) Target() string { return m.target }
