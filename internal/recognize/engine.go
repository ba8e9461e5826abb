package recognize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/straja-ai/piiscan/internal/ner"
)

// ErrNoExtractor is returned for model strategies when no statistical
// extractor is configured.
var ErrNoExtractor = errors.New("statistical extractor not configured")

// Engine runs a strategy against a text. Implementations are stateless and
// safe for concurrent use; results are deterministic for a fixed
// (text, strategy) pair.
type Engine interface {
	Find(ctx context.Context, text string, s Strategy) ([]Match, error)
}

type engine struct {
	extractor ner.Extractor
}

// New builds the engine once at startup. extractor may be nil, in which case
// model strategies fail with ErrNoExtractor.
func New(extractor ner.Extractor) Engine {
	return &engine{extractor: extractor}
}

func (e *engine) Find(ctx context.Context, text string, s Strategy) ([]Match, error) {
	if s == nil {
		return nil, errors.New("nil strategy")
	}
	switch st := s.(type) {
	case *DenyList:
		return st.find(text), nil
	case *Pattern:
		return st.find(text), nil
	case *Model:
		return e.findModel(ctx, text, st)
	default:
		return nil, fmt.Errorf("unsupported strategy kind %s", s.Kind())
	}
}

// find returns every whole-word, non-overlapping term occurrence in text
// order.
func (d *DenyList) find(text string) []Match {
	var out []Match
	pos := 0
	for pos < len(text) {
		loc := d.re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if end == start {
			break
		}
		if !wordBoundaryAt(text, start, end) {
			var ok bool
			if end, ok = d.shorterAt(text, start, end); !ok {
				_, size := utf8.DecodeRuneInString(text[start:])
				pos = start + size
				continue
			}
		}
		out = append(out, Match{Label: d.label, Text: text[start:end], Start: start, End: end, Score: 1})
		pos = end
	}
	return out
}

// shorterAt looks for the longest term shorter than text[start:end] that
// also occurs at start and stands as a whole word. "New York" still counts
// in "New York Citys" when "New York City" is glued to a suffix.
func (d *DenyList) shorterAt(text string, start, end int) (int, bool) {
	for _, term := range d.terms {
		n := len(term)
		if n >= end-start || start+n > len(text) {
			continue
		}
		candidate := text[start : start+n]
		if d.caseSensitive {
			if candidate != term {
				continue
			}
		} else if !strings.EqualFold(candidate, term) {
			continue
		}
		if wordBoundaryAt(text, start, start+n) {
			return start + n, true
		}
	}
	return 0, false
}

// wordBoundaryAt reports whether text[start:end] is not glued to adjacent
// word characters. Edges that are themselves non-word characters (a term
// ending in ".") need no boundary.
func wordBoundaryAt(text string, start, end int) bool {
	first, _ := utf8.DecodeRuneInString(text[start:end])
	if isWordRune(first) && start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(prev) {
			return false
		}
	}
	last, _ := utf8.DecodeLastRuneInString(text[start:end])
	if isWordRune(last) && end < len(text) {
		next, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(next) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (p *Pattern) find(text string) []Match {
	locs := p.re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	out := make([]Match, 0, len(locs))
	for _, loc := range locs {
		if loc[1] == loc[0] {
			continue
		}
		out = append(out, Match{Label: p.label, Text: text[loc[0]:loc[1]], Start: loc[0], End: loc[1], Score: p.score})
	}
	return out
}

// findModel keeps the entities whose normalized label equals the target and
// reports the surface text the extractor returned.
func (e *engine) findModel(ctx context.Context, text string, m *Model) ([]Match, error) {
	if e.extractor == nil {
		return nil, ErrNoExtractor
	}
	entities, err := e.extractor.Extract(ctx, text)
	if err != nil {
		return nil, err
	}
	var out []Match
	for _, ent := range entities {
		if !strings.EqualFold(ent.Label, m.target) {
			continue
		}
		surface := ent.Text
		if surface == "" && ent.Start >= 0 && ent.End <= len(text) && ent.Start < ent.End {
			surface = text[ent.Start:ent.End]
		}
		if surface == "" {
			continue
		}
		out = append(out, Match{Label: m.label, Text: surface, Start: ent.Start, End: ent.End, Score: float64(ent.Score)})
	}
	return out, nil
}
