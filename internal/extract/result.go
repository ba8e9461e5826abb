package extract

import (
	"encoding/json"

	"github.com/straja-ai/piiscan/internal/recognize"
	"github.com/straja-ai/piiscan/internal/registry"
)

// Shape selects how entity_type is rendered.
type Shape string

const (
	// ShapeList always renders entity_type as one label per match.
	ShapeList Shape = "list"
	// ShapeLegacy renders a fixed scalar label for the categories that
	// historically used one, and a list for the rest.
	ShapeLegacy Shape = "legacy"
)

// CategoryResult is the outcome of one category: either values or an error.
type CategoryResult struct {
	EntityTypes      []string
	Scalar           string
	RecognizedValues []string
	Error            string
}

// Failed reports whether the category ended in an error.
func (r CategoryResult) Failed() bool { return r.Error != "" }

// MarshalJSON renders {"error": ...} or
// {"entity_type": ..., "recognized_values": [...]}. recognized_values is
// never null.
func (r CategoryResult) MarshalJSON() ([]byte, error) {
	if r.Error != "" {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.Error})
	}
	values := r.RecognizedValues
	if values == nil {
		values = []string{}
	}
	var entityType any
	if r.Scalar != "" {
		entityType = r.Scalar
	} else {
		types := r.EntityTypes
		if types == nil {
			types = []string{}
		}
		entityType = types
	}
	return json.Marshal(struct {
		EntityType       any      `json:"entity_type"`
		RecognizedValues []string `json:"recognized_values"`
	}{entityType, values})
}

// Result maps each requested category name to its outcome.
type Result map[string]CategoryResult

// aggregate turns matches into the uniform result shape. Values keep the
// order the matches were produced in; nothing is deduplicated or sorted.
func aggregate(b *registry.Binding, matches []recognize.Match, shape Shape) CategoryResult {
	res := CategoryResult{RecognizedValues: make([]string, 0, len(matches))}
	scalar := shape == ShapeLegacy && b.Legacy == registry.ShapeScalar
	if scalar {
		res.Scalar = b.Label
	} else {
		res.EntityTypes = make([]string, 0, len(matches))
	}
	for _, m := range matches {
		res.RecognizedValues = append(res.RecognizedValues, m.Text)
		if !scalar {
			label := m.Label
			if label == "" {
				label = b.Label
			}
			res.EntityTypes = append(res.EntityTypes, label)
		}
	}
	return res
}

func failed(msg string) CategoryResult {
	return CategoryResult{Error: msg}
}
