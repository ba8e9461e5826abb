// Package ner runs statistical named-entity extraction over plain text. Two
// backends are provided: a local ONNX token-classification model and an HTTP
// sidecar. Both return entities with byte offsets into the input text.
package ner

import (
	"context"
	"strings"
)

// Entity is one labelled span detected by a statistical model.
type Entity struct {
	Label string  `json:"label"`
	Start int     `json:"start"` // byte offset of the first character (UTF-8)
	End   int     `json:"end"`   // byte offset one past the last character
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

// Extractor detects labelled entities in a text.
// Implementations must be safe for concurrent use.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]Entity, error)
}

// DefaultLabelAliases folds the label vocabularies of common NER models onto
// the labels used by the category table.
var DefaultLabelAliases = map[string]string{
	"PER":          "PERSON",
	"ORGANIZATION": "ORG",
	"ORGANISATION": "ORG",
	"LOC":          "LOCATION",
	"GPE":          "LOCATION",
}

// NormalizeLabel upper-cases a model label and applies aliases.
func NormalizeLabel(label string, aliases map[string]string) string {
	l := strings.ToUpper(strings.TrimSpace(label))
	if l == "" {
		return ""
	}
	if alias, ok := aliases[l]; ok {
		return alias
	}
	return l
}

// MergeAliases returns DefaultLabelAliases overlaid with extra.
func MergeAliases(extra map[string]string) map[string]string {
	out := make(map[string]string, len(DefaultLabelAliases)+len(extra))
	for k, v := range DefaultLabelAliases {
		out[k] = v
	}
	for k, v := range extra {
		k = strings.ToUpper(strings.TrimSpace(k))
		v = strings.ToUpper(strings.TrimSpace(v))
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
