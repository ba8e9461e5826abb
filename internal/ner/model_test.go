package ner

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEntitiesFromTokenLabels_PersonSpan(t *testing.T) {
	text := "call John Smith tomorrow"
	start := strings.Index(text, "John")
	end := start + len("John Smith")

	labels := []string{"O", "B-PER", "I-PER", "O"}
	scores := []float32{0.9, 0.8, 0.6, 0.9}
	offsets := []tokenOffset{
		{Start: 0, End: 4},
		{Start: start, End: start + 4},
		{Start: start + 5, End: end},
		{Start: end + 1, End: len(text)},
	}
	entities := entitiesFromTokenLabels(labels, scores, offsets)
	if len(entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(entities))
	}
	ent := entities[0]
	if ent.Label != "PER" {
		t.Fatalf("expected PER, got %s", ent.Label)
	}
	if ent.Start != start || ent.End != end {
		t.Fatalf("expected span %d-%d, got %d-%d", start, end, ent.Start, ent.End)
	}
	if math.Abs(float64(ent.Score)-0.7) > 1e-6 {
		t.Fatalf("expected mean score 0.7, got %f", ent.Score)
	}
}

func TestEntitiesFromTokenLabels_SkipsSpecialTokens(t *testing.T) {
	labels := []string{"B-LOC", "B-LOC", "O"}
	offsets := []tokenOffset{noOffset, {Start: 0, End: 5}, noOffset}
	entities := entitiesFromTokenLabels(labels, nil, offsets)
	if len(entities) != 1 || entities[0].Start != 0 || entities[0].End != 5 {
		t.Fatalf("unexpected entities %+v", entities)
	}
}

func TestMergeEntities(t *testing.T) {
	in := []Entity{
		{Label: "ORG", Start: 10, End: 15, Score: 0.9},
		{Label: "ORG", Start: 5, End: 10, Score: 0.8},
		{Label: "PERSON", Start: 20, End: 24, Score: 0.7},
	}
	out := mergeEntities(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(out))
	}
	if out[0].Start != 5 || out[0].End != 15 {
		t.Fatalf("expected merged span 5-15, got %d-%d", out[0].Start, out[0].End)
	}
	if out[0].Score != 0.8 {
		t.Fatalf("expected merged score to keep the lower value, got %f", out[0].Score)
	}
}

func TestNormalizeLabel(t *testing.T) {
	aliases := MergeAliases(map[string]string{"misc": "other"})
	cases := map[string]string{
		"per":          "PERSON",
		"GPE":          "LOCATION",
		"Organization": "ORG",
		"MISC":         "OTHER",
		"DATE":         "DATE",
		" ":            "",
	}
	for in, want := range cases {
		if got := NormalizeLabel(in, aliases); got != want {
			t.Fatalf("NormalizeLabel(%q): expected %q got %q", in, want, got)
		}
	}
}

func TestLabelsFromIDMap(t *testing.T) {
	labels := labelsFromIDMap(map[string]string{"0": "O", "2": "I-PER", "1": "B-PER"})
	if strings.Join(labels, ",") != "O,B-PER,I-PER" {
		t.Fatalf("unexpected labels %v", labels)
	}
}

func TestLoadModelMetaPrefersLabelMap(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"id2label":{"0":"O"},"type_vocab_size":2}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "label_map.json"), []byte(`["O","B-ORG","I-ORG"]`), 0o644); err != nil {
		t.Fatal(err)
	}
	meta, err := loadModelMeta(dir)
	if err != nil {
		t.Fatalf("load meta: %v", err)
	}
	if len(meta.Labels) != 3 || meta.Labels[1] != "B-ORG" {
		t.Fatalf("unexpected labels %v", meta.Labels)
	}
	if !meta.RequiresTokenType {
		t.Fatalf("expected token type ids to be required")
	}
}

func TestSoftmaxSumsToOne(t *testing.T) {
	probs := softmax([]float32{1, 2, 3})
	var sum float32
	for _, p := range probs {
		sum += p
	}
	if math.Abs(float64(sum)-1) > 1e-5 {
		t.Fatalf("expected probabilities to sum to 1, got %f", sum)
	}
	if probs[2] <= probs[1] || probs[1] <= probs[0] {
		t.Fatalf("softmax must preserve ordering: %v", probs)
	}
}

func TestModelExtractWithBundle(t *testing.T) {
	bundleDir := strings.TrimSpace(os.Getenv("PIISCAN_NER_BUNDLE_DIR"))
	if bundleDir == "" {
		t.Skip("PIISCAN_NER_BUNDLE_DIR not set")
	}
	m, err := LoadModel(ModelConfig{BundleDir: bundleDir, SeqLen: 128, Sessions: 2})
	if err != nil {
		t.Fatalf("load model: %v", err)
	}
	defer m.Close()

	text := "Angela Merkel visited Microsoft in Seattle."
	entities, err := m.Extract(context.Background(), text)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	for _, ent := range entities {
		if text[ent.Start:ent.End] != ent.Text {
			t.Fatalf("entity text %q does not match offsets %d-%d", ent.Text, ent.Start, ent.End)
		}
	}

	long := strings.Repeat("Angela Merkel visited Seattle. ", 200)
	if _, err := m.Extract(context.Background(), long); err != nil {
		t.Fatalf("extract long text: %v", err)
	}
}
