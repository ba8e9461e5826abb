package ner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeVocab(t *testing.T, dir string) {
	t.Helper()
	vocab := []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "john", "smith", "lives", "in", "paris", "##ton", "bos", "."}
	if err := os.WriteFile(filepath.Join(dir, "vocab.txt"), []byte(strings.Join(vocab, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write vocab: %v", err)
	}
}

func TestEncodeWordsOffsets(t *testing.T) {
	dir := t.TempDir()
	writeVocab(t, dir)
	tok, err := LoadTokenizerFromDir(dir)
	if err != nil {
		t.Fatalf("load tokenizer: %v", err)
	}

	text := "John Boston."
	words := splitWordsWithOffsets(text)
	if len(words) != 3 {
		t.Fatalf("expected 3 words, got %d", len(words))
	}

	ids, attn, offsets, consumed := tok.encodeWords(words, 8)
	if consumed != 3 {
		t.Fatalf("expected all words consumed, got %d", consumed)
	}
	wantIDs := []int64{2, 4, 10, 9, 11, 3, 0, 0}
	for i, id := range wantIDs {
		if ids[i] != id {
			t.Fatalf("ids[%d]: expected %d got %d (%v)", i, id, ids[i], ids)
		}
	}
	wantAttn := []int64{1, 1, 1, 1, 1, 1, 0, 0}
	for i, v := range wantAttn {
		if attn[i] != v {
			t.Fatalf("attn[%d]: expected %d got %d", i, v, attn[i])
		}
	}
	if got := text[offsets[2].Start:offsets[2].End]; got != "Bos" {
		t.Fatalf("expected first piece of Boston to map to %q, got %q", "Bos", got)
	}
	if got := text[offsets[3].Start:offsets[3].End]; got != "ton" {
		t.Fatalf("expected continuation piece to map to %q, got %q", "ton", got)
	}
	if offsets[0] != noOffset || offsets[5] != noOffset {
		t.Fatalf("special tokens must not carry offsets")
	}
}

func TestEncodeWordsStopsAtWordBoundary(t *testing.T) {
	dir := t.TempDir()
	writeVocab(t, dir)
	tok, err := LoadTokenizerFromDir(dir)
	if err != nil {
		t.Fatalf("load tokenizer: %v", err)
	}
	words := splitWordsWithOffsets("John Boston")

	_, _, _, consumed := tok.encodeWords(words, 4)
	if consumed != 1 {
		t.Fatalf("expected the first window to stop before Boston, consumed %d", consumed)
	}
	ids, _, _, consumed := tok.encodeWords(words[1:], 4)
	if consumed != 1 {
		t.Fatalf("expected Boston in its own window, consumed %d", consumed)
	}
	if ids[1] != 10 || ids[2] != 9 {
		t.Fatalf("unexpected pieces for Boston: %v", ids)
	}
}

func TestUnknownWordMapsToUNK(t *testing.T) {
	dir := t.TempDir()
	writeVocab(t, dir)
	tok, err := LoadTokenizerFromDir(dir)
	if err != nil {
		t.Fatalf("load tokenizer: %v", err)
	}
	pieces := tok.wordPieceOffsets("zzz")
	if len(pieces) != 1 || pieces[0].id != 1 {
		t.Fatalf("expected a single [UNK] piece, got %+v", pieces)
	}
}

func TestTokenizerConfigDisablesLowerCase(t *testing.T) {
	dir := t.TempDir()
	writeVocab(t, dir)
	if err := os.WriteFile(filepath.Join(dir, "tokenizer_config.json"), []byte(`{"do_lower_case": false}`), 0o644); err != nil {
		t.Fatalf("write tokenizer config: %v", err)
	}
	tok, err := LoadTokenizerFromDir(dir)
	if err != nil {
		t.Fatalf("load tokenizer: %v", err)
	}
	ids, _, _, _ := tok.encodeWords(splitWordsWithOffsets("John"), 4)
	if ids[1] != 1 {
		t.Fatalf("expected cased lookup to miss the lower-case vocab, got id %d", ids[1])
	}
}

func TestLoadTokenizerFromJSON(t *testing.T) {
	dir := t.TempDir()
	doc := `{"model":{"type":"WordPiece","vocab":{"[PAD]":0,"[UNK]":1,"[CLS]":2,"[SEP]":3,"paris":4}},"normalizer":{"lowercase":true}}`
	if err := os.WriteFile(filepath.Join(dir, "tokenizer.json"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write tokenizer.json: %v", err)
	}
	tok, err := LoadTokenizerFromDir(dir)
	if err != nil {
		t.Fatalf("load tokenizer: %v", err)
	}
	ids, _, _, _ := tok.encodeWords(splitWordsWithOffsets("Paris"), 4)
	if ids[0] != 2 || ids[1] != 4 || ids[2] != 3 {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestLoadTokenizerMissingAssets(t *testing.T) {
	if _, err := LoadTokenizerFromDir(t.TempDir()); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}

func TestSplitWordsIsolatesPunctuation(t *testing.T) {
	words := splitWordsWithOffsets("Hi, Ana!")
	var got []string
	for _, w := range words {
		got = append(got, w.Text)
	}
	if strings.Join(got, "|") != "Hi|,|Ana|!" {
		t.Fatalf("unexpected split %v", got)
	}
}
