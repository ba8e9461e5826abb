package ner

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// WordPieceTokenizer implements a BERT-compatible WordPiece tokenizer that
// keeps byte offsets for every piece.
type WordPieceTokenizer struct {
	vocab        map[string]int64
	lowerCase    bool
	clsID        int64
	sepID        int64
	padID        int64
	unkID        int64
	continuation string
}

type tokenOffset struct {
	Start int
	End   int
}

var noOffset = tokenOffset{Start: -1, End: -1}

type wordSpan struct {
	Text  string
	Start int
	End   int
}

type wordPieceOffset struct {
	id    int64
	start int
	end   int
}

// LoadWordPieceTokenizer builds the tokenizer from vocab.txt.
func LoadWordPieceTokenizer(path string) (*WordPieceTokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int64)
	sc := bufio.NewScanner(f)
	var idx int64
	for sc.Scan() {
		token := strings.TrimSpace(sc.Text())
		if token == "" {
			continue
		}
		vocab[token] = idx
		idx++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan vocab: %w", err)
	}
	return newWordPieceTokenizer(vocab, true), nil
}

// LoadTokenizerFromDir loads a tokenizer from vocab.txt or tokenizer.json and
// reads do_lower_case from tokenizer_config.json when present.
func LoadTokenizerFromDir(dir string) (*WordPieceTokenizer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("tokenizer dir is empty")
	}

	var (
		tok *WordPieceTokenizer
		err error
	)
	for _, path := range []string{
		filepath.Join(dir, "vocab.txt"),
		filepath.Join(dir, "tokenizer", "vocab.txt"),
	} {
		if _, statErr := os.Stat(path); statErr == nil {
			tok, err = LoadWordPieceTokenizer(path)
			break
		}
	}
	if tok == nil && err == nil {
		for _, path := range []string{
			filepath.Join(dir, "tokenizer.json"),
			filepath.Join(dir, "tokenizer", "tokenizer.json"),
		} {
			if _, statErr := os.Stat(path); statErr == nil {
				tok, err = loadTokenizerFromJSON(path)
				break
			}
		}
	}
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, fmt.Errorf("tokenizer assets not found (vocab.txt or tokenizer.json)")
	}

	if lower, ok := readLowerCase(dir); ok {
		tok.lowerCase = lower
	}
	return tok, nil
}

func newWordPieceTokenizer(vocab map[string]int64, lowerCase bool) *WordPieceTokenizer {
	return &WordPieceTokenizer{
		vocab:        vocab,
		lowerCase:    lowerCase,
		continuation: "##",
		clsID:        vocab["[CLS]"],
		sepID:        vocab["[SEP]"],
		padID:        vocab["[PAD]"],
		unkID:        vocab["[UNK]"],
	}
}

func loadTokenizerFromJSON(path string) (*WordPieceTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer.json: %w", err)
	}
	var raw struct {
		Model struct {
			Type                    string           `json:"type"`
			Vocab                   map[string]int64 `json:"vocab"`
			ContinuingSubwordPrefix string           `json:"continuing_subword_prefix"`
		} `json:"model"`
		Normalizer *struct {
			Lowercase *bool `json:"lowercase"`
		} `json:"normalizer"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode tokenizer.json: %w", err)
	}
	if t := strings.ToLower(strings.TrimSpace(raw.Model.Type)); t != "" && t != "wordpiece" {
		return nil, fmt.Errorf("tokenizer.json model type %q is not supported", raw.Model.Type)
	}
	if len(raw.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer.json missing vocab")
	}

	lower := true
	if raw.Normalizer != nil && raw.Normalizer.Lowercase != nil {
		lower = *raw.Normalizer.Lowercase
	}
	tok := newWordPieceTokenizer(raw.Model.Vocab, lower)
	if p := raw.Model.ContinuingSubwordPrefix; p != "" {
		tok.continuation = p
	}
	return tok, nil
}

func readLowerCase(dir string) (bool, bool) {
	for _, path := range []string{
		filepath.Join(dir, "tokenizer_config.json"),
		filepath.Join(dir, "tokenizer", "tokenizer_config.json"),
	} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cfg struct {
			DoLowerCase *bool `json:"do_lower_case"`
		}
		if err := json.Unmarshal(data, &cfg); err != nil || cfg.DoLowerCase == nil {
			return false, false
		}
		return *cfg.DoLowerCase, true
	}
	return false, false
}

// encodeWords encodes as many leading words as fit into seqLen (including
// [CLS] and [SEP]) and reports how many words were consumed. At least one
// word is always consumed so callers can make progress; an oversized word is
// truncated to the pieces that fit.
func (t *WordPieceTokenizer) encodeWords(words []wordSpan, seqLen int) ([]int64, []int64, []tokenOffset, int) {
	if seqLen < 3 || len(words) == 0 {
		return nil, nil, nil, len(words)
	}

	budget := seqLen - 2
	tokens := make([]int64, 0, seqLen)
	offsets := make([]tokenOffset, 0, seqLen)
	tokens = append(tokens, t.clsID)
	offsets = append(offsets, noOffset)

	consumed := 0
	for _, w := range words {
		token := w.Text
		if t.lowerCase {
			token = strings.ToLower(token)
		}
		pieces := t.wordPieceOffsets(token)
		if len(tokens)-1+len(pieces) > budget {
			if consumed > 0 {
				break
			}
			pieces = pieces[:budget]
		}
		for _, p := range pieces {
			tokens = append(tokens, p.id)
			offsets = append(offsets, pieceOffset(w, token, p))
		}
		consumed++
		if len(tokens)-1 >= budget {
			break
		}
	}

	tokens = append(tokens, t.sepID)
	offsets = append(offsets, noOffset)

	attn := make([]int64, seqLen)
	for i := range tokens {
		attn[i] = 1
	}
	for len(tokens) < seqLen {
		tokens = append(tokens, t.padID)
		offsets = append(offsets, noOffset)
	}
	return tokens, attn, offsets, consumed
}

// pieceOffset maps a piece back to the original word. Lower-casing can change
// byte lengths, in which case the whole word span is used.
func pieceOffset(w wordSpan, folded string, p wordPieceOffset) tokenOffset {
	if len(folded) != len(w.Text) {
		return tokenOffset{Start: w.Start, End: w.End}
	}
	return tokenOffset{Start: w.Start + p.start, End: w.Start + p.end}
}

func (t *WordPieceTokenizer) wordPieceOffsets(token string) []wordPieceOffset {
	if id, ok := t.vocab[token]; ok {
		return []wordPieceOffset{{id: id, start: 0, end: len(token)}}
	}

	var pieces []wordPieceOffset
	start := 0
	for start < len(token) {
		end := len(token)
		found := false
		for end > start {
			sub := token[start:end]
			if start > 0 {
				sub = t.continuation + sub
			}
			if id, ok := t.vocab[sub]; ok {
				pieces = append(pieces, wordPieceOffset{id: id, start: start, end: end})
				start = end
				found = true
				break
			}
			end--
		}
		if !found {
			return []wordPieceOffset{{id: t.unkID, start: 0, end: len(token)}}
		}
	}
	if len(pieces) == 0 {
		return []wordPieceOffset{{id: t.unkID, start: 0, end: len(token)}}
	}
	return pieces
}

// splitWordsWithOffsets splits on whitespace and isolates punctuation the way
// BERT's basic tokenizer does, keeping byte offsets.
func splitWordsWithOffsets(text string) []wordSpan {
	if text == "" {
		return nil
	}
	var spans []wordSpan
	start := -1
	flush := func(end int) {
		if start >= 0 {
			spans = append(spans, wordSpan{Text: text[start:end], Start: start, End: end})
			start = -1
		}
	}
	for idx, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush(idx)
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush(idx)
			end := idx + len(string(r))
			spans = append(spans, wordSpan{Text: text[idx:end], Start: idx, End: end})
		default:
			if start < 0 {
				start = idx
			}
		}
	}
	flush(len(text))
	return spans
}
