package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const defaultSidecarTimeout = 10 * time.Second

// Sidecar calls an external NER service's /classify endpoint.
//
// The service receives {"text": ...} and answers with
// {"spans":[{"start","end","label","text","score"}]}. Offsets are code point
// indices, as most NER services produce them, and are converted to byte offsets.
type Sidecar struct {
	url     string
	http    *http.Client
	aliases map[string]string
}

// NewSidecar creates a client for the given base URL
// (e.g. "http://piiscan-ner:8001").
func NewSidecar(baseURL string, timeout time.Duration, aliases map[string]string) *Sidecar {
	if timeout <= 0 {
		timeout = defaultSidecarTimeout
	}
	return &Sidecar{
		url:     strings.TrimRight(baseURL, "/") + "/classify",
		http:    &http.Client{Timeout: timeout},
		aliases: MergeAliases(aliases),
	}
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Spans []sidecarSpan `json:"spans"`
}

type sidecarSpan struct {
	Start int      `json:"start"`
	End   int      `json:"end"`
	Label string   `json:"label"`
	Text  string   `json:"text"`
	Score *float32 `json:"score,omitempty"`
}

// Extract implements Extractor. Transport failures are returned to the
// caller so the owning category can report them.
func (c *Sidecar) Extract(ctx context.Context, text string) ([]Entity, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("ner sidecar: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ner sidecar: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ner sidecar: unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ner sidecar: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ner sidecar: decode: %w", err)
	}

	runeToByte := runeOffsets(text)
	out := make([]Entity, 0, len(result.Spans))
	for _, s := range result.Spans {
		ent := Entity{Label: NormalizeLabel(s.Label, c.aliases), Score: 1.0}
		if s.Score != nil {
			ent.Score = *s.Score
		}
		if s.Start >= 0 && s.End > s.Start && s.End < len(runeToByte) {
			ent.Start = runeToByte[s.Start]
			ent.End = runeToByte[s.End]
			ent.Text = text[ent.Start:ent.End]
		} else {
			ent.Start, ent.End = -1, -1
		}
		if t := strings.TrimSpace(s.Text); t != "" && ent.Text == "" {
			ent.Text = t
		}
		if ent.Label == "" || ent.Text == "" {
			continue
		}
		out = append(out, ent)
	}
	return out, nil
}

// runeOffsets maps code point index i to its byte offset; the final element
// is len(text).
func runeOffsets(text string) []int {
	out := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		out = append(out, i)
	}
	return append(out, len(text))
}
