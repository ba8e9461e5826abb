package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straja-ai/piiscan/internal/ingest"
	"github.com/straja-ai/piiscan/internal/recognize"
	"github.com/straja-ai/piiscan/internal/registry"
)

type panicEngine struct {
	inner recognize.Engine
	on    recognize.Kind
}

func (e *panicEngine) Find(ctx context.Context, text string, s recognize.Strategy) ([]recognize.Match, error) {
	if s.Kind() == e.on {
		panic("boom")
	}
	return e.inner.Find(ctx, text, s)
}

func newPipeline(t *testing.T, engine recognize.Engine, opts Options) *Pipeline {
	t.Helper()
	reg, err := registry.New(registry.Options{})
	require.NoError(t, err)
	if engine == nil {
		engine = recognize.New(nil)
	}
	if opts.Decoder == nil {
		dec, err := ingest.New(ingest.Options{})
		require.NoError(t, err)
		opts.Decoder = dec
	}
	p, err := New(reg, engine, opts)
	require.NoError(t, err)
	return p
}

func TestExtractEmailAndTaxID(t *testing.T) {
	p := newPipeline(t, nil, Options{})
	res, err := p.Extract(context.Background(), "Contact a@b.com, SSN 123-45-6789.", []string{"EMAIL", "TAX_ID"})
	require.NoError(t, err)
	require.Len(t, res, 2)

	assert.Equal(t, []string{"a@b.com"}, res["EMAIL"].RecognizedValues)
	assert.Equal(t, []string{"EMAIL"}, res["EMAIL"].EntityTypes)
	assert.Equal(t, []string{"123-45-6789"}, res["TAX_ID"].RecognizedValues)
	assert.Equal(t, []string{"TAX_ID"}, res["TAX_ID"].EntityTypes)
}

func TestExtractEmptyValuesAreNotNull(t *testing.T) {
	p := newPipeline(t, nil, Options{})
	res, err := p.Extract(context.Background(), "nothing to see here", []string{"EMAIL", "PHONE_NUMBER"})
	require.NoError(t, err)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"EMAIL": {"entity_type": [], "recognized_values": []},
		"PHONE_NUMBER": {"entity_type": [], "recognized_values": []}
	}`, string(raw))
}

func TestExtractOmitsUnknownCategories(t *testing.T) {
	p := newPipeline(t, nil, Options{})
	res, err := p.Extract(context.Background(), "a@b.com", []string{"EMAIL", "NOT_A_CATEGORY", "EMAIL", " "})
	require.NoError(t, err)
	assert.Equal(t, []string{"EMAIL"}, res.SortedKeys())
}

func TestExtractKeysByRequestedName(t *testing.T) {
	p := newPipeline(t, nil, Options{})
	res, err := p.Extract(context.Background(), "She is a practicing Buddhist.", []string{"RELIGIOUS_AFFLICATION", "email"})
	require.NoError(t, err)
	assert.Equal(t, []string{"RELIGIOUS_AFFLICATION"}, res.SortedKeys())
}

func TestExtractFoldedNames(t *testing.T) {
	reg, err := registry.New(registry.Options{FoldNames: true})
	require.NoError(t, err)
	p, err := New(reg, recognize.New(nil), Options{})
	require.NoError(t, err)

	res, err := p.Extract(context.Background(), "She is a practicing Buddhist.", []string{"religious_afflication"})
	require.NoError(t, err)
	_, ok := res["religious_afflication"]
	assert.True(t, ok)
}

type errEngine struct{}

func (errEngine) Find(context.Context, string, recognize.Strategy) ([]recognize.Match, error) {
	return nil, errors.New("")
}

func TestExtractBlankErrorStillFails(t *testing.T) {
	p := newPipeline(t, errEngine{}, Options{})
	res, err := p.Extract(context.Background(), "SSN 123-45-6789", []string{"TAX_ID"})
	require.NoError(t, err)
	require.True(t, res["TAX_ID"].Failed())
	assert.Equal(t, "recognizer failed", res["TAX_ID"].Error)

	raw, err := json.Marshal(res["TAX_ID"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"recognizer failed"}`, string(raw))
}

func TestExtractNormalizesInlineText(t *testing.T) {
	reg, err := registry.New(registry.Options{DenyLists: map[string][]string{"CITIZENSHIP": {"Qu\u00e9b\u00e9cois"}}})
	require.NoError(t, err)
	p, err := New(reg, recognize.New(nil), Options{})
	require.NoError(t, err)

	res, err := p.Extract(context.Background(), "\ufeffShe is Que\u0301be\u0301cois.", []string{"CITIZENSHIP"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Qu\u00e9b\u00e9cois"}, res["CITIZENSHIP"].RecognizedValues)
}

func TestExtractStrictPolicy(t *testing.T) {
	p := newPipeline(t, nil, Options{UnknownCategories: Strict})
	_, err := p.Extract(context.Background(), "a@b.com", []string{"EMAIL", "NOPE", "ALSO_NOPE"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownCategory)

	var uerr *UnknownCategoriesError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, []string{"ALSO_NOPE", "NOPE"}, uerr.Names)
}

func TestExtractIsolatesErrors(t *testing.T) {
	p := newPipeline(t, nil, Options{})
	res, err := p.Extract(context.Background(), "Mail a@b.com", []string{"ORGANIZATION", "EMAIL"})
	require.NoError(t, err)

	assert.True(t, res["ORGANIZATION"].Failed())
	assert.Equal(t, recognize.ErrNoExtractor.Error(), res["ORGANIZATION"].Error)
	assert.Equal(t, []string{"a@b.com"}, res["EMAIL"].RecognizedValues)

	raw, err := json.Marshal(res["ORGANIZATION"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"error": "statistical extractor not configured"}`, string(raw))
}

func TestExtractIsolatesPanics(t *testing.T) {
	engine := &panicEngine{inner: recognize.New(nil), on: recognize.KindPattern}
	p := newPipeline(t, engine, Options{})
	res, err := p.Extract(context.Background(), "a woman emailed a@b.com about 123-45-6789",
		[]string{"TAX_ID", "EMAIL", "GENDERS"})
	require.NoError(t, err)
	require.Len(t, res, 3)

	assert.True(t, res["TAX_ID"].Failed())
	assert.Contains(t, res["TAX_ID"].Error, "boom")
	assert.Equal(t, []string{"a@b.com"}, res["EMAIL"].RecognizedValues)
	assert.Equal(t, []string{"woman"}, res["GENDERS"].RecognizedValues)
	assert.Equal(t, []string{"GENDER"}, res["GENDERS"].EntityTypes)
}

func TestExtractIsIdempotent(t *testing.T) {
	p := newPipeline(t, nil, Options{})
	text := "Dr. Mary Jones, 555-123-4567, mary@example.org, born 1990-01-02"
	cats := []string{"PERSON_NAME", "TITLES", "PHONE_NUMBER", "EMAIL", "DATE_OF_BIRTH", "DATES"}

	first, err := p.Extract(context.Background(), text, cats)
	require.NoError(t, err)
	second, err := p.Extract(context.Background(), text, cats)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExtractLegacyShape(t *testing.T) {
	p := newPipeline(t, nil, Options{Shape: ShapeLegacy})
	res, err := p.Extract(context.Background(), "a@b.com and c@d.org, SSN 123-45-6789", []string{"EMAIL", "TAX_ID"})
	require.NoError(t, err)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"EMAIL": {"entity_type": "EMAIL", "recognized_values": ["a@b.com", "c@d.org"]},
		"TAX_ID": {"entity_type": ["TAX_ID"], "recognized_values": ["123-45-6789"]}
	}`, string(raw))
}

func TestExtractDoesNotLogContent(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)
	p := newPipeline(t, nil, Options{Logger: &log})

	_, err := p.Extract(context.Background(), "secret a@b.com", []string{"EMAIL", "ORGANIZATION", "NOPE"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"category":"EMAIL"`)
	assert.NotContains(t, buf.String(), "a@b.com")
}

func TestExtractHonorsCancellation(t *testing.T) {
	p := newPipeline(t, nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Extract(ctx, "a@b.com", []string{"EMAIL"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractSourceFileMatchesInlineText(t *testing.T) {
	p := newPipeline(t, nil, Options{})
	text := "Write to a@b.com or call 555-123-4567."
	path := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("\ufeff"+text), 0o600))

	cats := []string{"EMAIL", "PHONE_NUMBER"}
	fromFile, err := p.ExtractSource(context.Background(), Source{Path: path}, cats)
	require.NoError(t, err)
	fromText, err := p.ExtractSource(context.Background(), Source{Text: text}, cats)
	require.NoError(t, err)
	assert.Equal(t, fromText, fromFile)
}

func TestExtractSourcePrecedence(t *testing.T) {
	p := newPipeline(t, nil, Options{})
	src := Source{
		Text:   "text c@d.org",
		Path:   "/does/not/matter.txt",
		Upload: &Upload{Name: "upload.TXT", Data: []byte("upload a@b.com")},
	}
	assert.Equal(t, "upload", src.Kind())

	res, err := p.ExtractSource(context.Background(), src, []string{"EMAIL"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a@b.com"}, res["EMAIL"].RecognizedValues)

	src.Upload = nil
	assert.Equal(t, "path", src.Kind())
	_, err = p.ExtractSource(context.Background(), src, []string{"EMAIL"})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtractSourceErrors(t *testing.T) {
	p := newPipeline(t, nil, Options{})

	_, err := p.ExtractSource(context.Background(), Source{Text: "   "}, []string{"EMAIL"})
	assert.ErrorIs(t, err, ErrNoInput)

	_, err = p.ExtractSource(context.Background(), Source{Upload: &Upload{Name: "x.rtf", Data: []byte("hi")}}, []string{"EMAIL"})
	assert.ErrorIs(t, err, ingest.ErrUnsupportedFormat)

	reg, err := registry.New(registry.Options{})
	require.NoError(t, err)
	bare, err := New(reg, recognize.New(nil), Options{})
	require.NoError(t, err)
	_, err = bare.ExtractSource(context.Background(), Source{Path: "a.txt"}, []string{"EMAIL"})
	assert.ErrorIs(t, err, ErrNoDecoder)
}

func TestExtractSourceStrictFailsBeforeDecoding(t *testing.T) {
	p := newPipeline(t, nil, Options{UnknownCategories: Strict})
	_, err := p.ExtractSource(context.Background(), Source{Path: "/missing.txt"}, []string{"NOPE"})
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestNewValidatesOptions(t *testing.T) {
	reg, err := registry.New(registry.Options{})
	require.NoError(t, err)

	_, err = New(reg, recognize.New(nil), Options{Shape: "tree"})
	assert.Error(t, err)
	_, err = New(reg, recognize.New(nil), Options{UnknownCategories: "loose"})
	assert.Error(t, err)
	_, err = New(nil, recognize.New(nil), Options{})
	assert.Error(t, err)
}
