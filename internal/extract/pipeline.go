// Package extract runs requested categories over one text body and assembles
// the per-category results.
//
// Categories are resolved sequentially and independently: a fault in one
// category (an error or a panic) is reported in that category's result and
// never aborts the others. Failures before dispatch, such as missing input or
// an undecodable document, fail the whole request.
package extract

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"

	"github.com/straja-ai/piiscan/internal/ingest"
	"github.com/straja-ai/piiscan/internal/recognize"
	"github.com/straja-ai/piiscan/internal/redact"
	"github.com/straja-ai/piiscan/internal/registry"
	"github.com/straja-ai/piiscan/internal/telemetry"
)

var (
	// ErrNoInput is returned when a source carries no upload, path or text.
	ErrNoInput = errors.New("no input provided")
	// ErrUnknownCategory is matched by UnknownCategoriesError.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrNoDecoder is returned for document sources without a Decoder.
	ErrNoDecoder = errors.New("document decoding not configured")
)

// UnknownCategoriesError lists the requested names the registry does not
// know. It is only returned under the strict policy.
type UnknownCategoriesError struct {
	Names []string
}

func (e *UnknownCategoriesError) Error() string {
	return fmt.Sprintf("unknown categories: %s", strings.Join(e.Names, ", "))
}

func (e *UnknownCategoriesError) Unwrap() error { return ErrUnknownCategory }

// UnknownPolicy decides what happens to unregistered category names.
type UnknownPolicy string

const (
	// Lenient omits unknown names from the result.
	Lenient UnknownPolicy = "lenient"
	// Strict fails the request before any category runs.
	Strict UnknownPolicy = "strict"
)

// Decoder turns documents into text.
type Decoder interface {
	DecodeFile(ctx context.Context, path string) (string, error)
	DecodeBytes(ctx context.Context, name string, data []byte) (string, error)
}

// Options configures a Pipeline.
type Options struct {
	Shape             Shape
	UnknownCategories UnknownPolicy
	Decoder           Decoder
	Logger            *zerolog.Logger
	Telemetry         *telemetry.Provider
}

// Pipeline is safe for concurrent use; it holds no per-request state.
type Pipeline struct {
	reg     *registry.Registry
	engine  recognize.Engine
	shape   Shape
	policy  UnknownPolicy
	decoder Decoder
	log     zerolog.Logger
	tel     *telemetry.Provider
}

// New validates opts and builds a Pipeline around a registry and engine
// constructed once at startup.
func New(reg *registry.Registry, engine recognize.Engine, opts Options) (*Pipeline, error) {
	if reg == nil {
		return nil, errors.New("registry is required")
	}
	if engine == nil {
		return nil, errors.New("recognition engine is required")
	}
	p := &Pipeline{
		reg:     reg,
		engine:  engine,
		shape:   opts.Shape,
		policy:  opts.UnknownCategories,
		decoder: opts.Decoder,
		log:     zerolog.Nop(),
		tel:     opts.Telemetry,
	}
	switch p.shape {
	case "":
		p.shape = ShapeList
	case ShapeList, ShapeLegacy:
	default:
		return nil, fmt.Errorf("unsupported entity type shape %q", opts.Shape)
	}
	switch p.policy {
	case "":
		p.policy = Lenient
	case Lenient, Strict:
	default:
		return nil, fmt.Errorf("unsupported unknown-category policy %q", opts.UnknownCategories)
	}
	if opts.Logger != nil {
		p.log = opts.Logger.With().Str("component", "extract").Logger()
	}
	if p.tel == nil {
		p.tel = telemetry.NewNoop()
	}
	return p, nil
}

// Registry returns the registry the pipeline resolves against.
func (p *Pipeline) Registry() *registry.Registry { return p.reg }

// Extract resolves every requested category over text. The text is
// normalized the same way decoded documents are, so inline text and an
// equivalent txt file give the same result. The returned mapping has exactly
// one entry per distinct requested name the registry knows.
func (p *Pipeline) Extract(ctx context.Context, text string, categories []string) (Result, error) {
	start := time.Now()
	res, err := p.extract(ctx, text, categories)
	p.tel.RecordRequest(ctx, "text", outcome(err), msSince(start))
	return res, err
}

// Upload is an in-memory document; Name supplies the extension.
type Upload struct {
	Name string
	Data []byte
}

// Source is where the text comes from. Upload wins over Path, Path wins over
// Text.
type Source struct {
	Text   string
	Path   string
	Upload *Upload
}

// Kind names the input that will be used.
func (s Source) Kind() string {
	switch {
	case s.Upload != nil:
		return "upload"
	case strings.TrimSpace(s.Path) != "":
		return "path"
	case strings.TrimSpace(s.Text) != "":
		return "text"
	default:
		return "none"
	}
}

// ExtractSource acquires the text from src and runs Extract over it. Any
// acquisition failure is returned as a request-level error.
func (p *Pipeline) ExtractSource(ctx context.Context, src Source, categories []string) (Result, error) {
	start := time.Now()
	res, err := p.extractSource(ctx, src, categories)
	p.tel.RecordRequest(ctx, src.Kind(), outcome(err), msSince(start))
	return res, err
}

func (p *Pipeline) extractSource(ctx context.Context, src Source, categories []string) (Result, error) {
	names := dedupe(categories)
	if err := p.checkUnknown(names); err != nil {
		return nil, err
	}
	text, err := p.acquire(ctx, src)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, text, names)
}

func (p *Pipeline) acquire(ctx context.Context, src Source) (string, error) {
	switch src.Kind() {
	case "upload":
		if p.decoder == nil {
			return "", ErrNoDecoder
		}
		return p.decoder.DecodeBytes(ctx, src.Upload.Name, src.Upload.Data)
	case "path":
		if p.decoder == nil {
			return "", ErrNoDecoder
		}
		return p.decoder.DecodeFile(ctx, strings.TrimSpace(src.Path))
	case "text":
		return ingest.Normalize(src.Text), nil
	default:
		return "", ErrNoInput
	}
}

func (p *Pipeline) extract(ctx context.Context, text string, categories []string) (Result, error) {
	names := dedupe(categories)
	if err := p.checkUnknown(names); err != nil {
		return nil, err
	}
	return p.run(ctx, ingest.Normalize(text), names)
}

func (p *Pipeline) checkUnknown(names []string) error {
	if p.policy != Strict {
		return nil
	}
	if ok, unknown := p.reg.Known(names); !ok {
		return &UnknownCategoriesError{Names: unknown}
	}
	return nil
}

func (p *Pipeline) run(ctx context.Context, text string, names []string) (Result, error) {
	out := make(Result, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, ok := p.reg.Resolve(name)
		if !ok {
			p.log.Debug().Str("category", name).Msg("category not registered, omitted")
			continue
		}
		out[name] = p.resolve(ctx, name, b, text)
	}
	return out, nil
}

// resolve runs one category inside a failure boundary.
func (p *Pipeline) resolve(ctx context.Context, name string, b *registry.Binding, text string) (res CategoryResult) {
	start := time.Now()
	ctx, span := p.tel.StartSpan(ctx, "piiscan.category", map[string]interface{}{
		"piiscan.category": b.Name,
		"piiscan.variant":  b.Variant(),
	})
	defer func() {
		if rec := recover(); rec != nil {
			res = failed(fmt.Sprintf("recognizer panicked: %v", rec))
		}
		dur := msSince(start)
		if res.Failed() {
			span.SetStatus(codes.Error, "category failed")
			p.tel.RecordCategory(ctx, b.Name, "error", 0, dur)
			p.log.Warn().
				Str("category", name).
				Str("variant", b.Variant()).
				Str("error", redact.String(res.Error)).
				Float64("duration_ms", dur).
				Msg("category failed")
		} else {
			p.tel.RecordCategory(ctx, b.Name, "ok", len(res.RecognizedValues), dur)
			p.log.Debug().
				Str("category", name).
				Str("variant", b.Variant()).
				Int("matches", len(res.RecognizedValues)).
				Float64("duration_ms", dur).
				Msg("category resolved")
		}
		span.End()
	}()

	var (
		matches []recognize.Match
		err     error
	)
	if b.Finder != nil {
		matches, err = b.Finder(ctx, text)
	} else {
		matches, err = p.engine.Find(ctx, text, b.Strategy)
	}
	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = "recognizer failed"
		}
		return failed(msg)
	}
	return aggregate(b, matches, p.shape)
}

// dedupe trims names and drops blanks and repeats, keeping first-seen order.
func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoInput), errors.Is(err, ErrUnknownCategory),
		errors.Is(err, ingest.ErrUnsupportedFormat), errors.Is(err, ingest.ErrFileTooLarge),
		errors.Is(err, ingest.ErrPathNotAllowed):
		return "rejected"
	default:
		return "error"
	}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}

// SortedKeys returns the result's category names in sorted order.
func (r Result) SortedKeys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
