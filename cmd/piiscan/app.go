package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/straja-ai/piiscan/internal/config"
	"github.com/straja-ai/piiscan/internal/extract"
	"github.com/straja-ai/piiscan/internal/ingest"
	"github.com/straja-ai/piiscan/internal/logging"
	"github.com/straja-ai/piiscan/internal/ner"
	"github.com/straja-ai/piiscan/internal/recognize"
	"github.com/straja-ai/piiscan/internal/redact"
	"github.com/straja-ai/piiscan/internal/registry"
	"github.com/straja-ai/piiscan/internal/telemetry"
)

// app holds the long-lived components built once at startup.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	tel      *telemetry.Provider
	pipeline *extract.Pipeline
	decoder  *ingest.Decoder
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	a := &app{cfg: cfg}
	a.log = logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: logOut,
	})

	tel, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Protocol: cfg.Telemetry.Protocol,
		Service:  "piiscan",
		Version:  version,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.tel = tel

	regOpts := registry.Options{
		CaseSensitiveDenyLists: cfg.Extraction.CaseSensitiveDenyLists,
		FoldNames:              cfg.Extraction.CaseInsensitiveNames,
	}
	if path := strings.TrimSpace(cfg.Extraction.DenyListsFile); path != "" {
		lists, err := registry.LoadDenyLists(path)
		if err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("load deny lists: %w", err)
		}
		regOpts.DenyLists = lists
	}
	reg, err := registry.New(regOpts)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("build registry: %w", err)
	}

	extractor, err := a.buildExtractor(cfg.NER)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	dec, err := ingest.New(ingest.Options{
		MaxFileBytes: cfg.Ingestion.MaxFileBytes,
		AllowedRoots: cfg.Ingestion.AllowedRoots,
	})
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("init ingestion: %w", err)
	}
	a.decoder = dec

	pipeline, err := extract.New(reg, recognize.New(extractor), extract.Options{
		Shape:             extract.Shape(strings.ToLower(cfg.Extraction.EntityTypeShape)),
		UnknownCategories: extract.UnknownPolicy(strings.ToLower(cfg.Extraction.UnknownCategories)),
		Decoder:           dec,
		Logger:            &a.log,
		Telemetry:         tel,
	})
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("init pipeline: %w", err)
	}
	a.pipeline = pipeline

	a.log.Debug().
		Int("categories", len(reg.Names())).
		Str("ner_backend", cfg.NER.Backend).
		Str("entity_type_shape", cfg.Extraction.EntityTypeShape).
		Str("unknown_categories", cfg.Extraction.UnknownCategories).
		Msg("pipeline ready")
	return a, nil
}

// buildExtractor returns nil for the none backend; ORGANIZATION then fails
// locally in every request.
func (a *app) buildExtractor(cfg config.NERConfig) (ner.Extractor, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "none":
		return nil, nil
	case "onnx":
		model, err := ner.LoadModel(ner.ModelConfig{
			BundleDir:      cfg.BundleDir,
			SeqLen:         cfg.SeqLen,
			Sessions:       cfg.Sessions,
			IntraThreads:   cfg.IntraThreads,
			InterThreads:   cfg.InterThreads,
			LabelAliases:   cfg.LabelAliases,
			MinScore:       cfg.MinScore,
			VerifyManifest: cfg.VerifyManifest,
		})
		if err != nil {
			return nil, fmt.Errorf("load ner model: %w", err)
		}
		a.closers = append(a.closers, model.Close)
		a.log.Info().Str("bundle_dir", model.Dir()).Msg("ner model loaded")
		return model, nil
	case "sidecar":
		timeout := time.Duration(cfg.SidecarTimeoutSeconds) * time.Second
		a.log.Info().Str("url", redact.String(cfg.SidecarURL)).Msg("using ner sidecar")
		return ner.NewSidecar(cfg.SidecarURL, timeout, cfg.LabelAliases), nil
	default:
		return nil, fmt.Errorf("unknown ner backend %q", cfg.Backend)
	}
}

// Close releases the model sessions and flushes telemetry.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := a.tel.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
