package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the loaded config for required fields and safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}
	if cfg.Server.MaxBodyBytes < 0 {
		return errors.New("server.max_body_bytes must not be negative")
	}
	if cfg.Server.RequestTimeoutSeconds < 0 || cfg.Server.ShutdownTimeoutSeconds < 0 {
		return errors.New("server timeouts must not be negative")
	}
	for i, k := range cfg.Server.APIKeys {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("server.api_keys[%d] is empty", i)
		}
	}

	if err := validateLoggingConfig(cfg.Logging); err != nil {
		return err
	}

	if err := validateExtractionConfig(cfg.Extraction); err != nil {
		return err
	}

	if cfg.Ingestion.MaxFileBytes < 0 {
		return errors.New("ingestion.max_file_bytes must not be negative")
	}
	if cfg.Server.MaxBodyBytes > 0 && cfg.Ingestion.MaxFileBytes > cfg.Server.MaxBodyBytes {
		return fmt.Errorf("ingestion.max_file_bytes (%d) exceeds server.max_body_bytes (%d)",
			cfg.Ingestion.MaxFileBytes, cfg.Server.MaxBodyBytes)
	}

	if err := validateNERConfig(cfg.NER); err != nil {
		return err
	}

	if err := validateTelemetryConfig(cfg.Telemetry); err != nil {
		return err
	}

	return nil
}

func validateLoggingConfig(l LoggingConfig) error {
	switch strings.ToLower(strings.TrimSpace(l.Format)) {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", l.Format)
	}
	switch strings.ToLower(strings.TrimSpace(l.Level)) {
	case "", "trace", "debug", "info", "warn", "warning", "error", "disabled", "off":
	default:
		return fmt.Errorf("logging.level %q is not a known level", l.Level)
	}
	return nil
}

func validateExtractionConfig(e ExtractionConfig) error {
	switch strings.ToLower(strings.TrimSpace(e.EntityTypeShape)) {
	case "", "list", "legacy":
	default:
		return fmt.Errorf("extraction.entity_type_shape must be list or legacy, got %q", e.EntityTypeShape)
	}
	switch strings.ToLower(strings.TrimSpace(e.UnknownCategories)) {
	case "", "lenient", "strict":
	default:
		return fmt.Errorf("extraction.unknown_categories must be lenient or strict, got %q", e.UnknownCategories)
	}
	return nil
}

func validateNERConfig(n NERConfig) error {
	switch strings.ToLower(strings.TrimSpace(n.Backend)) {
	case "", "none":
		return nil
	case "onnx":
		if strings.TrimSpace(n.BundleDir) == "" {
			return errors.New("ner.bundle_dir must be set for the onnx backend")
		}
		if n.SeqLen < 8 {
			return fmt.Errorf("ner.seq_len must be at least 8, got %d", n.SeqLen)
		}
		if n.Sessions < 0 || n.IntraThreads < 0 || n.InterThreads < 0 {
			return errors.New("ner session and thread counts must not be negative")
		}
		if n.MinScore < 0 || n.MinScore > 1 {
			return fmt.Errorf("ner.min_score must be within [0,1], got %v", n.MinScore)
		}
		return nil
	case "sidecar":
		if strings.TrimSpace(n.SidecarURL) == "" {
			return errors.New("ner.sidecar_url must be set for the sidecar backend")
		}
		u, err := url.Parse(n.SidecarURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("ner.sidecar_url is invalid")
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.New("ner.sidecar_url must be http or https")
		}
		if n.SidecarTimeoutSeconds < 0 {
			return errors.New("ner.sidecar_timeout_seconds must not be negative")
		}
		return nil
	default:
		return fmt.Errorf("ner.backend must be none, onnx or sidecar, got %q", n.Backend)
	}
}

func validateTelemetryConfig(t TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	if strings.TrimSpace(t.Endpoint) == "" {
		return errors.New("telemetry enabled but endpoint is empty")
	}
	if t.Protocol != "" {
		switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
		case "grpc", "http":
		default:
			return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", t.Protocol)
		}
	}
	return nil
}
