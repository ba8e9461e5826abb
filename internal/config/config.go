package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds piiscan configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Ingestion  IngestionConfig  `yaml:"ingestion"`
	NER        NERConfig        `yaml:"ner"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr                   string   `yaml:"addr"`            // HTTP listen address, e.g. ":8080"
	APIKeys                []string `yaml:"api_keys"`        // empty disables auth
	AllowedOrigins         []string `yaml:"allowed_origins"` // CORS; empty disables, "*" allows any
	MaxBodyBytes           int64    `yaml:"max_body_bytes"`
	RequestTimeoutSeconds  int      `yaml:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int      `yaml:"shutdown_timeout_seconds"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // trace | debug | info | warn | error | disabled
	Format string `yaml:"format"` // json | console
}

type ExtractionConfig struct {
	EntityTypeShape        string `yaml:"entity_type_shape"`  // list | legacy
	UnknownCategories      string `yaml:"unknown_categories"` // lenient | strict
	CaseSensitiveDenyLists bool   `yaml:"case_sensitive_deny_lists"`
	CaseInsensitiveNames   bool   `yaml:"case_insensitive_names"` // "email" resolves to EMAIL
	DenyListsFile          string `yaml:"deny_lists_file"`
}

type IngestionConfig struct {
	MaxFileBytes int64    `yaml:"max_file_bytes"`
	AllowedRoots []string `yaml:"allowed_roots"`
}

type NERConfig struct {
	Backend               string            `yaml:"backend"` // none | onnx | sidecar
	BundleDir             string            `yaml:"bundle_dir"`
	SeqLen                int               `yaml:"seq_len"`
	Sessions              int               `yaml:"sessions"`
	IntraThreads          int               `yaml:"intra_threads"`
	InterThreads          int               `yaml:"inter_threads"`
	MinScore              float32           `yaml:"min_score"`
	VerifyManifest        bool              `yaml:"verify_manifest"`
	LabelAliases          map[string]string `yaml:"label_aliases"`
	SidecarURL            string            `yaml:"sidecar_url"`
	SidecarTimeoutSeconds int               `yaml:"sidecar_timeout_seconds"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"` // grpc | http
}

// Load reads configuration from a YAML file and applies environment
// overrides. If the file doesn't exist, it returns the default config.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			cfg = &Config{}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 40 << 20
	}
	if cfg.Server.RequestTimeoutSeconds == 0 {
		cfg.Server.RequestTimeoutSeconds = 60
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = 10
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Extraction.EntityTypeShape == "" {
		cfg.Extraction.EntityTypeShape = "list"
	}
	if cfg.Extraction.UnknownCategories == "" {
		cfg.Extraction.UnknownCategories = "lenient"
	}

	if cfg.Ingestion.MaxFileBytes == 0 {
		cfg.Ingestion.MaxFileBytes = 32 << 20
	}

	if cfg.NER.Backend == "" {
		cfg.NER.Backend = "none"
	}
	if cfg.NER.SeqLen == 0 {
		cfg.NER.SeqLen = 256
	}
	if cfg.NER.Sessions == 0 {
		cfg.NER.Sessions = 2
	}
	if cfg.NER.IntraThreads == 0 {
		cfg.NER.IntraThreads = 1
	}
	if cfg.NER.InterThreads == 0 {
		cfg.NER.InterThreads = 1
	}
	if cfg.NER.SidecarTimeoutSeconds == 0 {
		cfg.NER.SidecarTimeoutSeconds = 10
	}

	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("PIISCAN_ADDR")); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("PIISCAN_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("PIISCAN_LOG_FORMAT")); v != "" {
		cfg.Logging.Format = v
	}
	if v := strings.TrimSpace(os.Getenv("PIISCAN_NER_BACKEND")); v != "" {
		cfg.NER.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("PIISCAN_NER_SIDECAR_URL")); v != "" {
		cfg.NER.SidecarURL = v
	}
	if keys := splitList(os.Getenv("PIISCAN_API_KEYS")); len(keys) > 0 {
		cfg.Server.APIKeys = keys
	}
	if origins := splitList(os.Getenv("PIISCAN_ALLOWED_ORIGINS")); len(origins) > 0 {
		cfg.Server.AllowedOrigins = origins
	}
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
