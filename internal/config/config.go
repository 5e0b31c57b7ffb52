package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"etlpipe/internal/domain"
)

// DefaultPath is the config file used when none is given.
const DefaultPath = "sources.json"

// Config is the full pipeline configuration loaded from a JSON or YAML file.
type Config struct {
	Sources     []domain.SourceDescriptor      `json:"sources" yaml:"sources"`
	Rules       map[string][]domain.RuleConfig `json:"rules,omitempty" yaml:"rules,omitempty"` // table name → rules
	Store       domain.StoreConfig             `json:"store" yaml:"store"`
	CSVDir      string                         `json:"csvDir,omitempty" yaml:"csvDir,omitempty"`
	DownloadDir string                         `json:"downloadDir,omitempty" yaml:"downloadDir,omitempty"`
	KaggleBin   string                         `json:"kaggleBin,omitempty" yaml:"kaggleBin,omitempty"`
	HTTPTimeout Duration                       `json:"httpTimeout,omitempty" yaml:"httpTimeout,omitempty"`

	// Path is the file the config was loaded from.
	Path string `json:"-" yaml:"-"`
}

// ConfigError reports a configuration that cannot be used. It aborts the run
// before any extraction.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	ErrMissingField  = errors.New("missing required field")
	ErrDuplicateName = errors.New("duplicate source name")
	ErrUnknownMethod = errors.New("unknown access method")
	ErrUnknownTable  = errors.New("rules for a table no source produces")
)

// Load reads the config at path, applies environment overrides and validates it.
// The format is chosen by extension: .yaml/.yml is YAML, anything else JSON.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	cfg, err := Parse(data, formatOf(path))
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	cfg.Path = path

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return cfg, nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// Parse decodes config bytes in the given format ("json" or "yaml") without validating.
func Parse(data []byte, format string) (*Config, error) {
	var cfg Config
	var legacy legacyConfig

	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		if err := yaml.Unmarshal(data, &legacy); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		if err := json.Unmarshal(data, &legacy); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	}

	cfg.Sources = append(cfg.Sources, legacy.normalize()...)
	return &cfg, nil
}

// Validate checks every source descriptor and the store settings.
func (c *Config) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(c.Sources))

	for i, s := range c.Sources {
		label := s.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		missing := func(field string) {
			errs = append(errs, fmt.Errorf("source %s: %w: %s", label, ErrMissingField, field))
		}

		if s.Name == "" {
			missing("name")
		} else if seen[s.Name] {
			errs = append(errs, fmt.Errorf("source %s: %w", s.Name, ErrDuplicateName))
		}
		seen[s.Name] = true

		if s.Method == "" {
			missing("method")
		} else if !s.Method.Valid() {
			errs = append(errs, fmt.Errorf("source %s: %w: %q", label, ErrUnknownMethod, s.Method))
		}
		if s.Location == "" {
			missing("location")
		}

		switch s.Method {
		case domain.AccessManagedDataset:
			if s.FileName == "" {
				missing("fileName")
			}
		case domain.AccessDatabase:
			if s.Driver == "" {
				missing("driver")
			} else if !domain.DatabaseDriver(s.Driver).Valid() {
				errs = append(errs, fmt.Errorf("source %s: unsupported driver %q", label, s.Driver))
			}
			if s.Query == "" {
				missing("query")
			}
		}
		if len([]rune(s.Delimiter)) > 1 && s.Delimiter != `\t` && s.Delimiter != "tab" {
			errs = append(errs, fmt.Errorf("source %s: delimiter must be a single character", label))
		}
	}

	switch c.Store.Driver {
	case "", domain.StoreDriverSQLite, domain.StoreDriverDuckDB:
	case domain.StoreDriverPostgres, domain.StoreDriverMySQL:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store: %w: dsn", ErrMissingField))
		}
	default:
		errs = append(errs, fmt.Errorf("store: unsupported driver %q", c.Store.Driver))
	}

	for table, rules := range c.Rules {
		if !seen[table] {
			errs = append(errs, fmt.Errorf("rules %q: %w", table, ErrUnknownTable))
		}
		for i, r := range rules {
			if r.Type == "" {
				errs = append(errs, fmt.Errorf("rules %s #%d: %w: type", table, i, ErrMissingField))
			}
		}
	}

	return errors.Join(errs...)
}

// Source returns the descriptor with the given name.
func (c *Config) Source(name string) (domain.SourceDescriptor, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return domain.SourceDescriptor{}, false
}

// Timeout returns the HTTP timeout, or zero when unset.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.HTTPTimeout)
}

// ── Duration ───────────────────────────────────────────────

// Duration is a time.Duration decoded from a string such as "90s" or "10m".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"10m\": %w", err)
	}
	return d.set(s)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.set(node.Value)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) set(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("duration %q is negative", s)
	}
	*d = Duration(v)
	return nil
}
