package model

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	FormatJSON      = "json"
	FormatText      = "text"
	FormatCycloneDX = "cyclonedx"

	DefaultMaxSize          = 50 * 1024 * 1024
	DefaultParallel         = 4
	DefaultMinStringLen     = 4
	DefaultMaxStrings       = 1000
	DefaultEntropyThreshold = 7.5
	DefaultLSBThreshold     = 7.5
	DefaultPreviewBytes     = 256
)

//go:embed config.cue
var cueSource []byte

var (
	cueMx  sync.Mutex // cue.Context is not safe for concurrent use
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource, cue.Filename("config.cue"))
	if compiled.Err() != nil {
		panic(compiled.Err())
	}
	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version  int      `json:"version" yaml:"version" toml:"version"` // fixed 0 for now
	Verbose  bool     `json:"verbose" yaml:"verbose" toml:"verbose"`
	Analysis Analysis `json:"analysis" yaml:"analysis" toml:"analysis"`
	Output   Output   `json:"output" yaml:"output" toml:"output"`
	Profile  *Profile `json:"profile,omitempty" yaml:"profile,omitempty" toml:"profile,omitempty"`
}

// Analysis tunes the detectors and the ingestion limits.
type Analysis struct {
	MaxSize          int64   `json:"max_size" yaml:"max_size" toml:"max_size"`
	Parallel         int     `json:"parallel" yaml:"parallel" toml:"parallel"`
	MinStringLen     int     `json:"min_string_len" yaml:"min_string_len" toml:"min_string_len"`
	MaxStrings       int     `json:"max_strings" yaml:"max_strings" toml:"max_strings"` // 0 => unlimited
	EntropyThreshold float64 `json:"entropy_threshold" yaml:"entropy_threshold" toml:"entropy_threshold"`
	LSBThreshold     float64 `json:"lsb_threshold" yaml:"lsb_threshold" toml:"lsb_threshold"`
	PreviewBytes     int     `json:"preview_bytes" yaml:"preview_bytes" toml:"preview_bytes"`
}

type Output struct {
	Format string `json:"format" yaml:"format" toml:"format"` // "json" | "text" | "cyclonedx"
	// Database is a SQLite file keeping the history of reports, empty
	// disables it.
	Database string `json:"database,omitempty" yaml:"database,omitempty" toml:"database,omitempty"`
}

// Profile extends the built in signature tables.
type Profile struct {
	// Extensions maps a file extension to the MIME type it claims.
	Extensions map[string]string `json:"extensions,omitempty" yaml:"extensions,omitempty" toml:"extensions,omitempty"`
	// Markers maps a MIME type to its end-of-format marker, hex encoded.
	Markers map[string]string `json:"markers,omitempty" yaml:"markers,omitempty" toml:"markers,omitempty"`
	// TextMarkers lists the MIME types whose marker may be followed by
	// newlines.
	TextMarkers []string `json:"text_markers,omitempty" yaml:"text_markers,omitempty" toml:"text_markers,omitempty"`
	ZipLike     []string `json:"zip_like,omitempty" yaml:"zip_like,omitempty" toml:"zip_like,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Version: 0,
		Analysis: Analysis{
			MaxSize:          DefaultMaxSize,
			Parallel:         DefaultParallel,
			MinStringLen:     DefaultMinStringLen,
			MaxStrings:       DefaultMaxStrings,
			EntropyThreshold: DefaultEntropyThreshold,
			LSBThreshold:     DefaultLSBThreshold,
			PreviewBytes:     DefaultPreviewBytes,
		},
		Output: Output{Format: FormatJSON},
	}
}

// LoadConfig decodes YAML from r on top of DefaultConfig and validates the
// result. Unknown keys are rejected.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadTOMLConfig is LoadConfig for TOML documents.
func LoadTOMLConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("decoding config: unknown keys %s", strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks c against the #Config schema. The returned error joins a
// *ConfigError per offending path.
func (c Config) Validate() error {
	cueMx.Lock()
	defer cueMx.Unlock()

	v := cueCtx.Encode(c)
	if v.Err() != nil {
		return fmt.Errorf("encoding config: %w", v.Err())
	}
	unified := schema.Unify(v)
	err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	)
	if err == nil {
		return nil
	}
	details := humanize(err, v)
	if len(details) == 0 {
		return fmt.Errorf("validating config: %w", err)
	}
	errs := make([]error, len(details))
	for i, d := range details {
		errs[i] = d
	}
	return errors.Join(errs...)
}

// ApplyEnv overrides config values from SLEUTH_* variables returned by
// lookup. Empty values are ignored.
func ApplyEnv(c Config, lookup func(string) string) (Config, error) {
	var errs []error
	if v := lookup("SLEUTH_MAX_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("SLEUTH_MAX_SIZE: %w", err))
		} else {
			c.Analysis.MaxSize = n
		}
	}
	if v := lookup("SLEUTH_PARALLEL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SLEUTH_PARALLEL: %w", err))
		} else {
			c.Analysis.Parallel = n
		}
	}
	if v := lookup("SLEUTH_FORMAT"); v != "" {
		c.Output.Format = strings.ToLower(v)
	}
	if v := lookup("SLEUTH_DB"); v != "" {
		c.Output.Database = v
	}
	if v := lookup("SLEUTH_VERBOSE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SLEUTH_VERBOSE: %w", err))
		} else {
			c.Verbose = b
		}
	}
	if len(errs) > 0 {
		return c, errors.Join(errs...)
	}
	return c, c.Validate()
}
