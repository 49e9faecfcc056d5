// Package config loads the TOML run configuration used by the batchstats
// command: which chunk source to open, how its streams are laid out, and how
// minibatches are drawn from it.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/Noofbiz/batchfeed/datasets"
	"github.com/Noofbiz/batchfeed/minibatch"
)

// Source kinds.
const (
	KindCSV    = "csv"
	KindSQLite = "sqlite"
)

// Defaults applied to fields left out of the file.
const (
	DefaultBatchSize    = 32
	DefaultRowsPerChunk = 256
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config is a complete run configuration.
type Config struct {
	Source    SourceConfig    `toml:"source"`
	Streams   []StreamConfig  `toml:"streams"`
	Minibatch MinibatchConfig `toml:"minibatch"`
}

type SourceConfig struct {
	// Kind is "csv" or "sqlite".
	Kind string `toml:"kind"`
	// Path is a glob pattern for csv, a database file for sqlite. Relative
	// paths are resolved against the directory of the configuration file.
	Path string `toml:"path"`
	// RowsPerChunk is only used by csv sources.
	RowsPerChunk int `toml:"rows_per_chunk"`
}

// StreamConfig declares one csv stream. SQLite stores carry their own stream
// declarations, so sqlite configurations have none.
type StreamConfig struct {
	Name    string   `toml:"name"`
	ID      uint32   `toml:"id"`
	Columns []string `toml:"columns"`
	// Shape defaults to [len(Columns)].
	Shape         []int  `toml:"shape"`
	ElementType   string `toml:"element_type"`
	StorageFormat string `toml:"storage_format"`
	IsSequence    bool   `toml:"is_sequence"`
}

type MinibatchConfig struct {
	Size             int    `toml:"size"`
	Randomize        *bool  `toml:"randomize"`
	RepeatInfinitely bool   `toml:"repeat_infinitely"`
	Seed             *int64 `toml:"seed"`
	// MaxBatches bounds the number of minibatches drawn; 0 means until the
	// source is exhausted. Required when RepeatInfinitely is set.
	MaxBatches int `toml:"max_batches"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.Source.Path != "" && !filepath.IsAbs(cfg.Source.Path) {
		cfg.Source.Path = filepath.Join(filepath.Dir(path), cfg.Source.Path)
	}
	return cfg, nil
}

// Parse decodes a TOML document, applies defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("%w: %s", ErrInvalid, strict.String())
		}
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.Source.Kind = strings.ToLower(strings.TrimSpace(c.Source.Kind))
	if c.Source.RowsPerChunk == 0 {
		c.Source.RowsPerChunk = DefaultRowsPerChunk
	}
	if c.Minibatch.Size == 0 {
		c.Minibatch.Size = DefaultBatchSize
	}
	if c.Minibatch.Randomize == nil {
		randomize := true
		c.Minibatch.Randomize = &randomize
	}
	for i := range c.Streams {
		if len(c.Streams[i].Shape) == 0 {
			c.Streams[i].Shape = []int{len(c.Streams[i].Columns)}
		}
	}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func (c *Config) validate() error {
	switch c.Source.Kind {
	case KindCSV:
		if len(c.Streams) == 0 {
			return invalidf("csv source needs at least one [[streams]] entry")
		}
		if c.Source.RowsPerChunk < 0 {
			return invalidf("source.rows_per_chunk must be positive, got %d", c.Source.RowsPerChunk)
		}
	case KindSQLite:
		if len(c.Streams) > 0 {
			return invalidf("sqlite stores declare their own streams; remove [[streams]]")
		}
	case "":
		return invalidf("source.kind is required")
	default:
		return invalidf("unknown source.kind %q (want %q or %q)", c.Source.Kind, KindCSV, KindSQLite)
	}
	if c.Source.Path == "" {
		return invalidf("source.path is required")
	}

	if _, err := c.descriptors(); err != nil {
		return err
	}

	if c.Minibatch.Size < 0 {
		return invalidf("minibatch.size must be positive, got %d", c.Minibatch.Size)
	}
	if c.Minibatch.MaxBatches < 0 {
		return invalidf("minibatch.max_batches must not be negative, got %d", c.Minibatch.MaxBatches)
	}
	if c.Minibatch.RepeatInfinitely && c.Minibatch.MaxBatches == 0 {
		return invalidf("minibatch.max_batches must be set when repeat_infinitely is true")
	}
	return nil
}

func (c *Config) descriptors() ([]minibatch.StreamDescriptor, error) {
	out := make([]minibatch.StreamDescriptor, 0, len(c.Streams))
	seen := make(map[string]bool, len(c.Streams))
	for i, s := range c.Streams {
		if seen[s.Name] {
			return nil, invalidf("stream %q declared twice", s.Name)
		}
		seen[s.Name] = true
		if len(s.Columns) == 0 {
			return nil, invalidf("streams[%d] (%q) has no columns", i, s.Name)
		}

		format, err := minibatch.ParseStorageFormat(s.StorageFormat)
		if err != nil {
			return nil, invalidf("streams[%d]: %v", i, err)
		}
		elemType, err := minibatch.ParseElementType(s.ElementType)
		if err != nil {
			return nil, invalidf("streams[%d]: %v", i, err)
		}
		d := minibatch.StreamDescriptor{
			Name:          s.Name,
			ID:            s.ID,
			StorageFormat: format,
			ElementType:   elemType,
			SampleShape:   append([]int(nil), s.Shape...),
			IsSequence:    s.IsSequence,
		}
		if err := d.Validate(); err != nil {
			return nil, invalidf("streams[%d]: %v", i, err)
		}
		if d.SampleSize() != len(s.Columns) {
			return nil, invalidf("stream %q has %d columns but shape %v holds %d values",
				s.Name, len(s.Columns), s.Shape, d.SampleSize())
		}
		out = append(out, d)
	}
	return out, nil
}

// StreamDescriptors returns the declared stream descriptors, in file order.
func (c *Config) StreamDescriptors() []minibatch.StreamDescriptor {
	d, _ := c.descriptors()
	return d
}

// OpenSource opens the configured chunk source. The returned close function
// releases it and must be called once the source is no longer needed.
func (c *Config) OpenSource() (minibatch.ChunkSource, func() error, error) {
	switch c.Source.Kind {
	case KindCSV:
		streams := make([]datasets.CSVStream, len(c.Streams))
		for i, d := range c.StreamDescriptors() {
			streams[i] = datasets.CSVStream{Descriptor: d, Columns: c.Streams[i].Columns}
		}
		src, err := datasets.NewCSVSource(c.Source.Path, c.Source.RowsPerChunk, streams)
		if err != nil {
			return nil, nil, err
		}
		return src, func() error { return nil }, nil
	case KindSQLite:
		src, err := datasets.OpenSQLite(c.Source.Path)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	}
	return nil, nil, invalidf("unknown source.kind %q", c.Source.Kind)
}

// Options translates the [minibatch] section into minibatch options.
func (c *Config) Options() []minibatch.Option {
	opts := []minibatch.Option{
		minibatch.WithRandomize(*c.Minibatch.Randomize),
		minibatch.WithRepeatInfinitely(c.Minibatch.RepeatInfinitely),
	}
	if c.Minibatch.Seed != nil {
		opts = append(opts, minibatch.WithSeed(*c.Minibatch.Seed))
	}
	return opts
}
