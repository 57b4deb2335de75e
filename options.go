package ndarray

import (
	"log/slog"
)

// Option configures array construction, copies and sub-array extraction.
type Option func(*Config)

// Config collects every construction parameter. Fields left unset are
// resolved by the planner and the package defaults.
type Config struct {
	Dtype    Dtype
	dtypeSet bool

	// Chunks and Blocks are planned when nil.
	Chunks []int64
	Blocks []int64

	CParams CParams
	Target  Target

	// Store defaults to a fresh MemoryStore.
	Store Store
	Path  string

	// Mode controls constructors writing into an existing store: ModeWrite
	// (the default) replaces an array at Path, ModeWriteFail refuses to.
	Mode PersistenceMode

	Logger  *slog.Logger
	Metrics Metrics
}

func defaultConfig() *Config {
	return &Config{
		Dtype:   Uint8,
		CParams: DefaultCParams(),
		Target:  DefaultTarget(),
		Mode:    ModeWrite,
	}
}

func newConfig(opts []Option) *Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// storage returns the collaborator configuration for an array of shape. Chunk
// and block shapes are planned here.
func (c *Config) storage(shape []int64, fill []byte) (StorageConfig, error) {
	chunks, blocks, err := Plan(shape, c.Dtype.ByteSize, c.Chunks, c.Blocks, c.Target)
	if err != nil {
		return StorageConfig{}, err
	}
	return StorageConfig{
		Store:     c.Store,
		Path:      c.Path,
		Shape:     shape,
		Chunks:    chunks,
		Blocks:    blocks,
		Dtype:     c.Dtype,
		FillValue: fill,
		CParams:   c.CParams,
		Logger:    c.Logger,
		Metrics:   c.Metrics,
	}, nil
}

// WithDtype sets the element type. The default is |u1.
func WithDtype(dt Dtype) Option {
	return func(c *Config) {
		c.Dtype = dt
		c.dtypeSet = true
	}
}

// WithChunks sets an explicit chunk shape.
func WithChunks(dims ...int64) Option {
	return func(c *Config) {
		c.Chunks = dims
	}
}

// WithBlocks sets an explicit block shape.
func WithBlocks(dims ...int64) Option {
	return func(c *Config) {
		c.Blocks = dims
	}
}

// WithCodec sets the codec name and compression level (0-9, 0 = stored).
func WithCodec(name string, level int) Option {
	return func(c *Config) {
		c.CParams.Codec = name
		c.CParams.Level = level
	}
}

// WithFilters replaces the filter chain applied before compression.
func WithFilters(names ...string) Option {
	return func(c *Config) {
		c.CParams.Filters = names
	}
}

// WithCParams replaces all compression parameters.
func WithCParams(p CParams) Option {
	return func(c *Config) {
		threads := c.CParams.NThreads
		c.CParams = p
		if c.CParams.NThreads <= 0 {
			c.CParams.NThreads = threads
		}
	}
}

// WithNThreads bounds the number of chunks encoded or decoded concurrently.
func WithNThreads(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.CParams.NThreads = n
		}
	}
}

// WithTarget sets the byte budgets used to plan chunk and block shapes.
func WithTarget(t Target) Option {
	return func(c *Config) {
		c.Target = t
	}
}

// WithStore places the array in s instead of a fresh MemoryStore.
func WithStore(s Store) Option {
	return func(c *Config) {
		c.Store = s
	}
}

// WithPath sets the key prefix of the array inside its store.
func WithPath(p string) Option {
	return func(c *Config) {
		c.Path = p
	}
}

// WithMode sets the persistence mode of a constructor.
func WithMode(m PersistenceMode) Option {
	return func(c *Config) {
		c.Mode = m
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

func WithMetrics(m Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}
