package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/qri-io/ndarray-go"
)

// Config is the CLI configuration, read from an optional file, NDARRAY_*
// environment variables and command line flags, in increasing precedence.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
	Planner PlannerConfig `mapstructure:"planner"`

	Compression CompressionConfig `mapstructure:"compression"`

	// Threads bounds parallel chunk work. Zero uses GOMAXPROCS.
	Threads int `mapstructure:"threads" validate:"gte=0"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=local badger memory"`
	Dir     string `mapstructure:"dir" validate:"required_unless=Backend memory"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
}

// PlannerConfig overrides the automatic chunk and block byte targets.
type PlannerConfig struct {
	ChunkBytes ByteSize `mapstructure:"chunk_bytes"`
	BlockBytes ByteSize `mapstructure:"block_bytes"`
}

// CompressionConfig sets the defaults of create. Filters may be given as a
// list or as a comma separated string, e.g. NDARRAY_COMPRESSION_FILTERS=shuffle,delta.
type CompressionConfig struct {
	Codec   string   `mapstructure:"codec" validate:"omitempty,oneof=none lz4 zstd gzip"`
	Level   int      `mapstructure:"level" validate:"gte=0,lte=9"`
	Filters []string `mapstructure:"filters" validate:"dive,oneof=nofilter shuffle delta"`
}

// ByteSize is a byte count that decodes from strings like "4MiB" or "64 kB".
type ByteSize uint64

func (b ByteSize) String() string { return humanize.IBytes(uint64(b)) }

// Target returns the planner targets with the configured overrides applied.
func (c *Config) Target() ndarray.Target {
	t := ndarray.DefaultTarget()
	if c.Planner.ChunkBytes > 0 {
		t.ChunkBytes = int64(c.Planner.ChunkBytes)
	}
	if c.Planner.BlockBytes > 0 {
		t.BlockBytes = int64(c.Planner.BlockBytes)
	}
	return t
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", "local")
	v.SetDefault("store.dir", ".")
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "text")
	v.SetDefault("planner.chunk_bytes", "0")
	v.SetDefault("planner.block_bytes", "0")
	v.SetDefault("threads", 0)
	v.SetDefault("compression.codec", "")
	v.SetDefault("compression.level", 5)
	v.SetDefault("compression.filters", []string{})
}

// LoadConfig reads configuration from configPath, when set, and the
// environment. bind attaches command line flags before unmarshaling.
func LoadConfig(configPath string, bind func(v *viper.Viper) error) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// NDARRAY_STORE_DIR=/data overrides store.dir
	v.SetEnvPrefix("NDARRAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	if bind != nil {
		if err := bind(v); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// configDecodeHooks replaces viper's default hooks, so it carries the
// string to slice conversion along with the custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// byteSizeDecodeHook converts strings and numbers into ByteSize.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			n, err := humanize.ParseBytes(v)
			if err != nil {
				return nil, err
			}
			return ByteSize(n), nil
		case int:
			return ByteSize(v), nil
		case int64:
			return ByteSize(v), nil
		case uint64:
			return ByteSize(v), nil
		case float64:
			return ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// NewLogger builds the slog logger described by cfg, writing to w.
func NewLogger(cfg LoggingConfig, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
