// Package commands implements the ndarray command line tool.
package commands

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/qri-io/ndarray-go"
	"github.com/qri-io/ndarray-go/badgerstore"
)

// app holds the state shared by the commands of one invocation.
type app struct {
	cfg    *Config
	logger *slog.Logger
}

// NewRootCmd builds the ndarray command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	var configPath string

	root := &cobra.Command{
		Use:   "ndarray",
		Short: "Inspect and edit chunked, compressed N-dimensional arrays",
		Long: `ndarray creates, reads and rewrites arrays persisted as compressed chunks
in a directory or a badger database.

Arrays are addressed by a slash separated path inside the store. Index
expressions use slice syntax, for example "2, 1:4, ..." or ":, -1".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(configPath, func(v *viper.Viper) error {
				flags := cmd.Flags()
				for key, name := range map[string]string{
					"store.dir":      "store",
					"store.backend":  "backend",
					"logging.level":  "log-level",
					"logging.format": "log-format",
					"threads":        "threads",
				} {
					if f := flags.Lookup(name); f != nil && f.Changed {
						if err := v.BindPFlag(key, f); err != nil {
							return err
						}
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = NewLogger(cfg.Logging, cmd.ErrOrStderr())
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (yaml, toml or json)")
	root.PersistentFlags().String("store", ".", "Store directory")
	root.PersistentFlags().String("backend", "local", "Store backend (local|badger|memory)")
	root.PersistentFlags().String("log-level", "warn", "Log level (debug|info|warn|error)")
	root.PersistentFlags().String("log-format", "text", "Log format (text|json)")
	root.PersistentFlags().Int("threads", 0, "Parallel chunk workers, 0 for one per CPU")

	root.AddCommand(
		newCreateCmd(a),
		newInfoCmd(a),
		newGetCmd(a),
		newSetCmd(a),
		newResizeCmd(a),
		newPlanCmd(a),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// openStore opens the configured key-value store. The returned close
// function releases it.
func (a *app) openStore() (ndarray.Store, func() error, error) {
	nop := func() error { return nil }
	switch a.cfg.Store.Backend {
	case "memory":
		return ndarray.NewMemoryStore(), nop, nil
	case "badger":
		s, err := badgerstore.Open(a.cfg.Store.Dir, a.logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s, err := ndarray.NewLocalStore(a.cfg.Store.Dir)
		if err != nil {
			return nil, nil, err
		}
		return s, nop, nil
	}
}

// withArray opens the array at path in mode, runs fn and releases
// everything.
func (a *app) withArray(path string, mode ndarray.PersistenceMode, fn func(arr *ndarray.NDArray) error) (err error) {
	kv, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeStore(); err == nil {
			err = cerr
		}
	}()

	arr, err := ndarray.Open(kv, path, mode, a.options()...)
	if ndarray.IsNotFound(err) {
		return fmt.Errorf("no array at %q in %s", path, a.cfg.Store.Dir)
	}
	if err != nil {
		return err
	}
	defer func() {
		if cerr := arr.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(arr)
}

func (a *app) options() []ndarray.Option {
	opts := []ndarray.Option{ndarray.WithLogger(a.logger), ndarray.WithTarget(a.cfg.Target())}
	if a.cfg.Threads > 0 {
		opts = append(opts, ndarray.WithNThreads(a.cfg.Threads))
	}
	return opts
}

// parseDims reads a comma separated list of extents such as "100,200".
func parseDims(s string) ([]int64, error) {
	s = strings.Trim(strings.TrimSpace(s), "()[]")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	dims := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid extent %q", p)
		}
		dims = append(dims, d)
	}
	return dims, nil
}
