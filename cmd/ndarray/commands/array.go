package commands

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/qri-io/ndarray-go"
)

func newCreateCmd(a *app) *cobra.Command {
	var (
		shape, chunks, blocks string
		dtype, codec, fill    string
		mode                  string
		level                 int
		filters               []string
	)

	cmd := &cobra.Command{
		Use:   "create PATH",
		Short: "Create an array filled with a constant",
		Example: `  ndarray create temps --shape 365,720,1440 --dtype '<f4' --fill 0
  ndarray create ids --shape 1000000 --dtype '<u8' --codec zstd --level 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dims, err := parseDims(shape)
			if err != nil {
				return err
			}
			dt, err := ndarray.ParseDtype(dtype)
			if err != nil {
				return err
			}

			kv, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			opts := append(a.options(),
				ndarray.WithDtype(dt),
				ndarray.WithStore(kv),
				ndarray.WithPath(args[0]),
				ndarray.WithMode(ndarray.PersistenceMode(mode)),
			)
			comp := a.cfg.Compression
			if cmd.Flags().Changed("codec") {
				comp.Codec = codec
			}
			if cmd.Flags().Changed("level") {
				comp.Level = level
				if comp.Codec == "" {
					comp.Codec = ndarray.CodecLZ4
				}
			}
			if comp.Codec != "" {
				opts = append(opts, ndarray.WithCodec(comp.Codec, comp.Level))
			}
			if cmd.Flags().Changed("filters") {
				comp.Filters = filters
			}
			if len(comp.Filters) > 0 {
				opts = append(opts, ndarray.WithFilters(comp.Filters...))
			}
			c, err := parseDims(chunks)
			if err != nil {
				return err
			}
			if c != nil {
				opts = append(opts, ndarray.WithChunks(c...))
			}
			b, err := parseDims(blocks)
			if err != nil {
				return err
			}
			if b != nil {
				opts = append(opts, ndarray.WithBlocks(b...))
			}

			var arr *ndarray.NDArray
			if fill == "" {
				arr, err = ndarray.Zeros(dims, opts...)
			} else {
				v, perr := parseScalar(dt, fill)
				if perr != nil {
					return perr
				}
				arr, err = ndarray.Full(dims, v, opts...)
			}
			if err != nil {
				return err
			}
			defer arr.Close()

			a.logger.Info("array created", "path", args[0], "shape", arr.Shape(), "chunks", arr.ChunkShape())
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s %s chunks %s blocks %s\n",
				args[0], arr.Dtype(), formatDims(arr.Shape()), formatDims(arr.ChunkShape()), formatDims(arr.BlockShape()))
			return nil
		},
	}

	cmd.Flags().StringVar(&shape, "shape", "", "Array extents, comma separated (required)")
	cmd.Flags().StringVar(&dtype, "dtype", "|u1", "Element type, for example <f8 or |S16")
	cmd.Flags().StringVar(&chunks, "chunks", "", "Chunk extents, planned when empty")
	cmd.Flags().StringVar(&blocks, "blocks", "", "Block extents, planned when empty")
	cmd.Flags().StringVar(&codec, "codec", "", "Codec (none|lz4|zstd|gzip), defaults to compression.codec")
	cmd.Flags().IntVar(&level, "level", 5, "Compression level, defaults to compression.level")
	cmd.Flags().StringSliceVar(&filters, "filters", nil, "Filters (shuffle|delta|nofilter)")
	cmd.Flags().StringVar(&fill, "fill", "", "Fill value, zero when empty")
	cmd.Flags().StringVar(&mode, "mode", string(ndarray.ModeWrite), "Persistence mode (w|w-|a)")
	_ = cmd.MarkFlagRequired("shape")
	return cmd
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info PATH",
		Short: "Show the layout and compression of an array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withArray(args[0], ndarray.ModeRead, func(arr *ndarray.NDArray) error {
				var rows [][]string
				for _, it := range arr.InfoItems() {
					rows = append(rows, []string{it.Key, it.Value})
				}
				if cs, ok := arr.Storage().(*ndarray.ChunkStore); ok {
					rows = append(rows,
						[]string{"Bytes", humanize.IBytes(uint64(cs.NBytes()))},
						[]string{"Stored bytes", humanize.IBytes(uint64(cs.CBytes()))},
					)
				}
				printTable(cmd.OutOrStdout(), []string{"Property", "Value"}, rows)
				return nil
			})
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get PATH [INDEX]",
		Short: "Print the elements of a region",
		Example: `  ndarray get temps '0, 10:12, 100:103'
  ndarray get ids -- '-1'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var expr string
			if len(args) == 2 {
				expr = args[1]
			}
			key, err := ndarray.ParseIndex(expr)
			if err != nil {
				return err
			}
			return a.withArray(args[0], ndarray.ModeRead, func(arr *ndarray.NDArray) error {
				buf, err := arr.Get(key...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "shape (%s)\n", formatDims(buf.Shape()))
				fmt.Fprintln(out, strings.Join(formatValues(buf), " "))
				return nil
			})
		},
	}
}

func newSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set PATH INDEX VALUE",
		Short: "Write a scalar to every element of a region",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := ndarray.ParseIndex(args[1])
			if err != nil {
				return err
			}
			return a.withArray(args[0], ndarray.ModeReadWrite, func(arr *ndarray.NDArray) error {
				v, err := parseScalar(arr.Dtype(), args[2])
				if err != nil {
					return err
				}
				if err := arr.SetScalar(key, v); err != nil {
					return err
				}
				a.logger.Info("region written", "path", args[0], "index", args[1])
				return nil
			})
		},
	}
}

func newResizeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resize PATH SHAPE",
		Short: "Grow an array, new elements read as the fill value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dims, err := parseDims(args[1])
			if err != nil {
				return err
			}
			return a.withArray(args[0], ndarray.ModeReadWrite, func(arr *ndarray.NDArray) error {
				if err := arr.Resize(dims...); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "resized %s to %s\n", args[0], formatDims(arr.Shape()))
				return nil
			})
		},
	}
}

func newPlanCmd(a *app) *cobra.Command {
	var shape, dtype, chunks, blocks string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the chunk and block layout planned for a shape",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dims, err := parseDims(shape)
			if err != nil {
				return err
			}
			dt, err := ndarray.ParseDtype(dtype)
			if err != nil {
				return err
			}
			c, err := parseDims(chunks)
			if err != nil {
				return err
			}
			b, err := parseDims(blocks)
			if err != nil {
				return err
			}

			c, b, err = ndarray.Plan(dims, dt.ByteSize, c, b, a.cfg.Target())
			if err != nil {
				return err
			}
			item := int64(dt.ByteSize)
			printTable(cmd.OutOrStdout(), []string{"Level", "Shape", "Bytes"}, [][]string{
				{"array", formatDims(dims), humanize.BigIBytes(new(big.Int).Mul(big.NewInt(product(dims)), big.NewInt(item)))},
				{"chunk", formatDims(c), humanize.IBytes(uint64(product(c) * item))},
				{"block", formatDims(b), humanize.IBytes(uint64(product(b) * item))},
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&shape, "shape", "", "Array extents, comma separated (required)")
	cmd.Flags().StringVar(&dtype, "dtype", "|u1", "Element type")
	cmd.Flags().StringVar(&chunks, "chunks", "", "Fixed chunk extents")
	cmd.Flags().StringVar(&blocks, "blocks", "", "Fixed block extents")
	_ = cmd.MarkFlagRequired("shape")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the library version",
		// skip config loading
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ndarray %s\n", ndarray.Version)
		},
	}
}

func product(dims []int64) int64 {
	n := int64(1)
	for _, d := range dims {
		n *= d
	}
	return n
}
