// Command shardindexd runs the shard index server and its offline index
// builder.
//
// Logging follows the same design as the rest of the tree: a single
// slog.TextHandler writing to stderr at LevelDebug, wrapped in a
// logging.ComponentFilterHandler so per-component verbosity can be
// raised or lowered at runtime without touching the handler itself.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"shardindex/internal/columnar"
	"shardindex/internal/config"
	"shardindex/internal/filter"
	"shardindex/internal/indexer"
	"shardindex/internal/logging"
	"shardindex/internal/query"
	"shardindex/internal/server"
	"shardindex/internal/trie"
)

func main() {
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug, // filtering is done by ComponentFilterHandler
	})
	filterHandler := logging.NewComponentFilterHandler(baseHandler, slog.LevelInfo)
	logger := slog.New(filterHandler)

	rootCmd := &cobra.Command{
		Use:   "shardindexd",
		Short: "Probabilistic shard index server and builder",
	}

	rootCmd.PersistentFlags().String("config", "", "path to a JSON config file (flags override its values)")

	rootCmd.AddCommand(newServeCmd(logger), newBuildIndexCmd(logger))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}

	if cmd.Flags().Changed("host") {
		cfg.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("index-root") {
		cfg.IndexRoot, _ = cmd.Flags().GetString("index-root")
	}
	if cmd.Flags().Changed("source-name") {
		cfg.SourceName, _ = cmd.Flags().GetString("source-name")
	}
	if cmd.Flags().Changed("artifact-ext") {
		cfg.ArtifactExt, _ = cmd.Flags().GetString("artifact-ext")
	}
	if cmd.Flags().Changed("range-filter-threshold") {
		threshold, _ := cmd.Flags().GetUint64("range-filter-threshold")
		cfg.RangeFilterThreshold = threshold
	}
	if cmd.Flags().Changed("error-rate") {
		cfg.ErrorRate, _ = cmd.Flags().GetFloat64("error-rate")
	}
	if cmd.Flags().Changed("chunk-read-timeout") {
		cfg.ChunkReadTimeout, _ = cmd.Flags().GetDuration("chunk-read-timeout")
	}

	return cfg, nil
}

func newServeCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the TCP request server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			return runServe(ctx, logger, cfg)
		},
	}

	cmd.Flags().String("host", "", "listen host (default: config or "+config.Default().Host+")")
	cmd.Flags().Int("port", 0, "listen port")
	cmd.Flags().String("index-root", "", "root directory of previously built filter artifacts")
	cmd.Flags().String("source-name", "", "top-level source segment under which discovered artifacts are inserted")
	cmd.Flags().String("artifact-ext", "", "file suffix identifying a column artifact, e.g. .filter")
	cmd.Flags().Uint64("range-filter-threshold", 0, "distinct-value count above which a numeric/temporal column gets a range filter")
	cmd.Flags().Float64("error-rate", 0, "target Bloom filter false-positive rate")
	cmd.Flags().Duration("chunk-read-timeout", 0, "per-chunk read timeout for an in-progress connection")

	return cmd
}

func runServe(ctx context.Context, logger *slog.Logger, cfg config.Config) error {
	idx := trie.New(filter.Load, logger)

	if err := indexer.Discover(cfg.IndexRoot, cfg.SourceName, cfg.ArtifactExt, idx, logger); err != nil {
		return fmt.Errorf("discover index: %w", err)
	}
	logger.Info("index loaded", "artifacts", idx.Size())

	engine := query.NewEngine(idx, cfg.ArtifactExt)

	srv := server.New(server.Config{
		ChunkReadTimeout:     cfg.ChunkReadTimeout,
		WriteTimeout:         cfg.ChunkReadTimeout,
		ConnectionsPerSecond: cfg.ConnectionsPerSecond,
		ConnectionBurst:      cfg.ConnectionBurst,
	}, logger)
	srv.Register("search", server.SearchHandler(engine))
	srv.Register("ping", server.PingHandler())
	srv.Register("bloom", server.BloomHandler())
	srv.Register("message", server.MessageHandler())

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	}

	return srv.Serve(ctx, listener)
}

func newBuildIndexCmd(logger *slog.Logger) *cobra.Command {
	var shardDir, outputDir, schemaPath, sourceSuffix string
	var rangeFilterThreshold uint64
	var errorRate float64

	cmd := &cobra.Command{
		Use:   "build-index",
		Short: "Build filter artifacts for every shard under a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := loadSchema(schemaPath)
			if err != nil {
				return fmt.Errorf("load schema: %w", err)
			}

			locations, err := discoverShardFiles(shardDir, sourceSuffix)
			if err != nil {
				return fmt.Errorf("discover shards: %w", err)
			}

			reader := columnar.NewJSONLReader(schema, columnar.NewLocalBlobStore(""))
			policy := indexer.Policy{RangeFilterThreshold: rangeFilterThreshold, ErrorRate: errorRate}
			ix := indexer.New(reader, policy, outputDir, ".filter", logger)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			ix.BuildAll(ctx, locations)
			logger.Info("build complete", "shards", len(locations))
			return nil
		},
	}

	cmd.Flags().StringVar(&shardDir, "shard-dir", "", "directory of newline-delimited JSON shard files (required)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory to write built filter artifacts into (required)")
	cmd.Flags().StringVar(&schemaPath, "schema", "", "path to a JSON file mapping column name to type (required)")
	cmd.Flags().StringVar(&sourceSuffix, "suffix", ".jsonl", "shard file suffix to discover under shard-dir")
	cmd.Flags().Uint64Var(&rangeFilterThreshold, "range-filter-threshold", indexer.DefaultPolicy().RangeFilterThreshold, "distinct-value threshold for choosing a range filter")
	cmd.Flags().Float64Var(&errorRate, "error-rate", indexer.DefaultPolicy().ErrorRate, "target Bloom filter false-positive rate")
	cmd.MarkFlagRequired("shard-dir")
	cmd.MarkFlagRequired("output-dir")
	cmd.MarkFlagRequired("schema")

	return cmd
}

// loadSchema reads a JSON object mapping column name to a declared type
// name (string, int, float, or timestamp) into a filter.DType schema.
func loadSchema(path string) (map[string]filter.DType, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	schema := make(map[string]filter.DType, len(raw))
	for col, typeName := range raw {
		dtype, err := filter.ParseDType(typeName)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col, err)
		}
		schema[col] = dtype
	}
	return schema, nil
}

func discoverShardFiles(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var locations []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if suffix != "" && !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		locations = append(locations, filepath.Join(dir, entry.Name()))
	}
	return locations, nil
}
