// Package main is the Kensaku CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/cli"
	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/indexer"
	"github.com/hyperjump/kensaku/internal/keyword"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/internal/server"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kensaku/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "insert":
		runInsert()
	case "delete":
		runDelete()
	case "rebuild":
		runRebuild()
	case "persist":
		runPersist()
	case "status":
		runStatus()
	case "history":
		runHistory()
	case "version", "--version", "-v":
		fmt.Printf("kensaku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	rebuild := fs.Bool("rebuild", false, "rebuild the vector index from the store before serving")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if cfg.Vector.RebuildOnStart || *rebuild || components.Sync.LoadError() != nil {
		if _, err := components.Sync.RebuildFromStore(ctx); err != nil {
			logger.Error("startup rebuild failed; serving with an empty vector index", zap.Error(err))
		}
	}

	srv := server.NewServer(
		components.Engine,
		components.Sync,
		components.Store,
		components.History,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
	if cfg.Vector.PersistOnShutdown {
		if err := components.Sync.Persist(shutdownCtx); err != nil {
			logger.Warn("vector index persist on shutdown failed", zap.Error(err))
		}
	}
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kensaku search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Modes:
  • full_text (alias text): keyword search over title, content and string metadata.
  • semantic (alias vector): nearest neighbours of --embedding.
  • hybrid: both, deduplicated (full-text copy wins) and ranked by score.

Examples:
  kensaku search machine learning
  kensaku search --mode semantic --embedding 0.1,0.2,0.3,0.4
  kensaku search --mode hybrid --embedding 1,0,0,0 --filter doc_type=article quantum
  kensaku search --fuzzy propodal                    # typo-tolerant search
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchConfigPathFromArgs returns the -config/--config value from args, or defaultPath.
func searchConfigPathFromArgs(args []string, defaultPath string) string {
	for i, a := range args {
		if (a == "-config" || a == "--config") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return defaultPath
}

// searchLimitDefaultFromConfig loads config at path and returns its default result limit.
// On load failure, returns config.DefaultSearchLimit.
func searchLimitDefaultFromConfig(path string) int {
	cfg, _, err := loadConfig(path)
	if err != nil || cfg == nil {
		return config.DefaultSearchLimit
	}
	return cfg.Search.DefaultLimit
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// kvFlag collects repeated key=value flags. Values that parse as numbers or booleans are typed.
type kvFlag map[string]interface{}

func (f kvFlag) String() string {
	parts := make([]string, 0, len(f))
	for k, v := range f {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, ",")
}

func (f kvFlag) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	f[key] = parseScalar(value)
	return nil
}

func parseScalar(s string) interface{} {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])
	configPathFromArgs := searchConfigPathFromArgs(searchArgs, defaultConfigPath)
	defaultLimit := searchLimitDefaultFromConfig(configPathFromArgs)

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode, and search defaults)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open storage directly when the server is not running)")
	mode := fs.String("mode", "full_text", "search mode: full_text|text, semantic|vector, hybrid")
	embeddingStr := fs.String("embedding", "", "query embedding, comma-separated floats")
	limit := fs.Int("limit", defaultLimit, "number of results")
	userID := fs.String("user", "", "user id recorded in search history")
	fuzzyEnabled := fs.Bool("fuzzy", false, "enable fuzzy matching for typo tolerance")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	filter := kvFlag{}
	fs.Var(filter, "filter", "metadata filter key=value (repeatable)")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}
	embedding, err := utils.ParseEmbedding(*embeddingStr)
	if err != nil {
		fatalf("Invalid --embedding: %v", err)
	}
	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" && len(embedding) == 0 {
		printSearchUsage(fs)
		os.Exit(1)
	}

	searchQuery := &models.SearchQuery{
		Query:     queryStr,
		Mode:      *mode,
		Embedding: embedding,
		Limit:     *limit,
		UserID:    *userID,
		Fuzzy:     *fuzzyEnabled,
	}
	if len(filter) > 0 {
		searchQuery.Filter = models.Filter(filter)
	}

	var response *models.SearchResponse
	if *serverURL != "" {
		// Use HTTP API when server is running (avoids Bleve/SQLite lock conflict).
		response, err = newAPIClient(*serverURL).Search(searchQuery)
	} else {
		response, err = withComponents(*configPath, func(ctx context.Context, c *Components) (*models.SearchResponse, error) {
			return c.Engine.Search(ctx, searchQuery)
		})
	}
	if err != nil {
		fatalf("Search failed: %v", err)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runInsert() {
	fs := flag.NewFlagSet("insert", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open storage directly)")
	id := fs.String("id", "", "document id (required)")
	embeddingStr := fs.String("embedding", "", "document embedding, comma-separated floats (required)")
	title := fs.String("title", "", "document title")
	content := fs.String("content", "", "document content")
	docType := fs.String("type", "", "document type")
	meta := kvFlag{}
	fs.Var(meta, "meta", "extra metadata key=value (repeatable)")
	_ = fs.Parse(os.Args[2:])

	if *id == "" || *embeddingStr == "" {
		fmt.Println("Usage: kensaku insert --id <id> --embedding <floats> [--title t] [--content c] [--meta k=v]")
		os.Exit(1)
	}
	embedding, err := utils.ParseEmbedding(*embeddingStr)
	if err != nil {
		fatalf("Invalid --embedding: %v", err)
	}
	metadata := map[string]interface{}(meta)
	for k, v := range map[string]string{models.FieldTitle: *title, models.FieldContent: *content, models.FieldDocType: *docType} {
		if v != "" {
			metadata[k] = v
		}
	}
	input := &models.DocumentInput{ID: *id, Embedding: embedding, Metadata: metadata}

	if *serverURL != "" {
		err = newAPIClient(*serverURL).Insert(input)
	} else {
		_, err = withComponents(*configPath, func(ctx context.Context, c *Components) (struct{}, error) {
			return struct{}{}, directInsert(ctx, c, input)
		})
	}
	if err != nil {
		fatalf("Insert failed: %v", err)
	}
	fmt.Printf("Inserted %s\n", *id)
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open storage directly)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kensaku delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	var err error
	if *serverURL != "" {
		err = newAPIClient(*serverURL).Delete(docID)
	} else {
		_, err = withComponents(*configPath, func(ctx context.Context, c *Components) (struct{}, error) {
			return struct{}{}, c.Sync.DeleteDocument(ctx, docID)
		})
	}
	if err != nil {
		fatalf("Delete failed: %v", err)
	}
	fmt.Printf("Deleted %s (vector entry is purged on the next rebuild)\n", docID)
}

func runRebuild() {
	fs := flag.NewFlagSet("rebuild", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open storage directly and persist the result)")
	_ = fs.Parse(os.Args[2:])

	var (
		stats *indexer.RebuildStats
		err   error
	)
	if *serverURL != "" {
		stats, err = newAPIClient(*serverURL).Rebuild()
	} else {
		stats, err = withComponents(*configPath, func(ctx context.Context, c *Components) (*indexer.RebuildStats, error) {
			st, err := c.Sync.RebuildFromStore(ctx)
			if err != nil {
				return nil, err
			}
			return st, c.Sync.Persist(ctx)
		})
	}
	if err != nil {
		fatalf("Rebuild failed: %v", err)
	}
	fmt.Printf("Rebuilt vector index: %d indexed, %d skipped in %s\n", stats.Indexed, stats.Skipped, stats.Duration)
}

func runPersist() {
	fs := flag.NewFlagSet("persist", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(os.Args[2:])

	n, err := newAPIClient(*serverURL).Persist()
	if err != nil {
		fatalf("Persist failed: %v", err)
	}
	fmt.Printf("Persisted %d vectors\n", n)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open storage directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var (
		status *statusResponse
		err    error
	)
	if *serverURL != "" {
		status, err = newAPIClient(*serverURL).Status()
	} else {
		status, err = withComponents(*configPath, func(ctx context.Context, c *Components) (*statusResponse, error) {
			return localStatus(ctx, c)
		})
	}
	if err != nil {
		fatalf("Status failed: %v", err)
	}

	switch *outputFormat {
	case "json":
		if err := printJSON(status); err != nil {
			fatalf("Output failed: %v", err)
		}
	case "text":
		printStatusText(status)
	default:
		fatalf("Unknown output format %q; use text or json", *outputFormat)
	}
}

func printStatusText(status *statusResponse) {
	vi := status.VectorIndex
	fmt.Printf("documents:          %d   # documents in the metadata store\n", status.Documents)
	fmt.Printf("vectors:            %d   # entries in the vector index\n", vi.Vectors)
	fmt.Printf("duplicates:         %d   # stale entries from re-inserts (cleared by rebuild)\n", vi.Duplicates)
	if status.DiskUsageBytes != nil {
		fmt.Printf("disk_usage_bytes:   %d   # storage + indices on disk\n", *status.DiskUsageBytes)
	}
	if vi.LoadError != "" {
		fmt.Printf("load_error:         %s\n", vi.LoadError)
	}
	fmt.Println()
	fmt.Println("# configuration")
	fmt.Printf("vector_index_type:  %s\n", vi.IndexType)
	fmt.Printf("dimensions:         %d\n", vi.Dimensions)
	if vi.IndexPath != "" {
		fmt.Printf("vector_index_path:  %s\n", vi.IndexPath)
	}
	if vi.MappingPath != "" {
		fmt.Printf("vector_mapping:     %s\n", vi.MappingPath)
	}
	if status.Config != nil {
		if status.Config.DatabasePath != "" {
			fmt.Printf("database_path:      %s\n", status.Config.DatabasePath)
		}
		if status.Config.BleveIndexPath != "" {
			fmt.Printf("bleve_index_path:   %s\n", status.Config.BleveIndexPath)
		}
		if status.Config.Compression != "" {
			fmt.Printf("compression:        %s\n", status.Config.Compression)
		}
	}
}

func runHistory() {
	args := os.Args[2:]
	action := "list"
	if len(args) > 0 && (args[0] == "list" || args[0] == "clear") {
		action, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet("history", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	userID := fs.String("user", "", "only this user's history")
	limit := fs.Int("limit", 20, "number of records (list)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(args)

	client := newAPIClient(*serverURL)
	switch action {
	case "clear":
		n, err := client.ClearHistory(*userID)
		if err != nil {
			fatalf("Clear history failed: %v", err)
		}
		fmt.Printf("Deleted %d history records\n", n)
	default:
		format, err := cli.ParseOutputFormat(*outputFormat)
		if err != nil {
			fatalf("%v", err)
		}
		records, err := client.History(*userID, *limit)
		if err != nil {
			fatalf("History failed: %v", err)
		}
		if err := cli.WriteHistory(os.Stdout, records, format); err != nil {
			fatalf("Output failed: %v", err)
		}
	}
}

// Components holds initialized services.
type Components struct {
	Config  *config.Config
	Store   *storage.Store
	History storage.HistoryStore
	Sync    *indexer.Synchronizer
	Engine  *search.Engine
}

// Close releases the keyword index and the database.
func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	db, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}
	store := storage.NewStore(db, keywordIndex, logger)

	sync, err := indexer.New(ctx, store, cfg, indexer.WithLogger(logger))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	logger.Info("vector index initialized",
		zap.String("type", cfg.Vector.IndexType),
		zap.Int("dimensions", cfg.Vector.Dimensions),
		zap.Int("vectors", sync.Size()))

	engineOpts := []search.EngineOption{search.WithLogger(logger)}
	var history storage.HistoryStore
	if cfg.Search.HistoryEnabledOrDefault() {
		history = store.History()
		engineOpts = append(engineOpts, search.WithHistory(history))
	}
	engine := search.NewEngine(store, sync, &cfg.Search, engineOpts...)

	return &Components{
		Config:  cfg,
		Store:   store,
		History: history,
		Sync:    sync,
		Engine:  engine,
	}, nil
}

// recoverIndex rebuilds the vector index from the store when the persisted artifacts failed to load.
func (c *Components) recoverIndex(ctx context.Context) error {
	if c.Sync.LoadError() == nil {
		return nil
	}
	if _, err := c.Sync.RebuildFromStore(ctx); err != nil {
		return fmt.Errorf("rebuild after load failure: %w", err)
	}
	return nil
}

// directInsert inserts one document and persists the index, rebuilding first if the
// persisted index could not be loaded so the artifacts are never replaced by a partial index.
func directInsert(ctx context.Context, c *Components, input *models.DocumentInput) error {
	if err := c.recoverIndex(ctx); err != nil {
		return err
	}
	if err := c.Sync.InsertDocument(ctx, input); err != nil {
		return err
	}
	return c.Sync.Persist(ctx)
}

// withComponents opens storage directly for one command. Only safe while the server is not running.
func withComponents[T any](configPath string, fn func(context.Context, *Components) (T, error)) (T, error) {
	var zero T
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return zero, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return zero, fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()
	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return zero, err
	}
	defer components.Close()
	return fn(ctx, components)
}

func localStatus(ctx context.Context, c *Components) (*statusResponse, error) {
	docCount, err := c.Store.Count(ctx)
	if err != nil {
		return nil, err
	}
	st := c.Config.Storage
	status := &statusResponse{
		Documents:   docCount,
		VectorIndex: c.Sync.Stats(),
		Config: &statusConfigResponse{
			DatabasePath:      st.DatabasePath,
			BleveIndexPath:    st.BleveIndexPath,
			VectorIndexPath:   st.VectorIndexPath,
			VectorMappingPath: st.VectorMappingPath,
			Compression:       c.Config.Vector.Compression,
			HistoryEnabled:    c.History != nil,
		},
	}
	if footprint, err := storage.MeasureFootprint(st.DatabasePath, st.BleveIndexPath, st.VectorIndexPath, st.VectorMappingPath); err == nil {
		total := footprint.Total()
		status.DiskUsage = &footprint
		status.DiskUsageBytes = &total
	}
	return status, nil
}

func printUsage() {
	fmt.Println(`kensaku - Hybrid vector and full-text search engine

Usage:
  kensaku server [flags]               Start the HTTP server
  kensaku search [flags] <query>       Search documents (full_text, semantic, hybrid)
  kensaku insert [flags]               Insert a document with its embedding
  kensaku delete [flags] <id>          Delete a document from the store
  kensaku rebuild [flags]              Rebuild the vector index from the store
  kensaku persist [flags]              Write the vector index to disk
  kensaku status [flags]               Show store/index status
  kensaku history [list|clear] [flags] Show or clear search history
  kensaku version                      Show version
  kensaku help                         Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kensaku/config.yaml)
  --debug            Enable debug logging
  --rebuild          Rebuild the vector index before serving

Common Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" to open storage directly.

Examples:
  kensaku server
  kensaku insert --id doc1 --embedding 1,0,0,0 --title "First" --meta lang=en
  kensaku search "machine learning"
  kensaku search --mode hybrid --embedding 1,0,0,0 --filter doc_type=article quantum
  kensaku search --output json "query"
  kensaku rebuild
  kensaku history --user alice
  kensaku status --output json`)
}
