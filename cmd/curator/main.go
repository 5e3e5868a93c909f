// Package main is the curator CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/curator/internal/chunking"
	"github.com/hyperjump/curator/internal/cli"
	"github.com/hyperjump/curator/internal/config"
	"github.com/hyperjump/curator/internal/embedding"
	"github.com/hyperjump/curator/internal/extract"
	"github.com/hyperjump/curator/internal/ingest"
	"github.com/hyperjump/curator/internal/keyword"
	"github.com/hyperjump/curator/internal/metrics"
	"github.com/hyperjump/curator/internal/models"
	"github.com/hyperjump/curator/internal/retrieval"
	"github.com/hyperjump/curator/internal/server"
	"github.com/hyperjump/curator/internal/storage"
	"github.com/hyperjump/curator/internal/vector"
	"github.com/hyperjump/curator/internal/watcher"
	"github.com/hyperjump/curator/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/curator/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default and config.yaml
// exists in the current directory, that file is used instead.
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
	case "serve", "server":
		runServe()
	case "ingest":
		runIngest()
	case "search":
		runSearch()
	case "retrieve":
		runRetrieve()
	case "stats":
		runStats()
	case "items":
		runItems()
	case "version", "--version", "-v":
		fmt.Printf("curator version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config, builds the logger, and initializes components.
// Failures exit the process.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, components
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	ingestFirst := fs.Bool("ingest", false, "run an ingestion before serving")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	if *ingestFirst {
		if report, err := components.Pipeline.Run(context.Background(), cfg.Data.Dir); err != nil {
			logger.Error("initial ingestion failed", zap.Error(err))
		} else {
			logger.Info("initial ingestion finished", zap.Int("chunks", report.Chunks))
		}
	}

	var watchSvc *watcher.Watcher
	if cfg.Watch.Enabled {
		watchSvc = newCatalogWatcher(cfg, components.Pipeline, logger)
		if err := watchSvc.Start(context.Background()); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
	}

	srv := server.NewServer(
		components.Engine,
		components.Pipeline,
		components.Storage,
		components.Index,
		components.Metrics,
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
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// watchRoots returns the directories the watcher follows and the file types
// it reacts to.
func watchRoots(cfg *config.Config) ([]string, []string) {
	roots := []string{cfg.Data.Dir}
	exts := append([]string{}, extract.WorkbookExtensions...)
	if cfg.Data.GuideDir != "" && cfg.Data.GuideDir != cfg.Data.Dir {
		roots = append(roots, cfg.Data.GuideDir)
		exts = append(exts, extract.GuideExtensions...)
	}
	return roots, exts
}

// newCatalogWatcher re-ingests the data directory when files settle.
// Removed workbooks are purged first so their chunks do not outlive them.
func newCatalogWatcher(cfg *config.Config, pipeline *ingest.Pipeline, logger *zap.Logger) *watcher.Watcher {
	roots, exts := watchRoots(cfg)
	return watcher.NewWatcher(roots, exts, func(b watcher.Batch) {
		ctx := context.Background()
		if len(b.Removed) > 0 {
			if err := pipeline.RemoveSources(ctx, b.Removed); err != nil {
				logger.Warn("watch remove failed", zap.Strings("paths", b.Removed), zap.Error(err))
			}
		}
		_, err := pipeline.Run(ctx, cfg.Data.Dir)
		switch {
		case errors.Is(err, ingest.ErrRunInProgress):
			logger.Info("watch re-ingest skipped, run in progress")
		case err != nil:
			logger.Warn("watch re-ingest failed", zap.Error(err))
		}
	},
		watcher.WithLogger(logger),
		watcher.WithDebounce(cfg.Watch.Debounce),
	)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = ingest directly; use when the server is not running)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := mustFormat(*outputFormat)

	var report models.IngestReport
	if *serverURL != "" {
		if err := postJSON(*serverURL+"/api/v1/ingest", struct{}{}, &report); err != nil {
			fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()

		var r *models.IngestReport
		var err error
		if fs.NArg() > 0 {
			r, err = components.Pipeline.IngestFiles(context.Background(), fs.Args())
		} else {
			r, err = components.Pipeline.Run(context.Background(), cfg.Data.Dir)
		}
		if r != nil {
			report = *r
		}
		if err != nil {
			if r != nil {
				_ = cli.WriteReport(os.Stdout, r, format)
			}
			fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cli.WriteReport(os.Stdout, &report, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// buildSearchQuery joins all positional args with spaces so multi-word
// queries work with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves flags that follow the query to the front so flag.Parse
// sees them.
func argsReorder(args []string) []string {
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

// parseFilters turns "key=value" pairs into a metadata filter.
func parseFilters(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid filter %q (want key=value)", p)
		}
		out[k] = v
	}
	return out, nil
}

type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: curator search [flags] <query>\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  curator search 互动装置
  curator search -by technique RFID
  curator search -by zone A区 -top-k 10
  curator search -filter type=tech_info 声音
  curator search -output json 光影回廊
`)
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = search local storage when the server is not running)")
	topK := fs.Int("top-k", 0, "number of results (0 = configured default)")
	by := fs.String("by", "", "search kind: zone, category, author, technique, item (empty = general)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	var filters stringList
	fs.Var(&filters, "filter", "metadata filter key=value (repeatable)")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(argsReorder(os.Args[2:]))

	query := buildSearchQuery(fs.Args())
	if query == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format := mustFormat(*outputFormat)
	filter, err := parseFilters(filters)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	req := &models.SearchRequest{Query: query, TopK: *topK, By: models.SearchKind(*by), Filter: filter}

	var results []*models.RetrievalResult
	if *serverURL != "" {
		var resp struct {
			Results []*models.RetrievalResult `json:"results"`
		}
		if err := postJSON(*serverURL+"/api/v1/search", req, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		results = resp.Results
	} else {
		cfg, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		if err := req.Validate(cfg.Retrieval.DefaultTopK, cfg.Retrieval.MaxTopK); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		results = components.Engine.Do(context.Background(), req)
	}
	if err := cli.WriteSearchResults(os.Stdout, query, results, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runRetrieve() {
	fs := flag.NewFlagSet("retrieve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use local storage)")
	topK := fs.Int("top-k", 0, "number of passages (0 = configured default)")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	query := buildSearchQuery(fs.Args())
	if query == "" {
		fmt.Println("Usage: curator retrieve [flags] <query>")
		os.Exit(1)
	}
	req := &models.SearchRequest{Query: query, TopK: *topK}

	var text string
	if *serverURL != "" {
		var resp struct {
			Context string `json:"context"`
		}
		if err := postJSON(*serverURL+"/api/v1/retrieve", req, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Retrieve failed: %v\n", err)
			os.Exit(1)
		}
		text = resp.Context
	} else {
		cfg, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		if err := req.Validate(cfg.Retrieval.DefaultTopK, cfg.Retrieval.MaxTopK); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		text = components.Engine.Retrieve(context.Background(), req.Query, req.TopK)
	}
	fmt.Println(text)
}

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use local storage)")
	refresh := fs.Bool("refresh", false, "recompute instead of using the cached snapshot")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := mustFormat(*outputFormat)

	var stats *models.CollectionStats
	if *serverURL != "" {
		stats = &models.CollectionStats{}
		if err := getJSON(fmt.Sprintf("%s/api/v1/stats?refresh=%t", *serverURL, *refresh), stats); err != nil {
			fmt.Fprintf(os.Stderr, "Stats failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		_, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		var err error
		stats, err = components.Engine.Statistics(context.Background(), *refresh)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Stats failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cli.WriteStats(os.Stdout, stats, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runItems() {
	fs := flag.NewFlagSet("items", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use local storage)")
	offset := fs.Int("offset", 0, "first item to list")
	limit := fs.Int("limit", 50, "number of items")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := mustFormat(*outputFormat)

	var page struct {
		Items []*models.Item `json:"items"`
		Total int64          `json:"total"`
	}
	if *serverURL != "" {
		url := fmt.Sprintf("%s/api/v1/items?offset=%d&limit=%d", *serverURL, *offset, *limit)
		if err := getJSON(url, &page); err != nil {
			fmt.Fprintf(os.Stderr, "Items failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		_, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		ctx := context.Background()
		var err error
		if page.Items, err = components.Storage.ListItems(ctx, *offset, *limit); err != nil {
			fmt.Fprintf(os.Stderr, "Items failed: %v\n", err)
			os.Exit(1)
		}
		if page.Total, err = components.Storage.CountItems(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Items failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cli.WriteItems(os.Stdout, page.Items, page.Total, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func mustFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func postJSON(url string, body, out interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func getJSON(url string, out interface{}) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Components holds initialized services.
type Components struct {
	Storage  storage.Storage
	Index    keyword.ItemIndex
	Store    vector.Store
	Embedder embedding.Embedder
	Manager  *embedding.Manager
	Metrics  *metrics.Metrics
	Engine   *retrieval.Engine
	Pipeline *ingest.Pipeline
}

// Close flushes the vector store and releases every component.
func (c *Components) Close() {
	if c.Manager != nil {
		_ = c.Manager.Flush(context.Background())
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{Metrics: metrics.NewMetrics()}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	index, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize item index: %w", err)
	}
	c.Index = index

	embedder, err := embedding.NewEmbedder(embedding.Options{
		Provider: embedding.Provider(cfg.Embedding.Provider),
		ONNX: embedding.ONNXConfig{
			ModelDir:    cfg.Embedding.ModelDir,
			LibraryPath: cfg.Embedding.LibraryPath,
			MaxTokens:   cfg.Embedding.MaxTokens,
			BatchSize:   cfg.Embedding.BatchSize,
		},
		HashDimensions: cfg.Embedding.HashDimensions,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = embedder
	logger.Info("embedder initialized",
		zap.String("provider", cfg.Embedding.Provider),
		zap.Int("dimensions", embedder.Dimensions()))

	vs, err := vector.NewStore(vector.Options{
		Backend:      cfg.Vector.Backend,
		SnapshotPath: cfg.Vector.SnapshotPath,
		ChromaURL:    cfg.Vector.ChromaURL,
		Embedder:     embedder,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	c.Store = vs

	c.Manager = embedding.NewManager(embedder, vs,
		embedding.WithBatchSize(cfg.Embedding.BatchSize),
		embedding.WithQueryCache(cfg.Embedding.CacheSize),
		embedding.WithManagerLogger(logger),
	)

	if _, err := c.Manager.GetOrCreateCollection(context.Background(), cfg.Vector.Collection); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open collection %s: %w", cfg.Vector.Collection, err)
	}

	policy, err := chunking.NewPolicy(cfg.Chunking.ChunkingOptions()...)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("invalid chunking config: %w", err)
	}

	c.Engine = retrieval.NewEngine(c.Manager, cfg.Vector.Collection,
		retrieval.WithPolicy(cfg.Retrieval.Policy),
		retrieval.WithMaxCandidates(cfg.Retrieval.MaxCandidates),
		retrieval.WithStatsTTL(cfg.Retrieval.StatsTTL),
		retrieval.WithResolver(index),
		retrieval.WithMetrics(c.Metrics),
		retrieval.WithLogger(logger),
	)

	c.Pipeline = ingest.NewPipeline(c.Manager, policy,
		ingest.WithCollection(cfg.Vector.Collection),
		ingest.WithGuideDir(cfg.Data.GuideDir),
		ingest.WithStorage(store),
		ingest.WithItemIndex(index),
		ingest.WithMetrics(c.Metrics),
		ingest.WithLogger(logger),
		ingest.WithHook(func(*models.IngestReport) { c.Engine.InvalidateStats() }),
	)
	return c, nil
}

func printUsage() {
	fmt.Println(`curator - Exhibition catalog retrieval service

Usage:
  curator serve [flags]            Start the HTTP server
  curator ingest [flags] [files]   Ingest the data directory (or the given workbooks)
  curator search [flags] <query>   Search the catalog
  curator retrieve [flags] <query> Print retrieval context for a query
  curator stats [flags]            Show collection statistics
  curator items [flags]            List catalog items
  curator version                  Show version
  curator help                     Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/curator/config.yaml)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for local storage.
  --output string    Output format: text or json (default: text)

Serve Flags:
  --debug            Enable debug logging
  --ingest           Run an ingestion before serving

Search Flags:
  --top-k int        Number of results (default from config)
  --by string        zone, category, author, technique, or item
  --filter key=val   Metadata filter (repeatable)

Examples:
  curator serve --ingest
  curator ingest
  curator search -by technique RFID
  curator retrieve 有哪些互动装置
  curator stats --refresh
  curator items --limit 20`)
}
