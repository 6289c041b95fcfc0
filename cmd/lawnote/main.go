// Command lawnote turns raw law study notes into a validated, deduplicated
// corpus of concepts, cases, principles, and rules.
//
// Extract two note files, fold them into the stored corpus, and export:
//
//	go run ./cmd/lawnote \
//	  -notes ./notes/torts.md -notes ./notes/contracts.pdf \
//	  -provider gemini -model gemini-2.0-flash \
//	  -xlsx corpus.xlsx
//
// Query the stored corpus without calling the completion service:
//
//	go run ./cmd/lawnote -search "duty of care"
//	go run ./cmd/lawnote -recent 10
//
// Re-export the stored corpus as it stands:
//
//	go run ./cmd/lawnote -json corpus.json
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	lawnote "github.com/Yan-sudo/law-note-restructurer"
	"github.com/Yan-sudo/law-note-restructurer/export"
	"github.com/Yan-sudo/law-note-restructurer/extract"
	"github.com/Yan-sudo/law-note-restructurer/llm"
)

// stringSlice implements flag.Value for multi-value string flags.
type stringSlice []string

func (s *stringSlice) String() string { return strings.Join(*s, ", ") }
func (s *stringSlice) Set(val string) error {
	*s = append(*s, val)
	return nil
}

func main() {
	var notes stringSlice

	var (
		configPath  = flag.String("config", "", "Path to JSON or YAML config file")
		dbPath      = flag.String("db", "", "Path to SQLite corpus database (overrides config)")
		provider    = flag.String("provider", "", "Completion provider (overrides config)")
		model       = flag.String("model", "", "Model name (overrides config)")
		apiKey      = flag.String("api-key", "", "Provider API key (default: from env)")
		stream      = flag.Bool("stream", false, "Print raw completion text to stderr as it arrives")
		autoRetry   = flag.Int("auto-retry", 0, "Extra extraction rounds after a failed one")
		noMerge     = flag.Bool("no-merge", false, "Extract without updating the stored corpus")
		xlsxOut     = flag.String("xlsx", "", "Write the corpus as an xlsx workbook to this path")
		jsonOut     = flag.String("json", "", "Write the corpus as a JSON document to this path")
		searchQuery = flag.String("search", "", "Full-text search the stored corpus and exit")
		recentN     = flag.Int("recent", 0, "Print the N newest extraction log records and exit")
		logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	)
	flag.Var(&notes, "notes", "Path to a note file: txt, md, or pdf (repeatable)")
	flag.Parse()

	// Load .env before reading the environment; a missing file is fine.
	_ = godotenv.Load()

	cfg := lawnote.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = lawnote.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "lawnote: %v\n", err)
			os.Exit(1)
		}
	}
	cfg.ApplyEnv()

	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *provider != "" {
		cfg.Provider = *provider
	}
	if *model != "" {
		cfg.Model = *model
	}
	if *apiKey != "" {
		cfg.APIKey = *apiKey
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *stream {
		cfg.Stream = true
	}

	// Structured JSON logging on stderr; stdout carries results.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	})))

	queryOnly := *searchQuery != "" || *recentN > 0
	exportOnly := len(notes) == 0 && (*xlsxOut != "" || *jsonOut != "")
	if len(notes) == 0 && !queryOnly && !exportOnly {
		fmt.Fprintln(os.Stderr, "lawnote: nothing to do; pass -notes, -search, -recent, or an export flag")
		flag.Usage()
		os.Exit(2)
	}

	eng, err := lawnote.New(cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *searchQuery != "" {
		runSearch(ctx, eng, *searchQuery)
		return
	}
	if *recentN > 0 {
		runRecent(ctx, eng, *recentN)
		return
	}

	var batch *extract.ExtractionBatch
	var matrix *extract.RelationshipMatrix
	if exportOnly {
		b, m, err := eng.Corpus(ctx)
		if err != nil {
			fail("loading corpus", err)
		}
		batch, matrix = b, m
	} else {
		batch, matrix = runPipeline(ctx, eng, notes, *autoRetry, *noMerge, cfg.Stream)
	}

	if *xlsxOut != "" {
		if err := export.WriteXLSX(*xlsxOut, batch, matrix); err != nil {
			fail("writing workbook", err)
		}
		slog.Info("wrote workbook", "path", *xlsxOut)
	}
	if *jsonOut != "" {
		if err := export.WriteJSON(*jsonOut, batch, matrix); err != nil {
			fail("writing json export", err)
		}
		slog.Info("wrote json export", "path", *jsonOut)
	}

	fmt.Printf("concepts=%d cases=%d principles=%d rules=%d relationships=%d\n",
		len(batch.Concepts), len(batch.Cases), len(batch.Principles),
		len(batch.Rules), len(matrix.Entries))
}

// runPipeline extracts the note files, relates cases to concepts, and folds
// the result into the stored corpus unless merging is disabled.
func runPipeline(ctx context.Context, eng lawnote.Engine, notes []string, autoRetry int, noMerge, stream bool) (*extract.ExtractionBatch, *extract.RelationshipMatrix) {
	var opts []lawnote.ExtractOption
	if autoRetry > 0 {
		opts = append(opts, lawnote.WithAutoRetry(autoRetry))
	}
	if stream {
		opts = append(opts, lawnote.WithStreamHandler(func(delta, _ string) {
			fmt.Fprint(os.Stderr, delta)
		}))
	}

	batch, err := eng.ExtractFromFiles(ctx, notes, opts...)
	if stream {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		fail("extraction", err)
	}

	matrix, err := eng.BuildMatrix(ctx, batch)
	if err != nil {
		fail("relationship matrix", err)
	}

	if noMerge {
		slog.Info("skipping corpus merge")
		return batch, matrix
	}

	batch, matrix, err = eng.MergeIntoCorpus(ctx, batch, matrix)
	if err != nil {
		fail("corpus merge", err)
	}
	return batch, matrix
}

func runSearch(ctx context.Context, eng lawnote.Engine, query string) {
	hits, err := eng.Search(ctx, query, 20)
	if err != nil {
		fail("search", err)
	}
	if len(hits) == 0 {
		fmt.Println("no matches")
		return
	}
	for _, h := range hits {
		fmt.Printf("%-9s  %-28s  %s\n", h.Kind, h.EntityID, h.Snippet)
	}
}

func runRecent(ctx context.Context, eng lawnote.Engine, n int) {
	recs, err := eng.RecentExtractions(ctx, n)
	if err != nil {
		fail("listing extractions", err)
	}
	if len(recs) == 0 {
		fmt.Println("no extractions logged")
		return
	}
	for _, rec := range recs {
		line := fmt.Sprintf("%s  %-9s  %-16s  stage=%d tokens=%d  %s",
			rec.CreatedAt, rec.Status, rec.Source, rec.RepairStage, rec.TokensUsed, rec.Model)
		if rec.Error != "" {
			line += "  " + rec.Error
		}
		fmt.Println(line)
	}
}

// fail logs a terminal pipeline error and exits. Transport faults are named
// by kind; structural failures already carry a preview of the raw text.
func fail(stage string, err error) {
	if kind := llm.KindOf(err); kind != llm.FaultUnknown {
		slog.Error(stage+" failed", "fault", kind.String(), "error", err)
	} else {
		slog.Error(stage+" failed", "error", err)
	}
	os.Exit(1)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
