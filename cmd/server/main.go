package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	lawnote "github.com/Yan-sudo/law-note-restructurer"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON or YAML config file")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := lawnote.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = lawnote.LoadConfig(*configPath)
		if err != nil {
			slog.Error("loading config", "error", err)
			os.Exit(1)
		}
	}
	cfg.ApplyEnv()

	// Bearer token for the HTTP surface, distinct from the provider key.
	apiKey := os.Getenv("LAWNOTE_SERVER_TOKEN")

	engine, err := lawnote.New(cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	h := newHandler(engine)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /extract", h.handleExtract)
	mux.HandleFunc("POST /matrix", h.handleMatrix)
	mux.HandleFunc("POST /merge", h.handleMerge)
	mux.HandleFunc("GET /corpus", h.handleCorpus)
	mux.HandleFunc("GET /search", h.handleSearch)
	mux.HandleFunc("GET /export/xlsx", h.handleExportXLSX)
	mux.HandleFunc("GET /recent", h.handleRecent)
	mux.HandleFunc("GET /health", h.handleHealth)

	// Middleware chain: recovery -> auth -> logging -> mux
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = authMiddleware(apiKey, handler)
	handler = recoveryMiddleware(handler)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // extraction calls can be long
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
