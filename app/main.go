package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/feedloom/feedloom/app/agent"
	"github.com/feedloom/feedloom/app/api"
	"github.com/feedloom/feedloom/app/cfg"
	"github.com/feedloom/feedloom/app/database"
	"github.com/feedloom/feedloom/app/feed"
	"github.com/feedloom/feedloom/app/source"
)

// refreshTick is the cadence of the background pass that picks up due
// feeds; the feeds themselves refresh on their own configured intervals.
const refreshTick = time.Minute

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Feedloom", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	sourceRepo := database.NewSourceRepository(db)
	folderRepo := database.NewFolderRepository(db)
	feedRepo := database.NewFeedRepository(db)
	postRepo := database.NewPostRepository(db)
	scriptRepo := database.NewScriptRepository(db)
	scriptFolderRepo := database.NewScriptFolderRepository(db)
	logRepo := database.NewLogRepository(db)

	httpClient := &http.Client{Timeout: 30 * time.Second}

	deps := source.Deps{
		Sources:                sourceRepo,
		Folders:                folderRepo,
		Feeds:                  feedRepo,
		Posts:                  postRepo,
		Scripts:                scriptRepo,
		ScriptFolders:          scriptFolderRepo,
		Logs:                   logRepo,
		Fetcher:                feed.NewFetcher(httpClient, appCfg.UserAgent),
		Parser:                 feed.NewParser(),
		HTTPClient:             httpClient,
		UserAgent:              appCfg.UserAgent,
		DefaultRefreshInterval: time.Duration(appCfg.RefreshInterval) * time.Second,
	}

	if err := ensureLocalSource(sourceRepo); err != nil {
		slog.Error("Failed to ensure local source", "error", err)
		os.Exit(1)
	}

	registry := source.NewRegistry(deps)
	if err := registry.Load(); err != nil {
		slog.Error("Failed to load sources", "error", err)
		os.Exit(1)
	}
	slog.Info("Sources loaded", "count", len(registry.GetSources("")))

	onError := func(sourceID int64, message string) {
		slog.Error("Background job failed", "source_id", sourceID, "message", message)
		if sourceID != 0 {
			if logErr := logRepo.Add(sourceID, 0, database.LogLevelError, message); logErr != nil {
				slog.Warn("Failed to record job failure", "source_id", sourceID, "error", logErr)
			}
		}
	}

	runner := agent.NewRunner(registry, appCfg.WorkerCount, refreshTick, onError)
	runner.Start()
	slog.Info("Agent started", "workers", appCfg.WorkerCount)

	var cache *api.Cache
	if appCfg.RedisAddr != "" {
		cache, err = api.NewCache(appCfg.RedisAddr, time.Duration(appCfg.CacheTTL)*time.Second)
		if err != nil {
			slog.Error("Failed to connect to redis", "addr", appCfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer cache.Close()
		slog.Info("Response cache enabled", "addr", appCfg.RedisAddr)
	}

	handler := api.NewHandler(registry, runner, logRepo, cache)
	engine := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port, "auth", appCfg.APIAccessKey != "")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown error", "error", err)
	}

	runner.JoinAll()
	slog.Info("Shutdown complete")
}

// ensureLocalSource creates the default local source on first run so the
// instance is usable out of the box.
func ensureLocalSource(sources database.SourceRepository) error {
	existing, err := sources.GetSources("")
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	record, err := sources.CreateSource("Local", source.TypeLocal, "")
	if err != nil {
		return err
	}
	slog.Info("Created default local source", "source_id", record.ID)
	return nil
}
