package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"anibridge/api"
	"anibridge/config"
	"anibridge/handlers"
	"anibridge/services/animeids"
	"anibridge/services/credentials"
	"anibridge/services/mal"
	"anibridge/utils"

	"github.com/spf13/afero"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {

	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	fmt.Println("🚀 anibridge Starting...")

	// Determine config path (env or default)
	configPath := os.Getenv("ANIBRIDGE_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	// Init config manager and load settings (creates defaults if missing)
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			// Redirect standard log to both console and file
			multiWriter := io.MultiWriter(os.Stdout, fileWriter)
			log.SetOutput(multiWriter)
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			slog.SetDefault(slog.New(slog.NewTextHandler(multiWriter, nil)))
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	// Apply port override if specified
	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	store, err := credentials.NewStore(afero.NewOsFs(), settings.Credentials.Path)
	if err != nil {
		log.Fatalf("failed to initialise credential store: %v", err)
	}

	malClient := mal.NewClient(settings.Upstream.TokenURL, settings.Upstream.APIBaseURL)
	tokenManager := mal.NewTokenManager(store, malClient)
	fetcher := mal.NewFetcher(malClient, tokenManager, store)
	crossRef := animeids.NewClient(settings.Upstream.AnimeIDsURL)

	// Warm up the access token so the first request doesn't pay for the
	// exchange round-trip. Failure is not fatal; credentials may arrive later.
	if _, err := tokenManager.EnsureValidToken(); err != nil {
		slog.Warn("startup token warmup failed", "error", err)
	} else {
		slog.Info("startup token warmup complete")
	}

	// Construct router
	r := utils.NewRouter()

	animelistHandler := handlers.NewAnimelistHandler(fetcher, crossRef, store)
	limiter := api.NewIPRateLimiter(rate.Every(time.Second), 10)
	api.Register(r, animelistHandler, limiter)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Setup graceful shutdown
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("🛑 Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
