package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"opskb/api/internal/app"
	"opskb/api/internal/archive"
	"opskb/api/internal/cache"
	"opskb/api/internal/config"
	"opskb/api/internal/search"
	"opskb/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	pglike := search.NewPgLike(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pglike)
	if meiliClient != nil {
		defer meiliClient.Close()
		searchService.ReindexAllFromStore(ctx)
	}

	var articleCache *cache.ArticleCache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis article projection cache")
		articleCache, err = cache.NewArticleCache(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer articleCache.Close()
	}

	var versionArchive *archive.Service
	if strings.TrimSpace(cfg.ArchiveDir) != "" {
		if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
			log.Fatalf("failed to create archive dir: %v", err)
		}
		versionArchive = archive.New(cfg.ArchiveDir)
	}

	// Nil interface values must stay nil inside the service, so only pass
	// the optional pieces when they are configured.
	service := buildService(cfg, dataStore, searchService, articleCache, versionArchive)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("opskb API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func buildService(cfg config.Config, dataStore *store.PostgresStore, searchService *search.Service, articleCache *cache.ArticleCache, versionArchive *archive.Service) *app.Service {
	var (
		cacheArg   app.ArticleCache
		archiveArg app.VersionArchive
	)
	if articleCache != nil {
		cacheArg = articleCache
	}
	if versionArchive != nil {
		archiveArg = versionArchive
	}
	return app.New(cfg, dataStore, searchService, cacheArg, archiveArg)
}
