package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/zhouzirui/codementor/backend/internal/config"
	"github.com/zhouzirui/codementor/backend/internal/handler"
	speechHandler "github.com/zhouzirui/codementor/backend/internal/handler/speech"
	"github.com/zhouzirui/codementor/backend/internal/model/persona"
	"github.com/zhouzirui/codementor/backend/internal/service/ai"
	"github.com/zhouzirui/codementor/backend/internal/service/chat"
	"github.com/zhouzirui/codementor/backend/internal/service/playback"
	"github.com/zhouzirui/codementor/backend/internal/service/speech"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	aiClient, err := ai.NewClient(ctx, cfg.AI)
	if err != nil {
		log.Fatalf("failed to initialize chat client: %v", err)
	}
	if closer, ok := aiClient.(io.Closer); ok {
		defer closer.Close()
	}
	log.Printf("chat client initialized (provider=%s)", cfg.AI.Provider)

	personaStore := persona.NewMemoryStore(persona.Seed())
	chatService := chat.NewService(aiClient, personaStore, nil)

	var generator speechHandler.Generator
	if cfg.Speech.Enabled {
		var cache speech.Store
		if store := openCache(ctx, cfg.Cache); store != nil {
			defer store.Close()
			cache = store
		}
		speechService, err := speech.New(cfg.Speech, cache, cfg.Cache.TTL)
		if err != nil {
			log.Fatalf("failed to initialize speech service: %v", err)
		}
		generator = speechService
		log.Printf("speech service initialized (provider=%s voice=%s)", cfg.Speech.Provider, cfg.Speech.Voice)
	} else {
		log.Println("speech disabled by configuration, playback unavailable")
	}

	router := handler.NewRouter(handler.Dependencies{
		Personas:       personaStore,
		Chat:           chatService,
		Speech:         generator,
		SpeechProvider: cfg.Speech.Provider,
		Playback:       playbackOptions(cfg.Playback),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	startServer(ctx, cfg.Server, router)
}

// openCache connects the synthesis cache; failures only disable caching.
func openCache(ctx context.Context, cfg config.CacheConfig) *speech.RedisStore {
	if cfg.RedisURL == "" {
		return nil
	}
	store, err := speech.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		log.Printf("warning: speech cache unavailable: %v", err)
		return nil
	}
	log.Printf("speech cache enabled (ttl=%s)", cfg.TTL)
	return store
}

func playbackOptions(cfg config.PlaybackConfig) *playback.Options {
	opts := playback.DefaultOptions()
	if cfg.StartDelay > 0 {
		opts.StartDelay = cfg.StartDelay
	}
	if cfg.StopDelay > 0 {
		opts.StopDelay = cfg.StopDelay
	}
	return opts
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("CodeMentor backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
