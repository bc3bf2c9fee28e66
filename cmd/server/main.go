package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"triage-advisor/internal/cache"
	"triage-advisor/internal/config"
	"triage-advisor/internal/core"
	"triage-advisor/internal/db"
	httpserver "triage-advisor/internal/http"
	"triage-advisor/internal/llm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open database connection
	dbConn, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer dbConn.Close()
	dbConn.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	dbConn.SetMaxIdleConns(cfg.Database.MaxOpenConns / 2)
	dbConn.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := dbConn.PingContext(pingCtx); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}
	if cfg.Database.Migrate {
		if err := db.Migrate(ctx, dbConn); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
	}
	repo := db.NewRepository(dbConn)

	lexicon := core.DefaultLexicon()
	if cfg.Lexicon.Path != "" {
		if lexicon, err = core.LoadLexicon(cfg.Lexicon.Path); err != nil {
			log.Fatalf("failed to load lexicon: %v", err)
		}
	}
	log.Printf("Loaded lexicon with %d symptoms", lexicon.Len())

	opts := core.Options{Timeout: cfg.Backend.Timeout, Fallback: cfg.Backend.Fallback}
	var llmClient llm.Client
	if cfg.BackendEnabled() {
		llmClient = llm.NewOpenAIClient(llm.Config{
			APIKey:  cfg.Backend.APIKey,
			BaseURL: cfg.Backend.BaseURL,
			Model:   cfg.Backend.Model,
		})
		log.Printf("Using reasoning backend %s (fallback=%t)", cfg.Backend.Model, cfg.Backend.Fallback)

		if cfg.Cache.RedisAddr != "" {
			rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
			defer rdb.Close()
			if err := rdb.Ping(ctx).Err(); err != nil {
				log.Printf("Redis unavailable, result cache disabled: %v", err)
			} else {
				opts.Cache = cache.NewResultCache(rdb, cfg.Cache.TTL)
				log.Println("Connected to Redis")
			}
		}
	} else {
		log.Println("OPENAI_API_KEY not set, classifying with rules only")
	}
	triage := core.NewTriageService(core.NewRuleClassifier(lexicon), llmClient, opts)

	notifier := db.NewNotifier(dbConn, cfg.Database.URL, cfg.Notify.Channel)
	feed := db.NewBroadcaster()
	if events, err := notifier.Listen(ctx); err != nil {
		log.Printf("advisory stream disabled: %v", err)
		feed = nil
	} else {
		go feed.Run(events)
	}

	var streams httpserver.Feed
	if feed != nil {
		streams = feed
	}
	srv := &http.Server{
		Addr:        ":" + cfg.HTTP.Port,
		Handler:     httpserver.NewServer(repo, triage, notifier, streams),
		ReadTimeout: 30 * time.Second,
		// no WriteTimeout: advisory streams stay open
		IdleTimeout: 120 * time.Second,
		// requests end with the process so open streams do not hold up Shutdown
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Printf("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown failed: %v", err)
	}
	log.Println("Server stopped")
}
