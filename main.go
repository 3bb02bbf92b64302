package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/deddy77/Moun-project/config"
	"github.com/deddy77/Moun-project/handler"
	"github.com/deddy77/Moun-project/hub"
	"github.com/deddy77/Moun-project/repo"
	"github.com/deddy77/Moun-project/service"
	"github.com/deddy77/Moun-project/task"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using environment")
	}
	cfg := config.Load()
	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	h := hub.New()
	var events hub.Broadcaster = h
	if cfg.RedisURL != "" {
		bridge, err := hub.NewRedisBridge(ctx, cfg.RedisURL, h)
		if err != nil {
			log.Fatalf("redis bridge: %v", err)
		}
		defer bridge.Close()
		go bridge.Run(ctx)
		events = bridge
		log.Println("event fan-out through redis enabled")
	}

	svc := service.New(store, events, cfg.TokenTTL)

	if cfg.RedisURL != "" {
		checker := task.NewStatusChecker(svc, cfg.StatusFile)
		go func() {
			if err := task.Run(cfg.RedisURL, checker); err != nil {
				log.Printf("status checker stopped: %v", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.CORS(handler.NewServer(svc, h, cfg.UploadDir).Routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("listening on %s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}

// openStore connects to PostgreSQL, or falls back to the in-memory store when
// DATABASE_URL is explicitly empty. The in-memory store loses everything on
// restart and exists for local development only.
func openStore(ctx context.Context, cfg config.Config) (service.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Println("DATABASE_URL empty, using in-memory store")
		return repo.NewMemStore(), nil
	}
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, err
	}
	r := repo.New(db)
	if cfg.Migrate {
		if err := r.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		log.Println("schema ensured")
	}
	return r, nil
}
