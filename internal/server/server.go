package server

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"skycrash/internal/cache"
	"skycrash/internal/database"
	"skycrash/internal/game"
)

type FiberServer struct {
	*fiber.App

	db     database.Service
	cache  cache.Service
	engine *game.Engine
	hub    *game.Hub
	ledger game.Ledger

	cronSecret string
	adminToken string
	cancelBg   context.CancelFunc
}

func New() *FiberServer {
	db := database.New()

	redisService := cache.New()
	if redisService == nil {
		log.Fatal("[SERVER] Redis is required for game functionality")
	}
	client := redisService.Client()

	cfg := game.ConfigFromEnv()
	store := game.NewRedisStore(client, cfg.HistorySize)
	ledger := game.NewRedisLedger(client)
	publisher := game.NewRedisPublisher(client)
	generator := game.NewGenerator(cfg)
	engine := game.NewEngine(cfg, store, ledger, publisher, generator, db)
	hub := game.NewHub(client)

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "skycrash",
			AppName:       "skycrash",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		db:         db,
		cache:      redisService,
		engine:     engine,
		hub:        hub,
		ledger:     ledger,
		cronSecret: os.Getenv("CRON_SECRET"),
		adminToken: os.Getenv("ADMIN_TOKEN"),
	}

	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	bgCtx, cancel := context.WithCancel(context.Background())
	server.cancelBg = cancel

	go hub.Run(bgCtx)
	if cfg.AdvanceInterval > 0 {
		go engine.Run(bgCtx, cfg.AdvanceInterval)
	}

	log.Printf("[SERVER] Game engine started (strategy=%s)", cfg.Strategy)

	return server
}

// Shutdown stops the background drivers and closes connections.
func (s *FiberServer) Shutdown() error {
	log.Println("[SERVER] Shutting down...")

	if s.cancelBg != nil {
		s.cancelBg()
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}

	return s.App.Shutdown()
}
