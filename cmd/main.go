package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"peerbay/backend/internal/api/handler"
	"peerbay/backend/internal/calls"
	"peerbay/backend/internal/chathub"
	"peerbay/backend/internal/config"
	"peerbay/backend/internal/models"
	"peerbay/backend/internal/ratelimit"
	"peerbay/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupDependencies(cfg config.Config) (*gorm.DB, *redis.Client) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect PostgreSQL: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       0,
	})

	ctx := context.Background()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.Message{},
		&models.Block{},
		&models.CallHistoryRecord{},
	)
	if err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Database and Redis connections established, migrations complete.")
	return db, rdb
}

func main() {
	log.Println("Starting Peerbay realtime backend...")

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}
	cfg := config.Load()

	db, rdb := setupDependencies(cfg)
	s := storage.NewStorageService(db, rdb)

	limiter := ratelimit.NewLimiter(config.DefaultRatePolicies())
	hub := chathub.NewHub(s, limiter)
	callMgr := calls.NewManager(s, hub, calls.DefaultOptions())
	hub.SetCallService(callMgr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)                                  // main dispatcher
	go hub.RunTypingSweeper(ctx)                     // stale typing marks
	go callMgr.RunSweeper(ctx, config.SweepInterval) // stuck calls + history retention
	go limiter.RunSweeper(ctx, config.SweepInterval) // expired rate windows

	r := gin.Default()
	h := handler.NewHandler(hub, callMgr, s, cfg.JWTSecret)

	r.GET("/token", h.GetToken)    // dev-only credential issuance
	r.GET("/ws", h.ServeWebSocket) // WebSocket upgrade

	authed := r.Group("/", h.RequireAuth())
	authed.GET("/conversations", h.ListConversations)
	authed.GET("/conversations/:id/messages", h.ListMessages)
	authed.GET("/calls/history", h.CallHistory)
	authed.GET("/calls/recent", h.RecentCalls)
	authed.POST("/blocks", h.CreateBlock)
	authed.DELETE("/blocks/:id", h.DeleteBlock)

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	log.Fatal(server.ListenAndServe())
}
