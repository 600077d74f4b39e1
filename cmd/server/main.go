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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"fraudulert-backend/internal/auth"
	"fraudulert-backend/internal/cache"
	"fraudulert-backend/internal/handlers"
	"fraudulert-backend/internal/identity"
	"fraudulert-backend/internal/ingest"
	"fraudulert-backend/internal/natsbus"
	"fraudulert-backend/internal/rpc"
	"fraudulert-backend/internal/scorerauth"
	"fraudulert-backend/internal/services"
	"fraudulert-backend/internal/storage"
	"fraudulert-backend/internal/users"
	"fraudulert-backend/internal/workers"
)

// @title           Fraudulert Backend API
// @version         1.0
// @description     Identity bridging, tenant-scoped account ingestion and fraud prediction gateway.
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if os.Getenv("JWT_SECRET") == "" {
		log.Fatal("JWT_SECRET is required")
	}

	// Database connection (with retries)
	var db *sqlx.DB
	var err error
	for i := 0; i < 10; i++ {
		db, err = sqlx.Connect("postgres", buildDSN())
		if err == nil {
			break
		}
		log.Printf("DB connection attempt %d failed: %v", i+1, err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	// NATS connection
	natsClient, err := natsbus.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer natsClient.Close()

	// Redis cache
	redisClient, err := cache.NewRedisClient()
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Storage
	store := storage.NewStorage(db)

	// Identity provider bridge
	provider := identity.NewClient()

	// Session issuer and user lifecycle
	locks := auth.NewIdentityLocks()
	issuer := auth.NewIssuer(store, provider, redisClient, locks)
	userService := users.NewService(store, provider, issuer)

	// RPC client for on-demand scoring
	rpcClient := rpc.NewClient(natsClient.NC())

	// Services
	scorerClient := services.NewScorerClient()
	alertClient := services.NewAlertClient()

	// Scorer credential issuer (optional; enrollment disabled when unset)
	var jwtIssuer *scorerauth.JWTIssuer
	if seed := os.Getenv("NATS_SIGNING_KEY_SEED"); seed != "" {
		jwtIssuer, err = scorerauth.NewJWTIssuer(seed, os.Getenv("NATS_ACCOUNT_PUBLIC_KEY"))
		if err != nil {
			log.Fatalf("Failed to init NATS JWT issuer: %v", err)
		}
	} else {
		log.Println("WARN NATS_SIGNING_KEY_SEED not set; scorer enrollment disabled")
	}

	// Start consumers and workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	predictionsConsumer := ingest.NewPredictionsConsumer(natsClient.JS(), store, alertClient)
	if err := predictionsConsumer.Start(ctx); err != nil {
		log.Fatalf("Failed to start predictions consumer: %v", err)
	}

	workers.StartRiskReconciler(ctx, store)

	// HTTP handlers
	authHandler := auth.NewHandler(issuer, store)
	userHandler := users.NewHandler(userService)
	gateway := handlers.New(store, ingest.NewAccountIngestor(store), scorerClient, rpcClient)
	tokenHandler := scorerauth.NewTokenHandler(store, jwtIssuer)
	enrollmentHandler := scorerauth.NewEnrollmentHandler(store, jwtIssuer, scorerauth.EnrollmentConfig{
		NATSURLs: natsURLs(),
	})

	// Router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	handlers.RegisterRoutes(r, redisClient, authHandler, userHandler, gateway, tokenHandler, enrollmentHandler)

	server := &http.Server{
		Addr:    ":" + getEnv("PORT", "8080"),
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("Shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		_ = predictionsConsumer.Stop()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Printf("Server starting on %s", server.Addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server stopped")
}

func buildDSN() string {
	return "host=" + getEnv("DB_HOST", "localhost") +
		" user=" + getEnv("DB_USER", "fraudulert_user") +
		" password=" + getEnv("DB_PASSWORD", "fraudulert_pass") +
		" dbname=" + getEnv("DB_NAME", "fraudulert") +
		" sslmode=disable"
}

func natsURLs() []string {
	raw := getEnv("NATS_ADVERTISE_URLS", "nats://localhost:4222")
	parts := strings.Split(raw, ",")
	urls := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
