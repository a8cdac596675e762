package main

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/nvplabs/nvp-backend/internal/audit"
	"github.com/nvplabs/nvp-backend/internal/config"
	"github.com/nvplabs/nvp-backend/internal/database"
	"github.com/nvplabs/nvp-backend/internal/handlers"
	"github.com/nvplabs/nvp-backend/internal/middleware"
	"github.com/nvplabs/nvp-backend/internal/repository"
	"github.com/nvplabs/nvp-backend/internal/routes"
	"github.com/nvplabs/nvp-backend/internal/services"
)

func main() {
	// Load env
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found")
	}
	// Load configuration
	cfg := config.Load()

	// Connect to PostgreSQL (device records)
	log.Printf("Connecting to PostgreSQL...")
	if err := database.ConnectPostgres(cfg.PostgresURI); err != nil {
		log.Fatal("Failed to connect to PostgreSQL:", err)
	}
	defer database.DisconnectPostgres()

	// Connect to Redis (rate limiting + live event feed)
	log.Printf("Connecting to Redis...")
	if err := database.ConnectRedis(cfg.RedisURI); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer database.DisconnectRedis()

	// Connect to MongoDB (device event log)
	log.Printf("Connecting to MongoDB...")
	if err := database.Connect(cfg.MongoURI); err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer database.Disconnect()

	// Ensure MongoDB indexes for device events
	if err := audit.EnsureEventIndexes(context.Background(), database.DB); err != nil {
		log.Printf("⚠️  WARNING: failed to ensure MongoDB event indexes: %v", err)
	} else {
		log.Println("✅ MongoDB event indexes ensured")
	}

	// Build the storage and engines explicitly; handlers receive constructed
	// instances instead of reaching for globals.
	deviceStore := repository.NewPostgresDeviceStore(database.PostgresDB)
	eventSink := audit.NewMongoSink(database.DB, database.RedisClient)

	registrationEngine := services.NewRegistrationEngine(deviceStore, eventSink, cfg.TrialDays)
	statusEngine := services.NewStatusEngine(deviceStore, eventSink)
	adminService := services.NewAdminDeviceService(deviceStore, eventSink, cfg.TrialDays)

	handlers.InitDeviceHandlers(registrationEngine, statusEngine)
	handlers.InitAdminHandlers(adminService)

	// Start the Redis subscriber feeding the dashboard event stream
	services.StartEventSubscriber(context.Background())

	// Setup router
	r := chi.NewRouter()

	// Custom CORS: set headers and respond to OPTIONS with 200 so preflight never gets 403
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Production: SecurityHeaders → HostCheck → GlobalRateLimit → RegisterRateLimit
	// Non-production: Redis-based rate limit only
	if cfg.IsProduction() {
		for _, mw := range middleware.ProductionSecurity(cfg.AllowedHost) {
			r.Use(mw)
		}
		log.Println("✅ Production security enabled (security headers, host check, per-IP + register rate limiting)")
	} else {
		r.Use(middleware.RateLimitMiddleware)
	}

	// Health check (no rate limit)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Setup routes
	routes.SetupRoutes(r)

	// Log registered routes for debugging
	log.Println("📋 Registered routes:")
	log.Println("  GET  /health")
	log.Println("  POST /api/device/register")
	log.Println("  POST /api/device/status")
	log.Println("  GET  /api/admin/devices")
	log.Println("  GET  /api/admin/devices/detail")
	log.Println("  PUT  /api/admin/devices/action")
	log.Println("  POST /api/admin/devices/regenerate-pin")
	log.Println("  GET  /api/admin/stats")
	log.Println("  GET  /ws/events")

	log.Printf("🚀 NVP license backend running on :%s (trial length: %d days)", cfg.Port, cfg.TrialDays)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
