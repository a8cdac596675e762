package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/nvplabs/nvp-backend/internal/handlers"
)

func SetupRoutes(r *chi.Mux) {
	// Device-facing routes (the player client)
	r.Post("/api/device/register", handlers.RegisterDevice)
	r.Post("/api/device/status", handlers.DeviceStatus)

	// Admin dashboard routes
	r.Get("/api/admin/devices", handlers.AdminListDevices)
	r.Get("/api/admin/devices/detail", handlers.AdminGetDevice)
	r.Put("/api/admin/devices/action", handlers.AdminDeviceAction)
	r.Post("/api/admin/devices/regenerate-pin", handlers.AdminRegeneratePin)
	r.Get("/api/admin/stats", handlers.AdminStats)

	// WebSocket endpoint for the live device-event feed
	r.Get("/ws/events", handlers.EventsWebSocket)
}
