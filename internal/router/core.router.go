package router

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	httphandler "notification-service/internal/handler/http"
	wshandler "notification-service/internal/handler/ws"
	"notification-service/internal/middleware"
)

// SetupRoutes configures the HTTP routes for the notification service
func SetupRoutes(
	r chi.Router,
	h *httphandler.NotificationHandler,
	wsHandler *wshandler.WSHandler,
	auth *middleware.AuthMiddleware,
	rdb *redis.Client,
) chi.Router {
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-CSRF-Token",
		},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.RateLimiter(rdb, 100, time.Minute, 10*time.Minute, "global"))

	r.Route("/api/v1/notifications", func(r chi.Router) {
		// The websocket handshake authenticates itself: browsers cannot
		// attach headers to the upgrade request.
		r.Get("/ws", wsHandler.HandleNotifications)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)

			r.Get("/", h.ListNotifications)
			r.Get("/unread-count", h.CountUnread)
			r.Post("/{id}/read", h.MarkAsRead)
			r.Post("/read-all", h.MarkAllAsRead)
			r.Delete("/{id}", h.DeleteNotification)
		})
	})
	return r
}
