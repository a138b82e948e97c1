package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tokshop/api/internal/config"
	"github.com/tokshop/api/internal/database"
	"github.com/tokshop/api/internal/enum"
	"github.com/tokshop/api/internal/handler"
	mw "github.com/tokshop/api/internal/middleware"
	"github.com/tokshop/api/internal/service"
	"github.com/tokshop/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173", // storefront dev server
			"https://admin.tokshop.com.ar",
			"https://tienda.tokshop.com.ar",
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket order feed (handles auth internally via query param)
	r.Get("/ws/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Services
	catalog := service.NewCatalog(queries)
	sequences := service.NewSequenceAllocator(queries)
	lifecycle := service.NewLifecycleManager(queries)
	orderService := service.NewOrderService(
		pool,
		func(db database.DBTX) service.OrderStore {
			return database.New(db)
		},
		catalog,
		sequences,
		lifecycle,
		service.ChannelRules{
			POSMarkers:   cfg.POSTagMarkers,
			POSPrefix:    cfg.POSPrefix,
			OnlinePrefix: cfg.OnlinePrefix,
			Currency:     cfg.Currency,
		},
	)

	productHandler := handler.NewProductHandler(queries, cfg.Currency)
	orderHandler := handler.NewOrderHandler(orderService, lifecycle, queries, hub)
	reportsHandler := handler.NewReportsHandler(queries, time.Local)

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		productHandler.RegisterRoutes(r)
		orderHandler.RegisterRoutes(r)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleAdmin))

			productHandler.RegisterAdminRoutes(r)
			reportsHandler.RegisterRoutes(r)
		})
	})

	return r
}
