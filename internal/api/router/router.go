package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/wolfman30/finddoc-chatbot/internal/http/middleware"
	"github.com/wolfman30/finddoc-chatbot/internal/webchat"
	"github.com/wolfman30/finddoc-chatbot/pkg/logging"
)

// LegacyPrefix is where the chatbot blueprint lived before it moved to the root.
const LegacyPrefix = "/chatbot"

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Chat               *webchat.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	RateLimiter        *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg == nil || cfg.Chat == nil {
		panic("router: chat handler cannot be nil")
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", cfg.Chat.HandleHealth)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		chatRoutes(r, cfg)
	})
	r.Route(LegacyPrefix, func(r chi.Router) {
		chatRoutes(r, cfg)
	})

	return r
}

func chatRoutes(r chi.Router, cfg *Config) {
	r.Get("/", cfg.Chat.HandleHome)
	r.Get("/chat/ws", cfg.Chat.HandleWebSocket)
	r.Group(func(limited chi.Router) {
		limited.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		limited.Post("/chat", cfg.Chat.HandleChat)
		limited.Post("/auth/login", cfg.Chat.HandleLogin)
	})
}
