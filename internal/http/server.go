// Package http exposes the operator-facing admin surface: health probe,
// Prometheus metrics and a snapshot of open conversations.
package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/funpay-tools/steampoints-bot/internal/http/middleware"
	"github.com/funpay-tools/steampoints-bot/internal/state"
	"github.com/funpay-tools/steampoints-bot/pkg/logging"
)

// ServerConfig wires the admin server's dependencies.
type ServerConfig struct {
	Port      string
	JWTSecret string
	Store     state.Store
	Logger    *logging.Logger
}

// NewServer builds the admin HTTP server.
func NewServer(cfg ServerConfig) *http.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AdminJWT(cfg.JWTSecret))
		r.Get("/conversations", handleConversations(cfg.Store, logger))
	})

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

type conversationView struct {
	ChatID      int64     `json:"chat_id"`
	BuyerID     int64     `json:"buyer_id"`
	OrderID     string    `json:"order_id"`
	Step        string    `json:"step"`
	Units       int       `json:"units"`
	Destination string    `json:"destination,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func handleConversations(store state.Store, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		open, err := store.Open(r.Context())
		if err != nil {
			logger.Error("admin conversations snapshot failed", "error", err)
			http.Error(w, "snapshot failed", http.StatusInternalServerError)
			return
		}
		operator, _ := middleware.OperatorFromContext(r.Context())
		logger.Info("admin conversations snapshot", "operator", operator, "count", len(open))
		views := make([]conversationView, 0, len(open))
		for _, c := range open {
			views = append(views, conversationView{
				ChatID:      c.ChatID,
				BuyerID:     c.BuyerID,
				OrderID:     c.OrderID,
				Step:        string(c.Step),
				Units:       c.Units,
				Destination: c.Destination,
				CreatedAt:   c.CreatedAt,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"count":         len(views),
			"conversations": views,
		})
	}
}
