// Package api exposes the HTTP interface for the menu sync service.
// Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/menu/... and /v1/restaurants/... read endpoints for the
//     chat front end.
//   - POST /v1/sync/... for the external scheduler; runs never overlap.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/mvoronin/menusync/internal/config"
	"github.com/mvoronin/menusync/internal/menu"
	"github.com/mvoronin/menusync/internal/metrics"
	syncer "github.com/mvoronin/menusync/internal/sync"
)

const readTimeout = 5 * time.Second

// MenuReader provides the read queries backing the consumer endpoints.
type MenuReader interface {
	Categories(ctx context.Context) ([]string, error)
	ItemsByCategory(ctx context.Context, category string) ([]menu.MenuItem, error)
	Restaurants(ctx context.Context) ([]menu.Restaurant, error)
	RestaurantByID(ctx context.Context, id string) (menu.Restaurant, error)
}

// Syncer runs reconciliation passes on demand.
type Syncer interface {
	RunSync(ctx context.Context) (menu.SyncResult, error)
	RunRestaurantSync(ctx context.Context) (menu.RestaurantSyncResult, error)
	Links(ctx context.Context) (map[string]menu.RestaurantLinks, error)
}

// Server wires HTTP handlers to the store and the reconciler.
type Server struct {
	router chi.Router
	reader MenuReader
	syncer Syncer
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. Sync and
// link routes run without the per-request timeout: a full pass takes
// minutes and is bounded by the client's patience, not ours.
func NewServer(reader MenuReader, syncer Syncer, cfg config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		reader: reader,
		syncer: syncer,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	if cfg.AuthEnabled {
		r.Use(apiKeyMiddleware(cfg.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(readTimeout))
			r.Get("/menu/categories", s.listCategories)
			r.Get("/menu/items", s.listItems)
			r.Get("/restaurants", s.listRestaurants)
			r.Get("/restaurants/{restaurant_id}", s.getRestaurant)
		})
		r.Get("/restaurants/links", s.restaurantLinks)
		r.Route("/sync", func(r chi.Router) {
			r.Post("/menu", s.syncMenu)
			r.Post("/restaurants", s.syncRestaurants)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := s.reader.Categories(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.reader.Categories(r.Context())
	if err != nil {
		s.logger.Error("list categories failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	if category == "" {
		writeError(w, http.StatusBadRequest, "category query parameter is required")
		return
	}
	items, err := s.reader.ItemsByCategory(r.Context(), category)
	if err != nil {
		s.logger.Error("list items failed",
			zap.String("category", category),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"category": category, "items": items})
}

func (s *Server) listRestaurants(w http.ResponseWriter, r *http.Request) {
	restaurants, err := s.reader.Restaurants(r.Context())
	if err != nil {
		s.logger.Error("list restaurants failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list restaurants")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"restaurants": restaurants})
}

func (s *Server) getRestaurant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "restaurant_id")
	restaurant, err := s.reader.RestaurantByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "restaurant not found")
			return
		}
		s.logger.Error("get restaurant failed",
			zap.String("restaurant_id", id),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to load restaurant")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"restaurant": restaurant})
}

func (s *Server) restaurantLinks(w http.ResponseWriter, r *http.Request) {
	links, err := s.syncer.Links(r.Context())
	if err != nil {
		if errors.Is(err, syncer.ErrSyncRunning) {
			writeError(w, http.StatusConflict, "sync already running")
			return
		}
		s.logger.Error("collect restaurant links failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to collect links")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"links": links})
}

func (s *Server) syncMenu(w http.ResponseWriter, r *http.Request) {
	result, err := s.syncer.RunSync(r.Context())
	if err != nil {
		if errors.Is(err, syncer.ErrSyncRunning) {
			writeError(w, http.StatusConflict, "sync already running")
			return
		}
		s.logger.Error("menu sync failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (s *Server) syncRestaurants(w http.ResponseWriter, r *http.Request) {
	result, err := s.syncer.RunRestaurantSync(r.Context())
	if err != nil {
		if errors.Is(err, syncer.ErrSyncRunning) {
			writeError(w, http.StatusConflict, "sync already running")
			return
		}
		s.logger.Error("restaurant sync failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}
