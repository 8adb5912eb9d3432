// Package server exposes the promotion gateway HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"promogate/catalog"
	"promogate/lifecycle"
	"promogate/models"
	"promogate/oracle"
)

// Server carries the handler dependencies.
type Server struct {
	manager *lifecycle.Manager
	oracle  *oracle.Oracle
	logger  *slog.Logger
	router  chi.Router
}

// New constructs the HTTP server with its routes mounted.
func New(manager *lifecycle.Manager, priceOracle *oracle.Oracle, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		manager: manager,
		oracle:  priceOracle,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/promotions", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/packages", s.handlePackages)
		r.Get("/active", s.handleListActive)
		r.Get("/{id}", s.handleGet)
	})

	s.router = r
	return s
}

// Handler returns the mounted router.
func (s *Server) Handler() http.Handler {
	return s.router
}

type createRequest struct {
	TokenAddress string `json:"tokenAddress"`
	Chain        string `json:"chain"`
	PackageType  string `json:"packageType"`
	Duration     string `json:"duration"`
	UserWallet   string `json:"userWallet"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.manager.CreateRequest(r.Context(), lifecycle.CreateInput{
		TokenAddress: body.TokenAddress,
		Chain:        models.Chain(strings.ToLower(strings.TrimSpace(body.Chain))),
		PackageType:  body.PackageType,
		Duration:     body.Duration,
		UserWallet:   body.UserWallet,
	})
	switch {
	case errors.Is(err, lifecycle.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, lifecycle.ErrPricingUnavailable):
		writeError(w, http.StatusServiceUnavailable, "pricing temporarily unavailable")
		return
	case err != nil:
		s.logger.Error("create promotion failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	req, err := s.manager.GetStatus(r.Context(), id)
	if errors.Is(err, lifecycle.ErrNotFound) {
		writeError(w, http.StatusNotFound, "promotion request not found")
		return
	}
	if err != nil {
		s.logger.Error("load promotion failed", "request_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleListActive(w http.ResponseWriter, r *http.Request) {
	packageType := strings.TrimSpace(r.URL.Query().Get("package"))
	active, err := s.manager.ListActive(r.Context(), packageType)
	if err != nil {
		s.logger.Error("list active promotions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"promotions": active,
		"count":      len(active),
	})
}

type packageQuote struct {
	Chain        string  `json:"chain"`
	Currency     string  `json:"currency"`
	AmountNative float64 `json:"amountNative"`
}

type packageEntry struct {
	Type        string                    `json:"type"`
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	PricesUSD   map[string]float64        `json:"pricesUsd"`
	Quotes      map[string][]packageQuote `json:"quotes"`
}

// handlePackages renders the catalog together with an indicative native quote
// per chain and duration. Quotes here are advisory; the binding amount is
// snapshotted when the request is created.
func (s *Server) handlePackages(w http.ResponseWriter, r *http.Request) {
	prices := s.oracle.Prices(r.Context())
	entries := make([]packageEntry, 0)
	for _, pkg := range catalog.All() {
		entry := packageEntry{
			Type:        pkg.Type,
			Name:        pkg.Name,
			Description: pkg.Description,
			PricesUSD:   pkg.Prices,
			Quotes:      make(map[string][]packageQuote),
		}
		for duration, usd := range pkg.Prices {
			for _, chain := range models.Chains() {
				native, err := oracle.USDToNative(usd, chain, prices)
				if err != nil {
					continue
				}
				entry.Quotes[duration] = append(entry.Quotes[duration], packageQuote{
					Chain:        string(chain),
					Currency:     chain.Symbol(),
					AmountNative: native,
				})
			}
		}
		entries = append(entries, entry)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"packages": entries})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
