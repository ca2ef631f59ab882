package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anishnarang9/ETHDenver26-sub001/pkg/api"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/audit"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/enforce"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/quote"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/receipts"
	"github.com/redis/go-redis/v9"
)

// server carries the read-side handlers and the guarded route table.
type server struct {
	enforcer *enforce.Enforcer
	auditLog *audit.Log
	receipts receipts.Store
	quotes   quote.Store
	logger   *slog.Logger

	// readiness probes; nil in memory mode
	db    *sql.DB
	redis *redis.Client
}

// guardedEndpoints maps route policy ids to their HTTP surface. A routes
// file entry with no endpoint here is a configuration mistake.
var guardedEndpoints = map[string]string{
	"api.enrich-wallet": "POST /v1/enrich/wallet",
	"api.quote-price":   "POST /v1/quote/price",
}

func (s *server) routes(policies []enforce.RoutePolicy) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.HandleFunc("GET /v1/audit/events", s.handleAuditEvents)
	mux.HandleFunc("GET /v1/audit/verify", s.handleAuditVerify)
	mux.HandleFunc("GET /v1/receipts/{actionId}", s.handleReceiptGet)
	mux.HandleFunc("GET /v1/quote/{actionId}", s.handleQuoteGet)

	for i := range policies {
		policy := &policies[i]
		pattern, ok := guardedEndpoints[policy.RouteID]
		if !ok {
			s.logger.Warn("route policy has no endpoint binding, skipping", "route_id", policy.RouteID)
			continue
		}
		var handler http.Handler
		switch policy.RouteID {
		case "api.quote-price":
			handler = http.HandlerFunc(s.handleQuotePrice)
		default:
			handler = http.HandlerFunc(s.handleEnrichWallet)
		}
		mux.Handle(pattern, s.enforcer.Middleware(policy, handler))
		s.logger.Info("route guarded", "route_id", policy.RouteID, "endpoint", pattern,
			"price_atomic", policy.PriceAtomic, "require_payment", policy.RequirePayment)
	}

	return mux
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz pings the remote stores when durable backends are wired.
func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			api.WriteProblem(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "database unreachable", "", "")
			return
		}
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			api.WriteProblem(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "redis unreachable", "", "")
			return
		}
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *server) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	agent := strings.TrimSpace(r.URL.Query().Get("agent"))
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			api.WriteProblem(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be 1..1000", "", "")
			return
		}
		limit = n
	}
	events := s.auditLog.List(agent, limit)
	api.WriteJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func (s *server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	if err := s.auditLog.VerifyChain(); err != nil {
		api.WriteJSON(w, http.StatusOK, map[string]any{
			"valid":  false,
			"length": s.auditLog.Len(),
			"error":  err.Error(),
		})
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"valid":  true,
		"length": s.auditLog.Len(),
	})
}

func (s *server) handleReceiptGet(w http.ResponseWriter, r *http.Request) {
	actionID := r.PathValue("actionId")
	receipt, err := s.receipts.Get(r.Context(), actionID)
	if errors.Is(err, receipts.ErrNotFound) {
		api.WriteNotFound(w, "no receipt for action")
		return
	}
	if err != nil {
		api.WriteInternal(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, receipt)
}

func (s *server) handleQuoteGet(w http.ResponseWriter, r *http.Request) {
	actionID := r.PathValue("actionId")
	ch, err := s.quotes.Get(r.Context(), actionID)
	switch {
	case errors.Is(err, quote.ErrExpired):
		api.WriteProblem(w, http.StatusGone, "PAYMENT_EXPIRED", "quote past its settlement window", actionID, "")
		return
	case errors.Is(err, quote.ErrNotFound):
		api.WriteNotFound(w, "no outstanding quote for action")
		return
	case err != nil:
		api.WriteInternal(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, ch)
}

// handleEnrichWallet is the demo guarded service: it answers a wallet
// lookup only after the enforcement pipeline admitted the request.
func (s *server) handleEnrichWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Wallet string `json:"wallet"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Wallet == "" {
		api.WriteProblem(w, http.StatusBadRequest, "INVALID_REQUEST", "body must carry a wallet address", "", "")
		return
	}

	res, _ := enforce.FromContext(r.Context())
	resp := map[string]any{
		"wallet":     req.Wallet,
		"enrichedAt": time.Now().UTC().Format(time.RFC3339),
		"labels":     []string{"active", "contract-interactor"},
	}
	if res != nil {
		resp["actionId"] = res.ActionID
		if res.Receipt != nil {
			resp["receiptId"] = res.Receipt.ReceiptID
		}
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

// handleQuotePrice is the second guarded service, typically configured as
// a free route.
func (s *server) handleQuotePrice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Asset string `json:"asset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Asset == "" {
		api.WriteProblem(w, http.StatusBadRequest, "INVALID_REQUEST", "body must carry an asset", "", "")
		return
	}

	resp := map[string]any{
		"asset":    req.Asset,
		"priceUsd": "1.00",
		"quotedAt": time.Now().UTC().Format(time.RFC3339),
	}
	if res, ok := enforce.FromContext(r.Context()); ok {
		resp["actionId"] = res.ActionID
	}
	api.WriteJSON(w, http.StatusOK, resp)
}
