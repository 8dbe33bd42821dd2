package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"open-finance-sync-go/internal/models"
	"open-finance-sync-go/internal/store"
	"open-finance-sync-go/internal/syncer"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// UserHeader carries the authenticated caller. Authentication itself happens
// upstream of this service.
const UserHeader = "X-User-ID"

type userContextKey struct{}

// NewRouter registers the open finance routes on a chi router
func NewRouter(s *LedgerService, requestTimeout time.Duration) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if requestTimeout > 0 {
		r.Use(middleware.Timeout(requestTimeout))
	}

	r.Get("/health", s.handleHealth)

	r.Route("/open-finance", func(r chi.Router) {
		r.Use(requireUser)

		r.Post("/sync", s.handleSync)
		r.Get("/accounts", s.handleAccounts)
		r.Get("/transactions", s.handleTransactions)
		r.Get("/connections", s.handleConnections)
		r.Delete("/connections/{id}", s.handleDisconnect)
		r.Get("/audit", s.handleAudit)
	})

	return r
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userId := strings.TrimSpace(r.Header.Get(UserHeader))
		if userId == "" {
			respondWithJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "missing " + UserHeader + " header"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey{}, userId)))
	})
}

func userFromContext(ctx context.Context) string {
	userId, _ := ctx.Value(userContextKey{}).(string)
	return userId
}

func (s *LedgerService) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.HealthCheck(r.Context()); err != nil {
		zap.L().Error("Health check failed", zap.Error(err))
		respondWithJSON(w, http.StatusServiceUnavailable, models.ErrorResponse{Error: "unhealthy"})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *LedgerService) handleSync(w http.ResponseWriter, r *http.Request) {
	var req models.SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "invalid JSON body"})
		return
	}

	resp, err := s.SyncConnection(r.Context(), userFromContext(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (s *LedgerService) handleAccounts(w http.ResponseWriter, r *http.Request) {
	overview, err := s.GetAccountsOverview(r.Context(), userFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, overview)
}

func (s *LedgerService) handleTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))

	transactions, err := s.GetTransactionHistory(r.Context(), userFromContext(r.Context()), query.Get("account_id"), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, transactions)
}

func (s *LedgerService) handleConnections(w http.ResponseWriter, r *http.Request) {
	connections, err := s.ListConnections(r.Context(), userFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, connections)
}

func (s *LedgerService) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.Disconnect(r.Context(), userFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *LedgerService) handleAudit(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))

	var since time.Time
	if raw := query.Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, &syncer.ValidationError{Field: "since", Message: "must be an RFC 3339 timestamp"})
			return
		}
		since = parsed
	}

	entries, err := s.GetAuditLog(r.Context(), userFromContext(r.Context()), query.Get("action"), since, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, entries)
}

// writeError maps domain errors to status codes. Anything unexpected is
// logged with its cause and reported to the caller as a generic failure.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *syncer.ValidationError
	switch {
	case errors.As(err, &vErr):
		respondWithJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: vErr.Error()})
	case errors.Is(err, store.ErrConnectionNotFound):
		respondWithJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "connection not found"})
	case errors.Is(err, syncer.ErrConnectionInactive):
		respondWithJSON(w, http.StatusConflict, models.ErrorResponse{Error: "connection is disconnected"})
	default:
		zap.L().Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		respondWithJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "internal server error"})
	}
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Warn("Failed to encode response", zap.Error(err))
	}
}
