package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/satonic/roomtrade/internal/models"
	"github.com/satonic/roomtrade/internal/services"
)

// CreateSession starts a session for the widget user and returns its token
func CreateSession(manager *services.SessionManager, authService *services.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.SessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.DisplayName) == "" {
			http.Error(w, "displayName is required", http.StatusBadRequest)
			return
		}

		session, err := manager.Create(req)
		if errors.Is(err, services.ErrInvalidMembership) {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		token, expiresAt, err := authService.IssueToken(session.ID, session.Local.WalletAddress)
		if err != nil {
			manager.Stop(session.ID)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, models.AuthToken{
			Token:         token,
			ExpiresAt:     expiresAt,
			SessionID:     session.ID,
			WalletAddress: session.Local.WalletAddress,
			Members:       session.Members,
		})
	}
}

// EndSession stops the session bound to the caller's token
func EndSession(manager *services.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := ClaimsFromContext(r.Context())
		if err := manager.Stop(claims.SessionID); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// AuthMiddleware is a middleware for authenticating requests. Browsers cannot
// set headers on WebSocket upgrades, so the token may also arrive as ?token=.
func AuthMiddleware(authService *services.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			claims, err := authService.ValidateToken(token)
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(NewContextWithClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		token := r.URL.Query().Get("token")
		return token, token != ""
	}

	// Extract token from "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// sessionFromRequest resolves the running session named by the token claims
func sessionFromRequest(manager *services.SessionManager, w http.ResponseWriter, r *http.Request) (*services.Session, bool) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	session, err := manager.Get(claims.SessionID)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return session, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
