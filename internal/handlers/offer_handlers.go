package handlers

import (
	"net/http"
	"strconv"

	"github.com/satonic/roomtrade/internal/models"
	"github.com/satonic/roomtrade/internal/services"
)

// TradeLister reads recorded ledger activity
type TradeLister interface {
	ListByWallet(wallet string, limit int) ([]models.LedgerEvent, error)
}

// GetOffers handles retrieving the session's made and received offers
func GetOffers(manager *services.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := sessionFromRequest(manager, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, session.Snapshot().Offers)
	}
}

// RefreshOffers handles refetching the local user's offers from the marketplace
func RefreshOffers(manager *services.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := sessionFromRequest(manager, w, r)
		if !ok {
			return
		}

		if err := session.RefreshOffers(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, session.Snapshot().Offers)
	}
}

// GetTrades handles retrieving recorded ledger activity for a wallet. The
// caller's own wallet is used when none is given.
func GetTrades(trades TradeLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if trades == nil {
			http.Error(w, "Activity store is disabled", http.StatusServiceUnavailable)
			return
		}

		wallet := r.URL.Query().Get("wallet")
		if wallet == "" {
			if claims, ok := ClaimsFromContext(r.Context()); ok {
				wallet = claims.Wallet
			}
		}

		limit := 0
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			n, err := strconv.Atoi(limitStr)
			if err != nil || n < 0 {
				http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
				return
			}
			limit = n
		}

		events, err := trades.ListByWallet(wallet, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if events == nil {
			events = []models.LedgerEvent{}
		}
		writeJSON(w, http.StatusOK, events)
	}
}
