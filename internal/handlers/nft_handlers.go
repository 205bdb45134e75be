package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/satonic/roomtrade/internal/ownership"
	"github.com/satonic/roomtrade/internal/services"
)

// GetIndex handles retrieving the session's ownership index and status
func GetIndex(manager *services.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := sessionFromRequest(manager, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, session.Snapshot())
	}
}

// GetCollection handles loading one collection of a member's wallet
func GetCollection(manager *services.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := sessionFromRequest(manager, w, r)
		if !ok {
			return
		}

		q, err := parseCollectionQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		nfts, err := session.LoadCollection(r.Context(), q)
		if errors.Is(err, services.ErrCollectionLoading) {
			writeJSON(w, http.StatusAccepted, map[string]interface{}{"loading": true})
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"wallet": q.Wallet,
			"nfts":   nfts,
		})
	}
}

// GetName handles resolving a wallet address to a display name
func GetName(manager *services.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := sessionFromRequest(manager, w, r)
		if !ok {
			return
		}

		address := chi.URLParam(r, "address")
		writeJSON(w, http.StatusOK, map[string]string{
			"address": address,
			"name":    session.Resolve(address),
		})
	}
}

// Helper function to parse collection query parameters
func parseCollectionQuery(r *http.Request) (ownership.CollectionQuery, error) {
	q := ownership.CollectionQuery{
		Wallet: chi.URLParam(r, "wallet"),
		Issuer: r.URL.Query().Get("issuer"),
		Name:   r.URL.Query().Get("name"),
	}

	if taxonStr := r.URL.Query().Get("taxon"); taxonStr != "" {
		taxon, err := strconv.ParseUint(taxonStr, 10, 32)
		if err != nil {
			return q, errors.New("taxon must be an unsigned integer")
		}
		q.Taxon = uint32(taxon)
	}

	if !q.Valid() {
		return q, errors.New("wallet and either issuer or name are required")
	}
	return q, nil
}
