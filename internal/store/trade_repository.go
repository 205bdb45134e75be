package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/satonic/roomtrade/internal/models"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// TradeRepository handles database operations related to ledger activity
type TradeRepository struct {
	db *Database
}

// NewTradeRepository creates a new TradeRepository
func NewTradeRepository(db *Database) *TradeRepository {
	return &TradeRepository{
		db: db,
	}
}

// RecordAcceptance stores a completed trade. A repeated delivery of the same
// acceptance is ignored and yields a nil event.
func (r *TradeRepository) RecordAcceptance(nftID, seller, buyer string, offerIDs []string, brokered bool) (*models.LedgerEvent, error) {
	event := &models.LedgerEvent{
		Kind:         models.LedgerEventAccepted,
		Account:      buyer,
		NFTID:        nftID,
		SellerWallet: seller,
		BuyerWallet:  buyer,
		OfferIDs:     pq.StringArray(offerIDs),
		Brokered:     brokered,
	}
	return r.record(event)
}

// RecordCancellation stores cancelled offers. A repeated delivery of the same
// cancellation is ignored and yields a nil event.
func (r *TradeRepository) RecordCancellation(account string, offerIDs []string) (*models.LedgerEvent, error) {
	event := &models.LedgerEvent{
		Kind:     models.LedgerEventCancelled,
		Account:  account,
		OfferIDs: pq.StringArray(offerIDs),
	}
	return r.record(event)
}

func (r *TradeRepository) record(event *models.LedgerEvent) (*models.LedgerEvent, error) {
	if event.OfferIDs == nil {
		event.OfferIDs = pq.StringArray{}
	}

	inserted := false
	err := r.db.Transaction(func(tx *sqlx.Tx) error {
		var exists bool
		query := `SELECT EXISTS (SELECT 1 FROM ledger_events
				  WHERE kind = $1 AND nft_id = $2 AND offer_ids = $3)`
		if err := tx.Get(&exists, query, event.Kind, event.NFTID, pq.Array([]string(event.OfferIDs))); err != nil {
			return err
		}
		if exists {
			return nil
		}

		event.ID = uuid.New().String()
		event.CreatedAt = time.Now().UTC()

		query = `INSERT INTO ledger_events (id, kind, account, nft_id, seller_wallet, buyer_wallet,
				 offer_ids, brokered, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

		_, err := tx.Exec(query,
			event.ID, event.Kind, event.Account, event.NFTID, event.SellerWallet,
			event.BuyerWallet, event.OfferIDs, event.Brokered, event.CreatedAt)
		if err != nil {
			return err
		}

		inserted = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, nil
	}
	return event, nil
}

// ListByWallet retrieves the most recent activity involving a wallet
func (r *TradeRepository) ListByWallet(wallet string, limit int) ([]models.LedgerEvent, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	events := []models.LedgerEvent{}
	query := `SELECT id, kind, account, nft_id, seller_wallet, buyer_wallet, offer_ids, brokered, created_at
			  FROM ledger_events
			  WHERE account = $1 OR seller_wallet = $1 OR buyer_wallet = $1
			  ORDER BY created_at DESC
			  LIMIT $2`

	if err := r.db.GetDB().Select(&events, query, wallet, limit); err != nil {
		return nil, err
	}

	return events, nil
}
