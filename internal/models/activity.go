package models

import (
	"time"

	"github.com/lib/pq"
)

// LedgerEventKind is the kind of recorded ledger activity
type LedgerEventKind string

const (
	LedgerEventAccepted  LedgerEventKind = "accepted"
	LedgerEventCancelled LedgerEventKind = "cancelled"
)

// LedgerEvent is an accepted or cancelled offer observed on the ledger stream
type LedgerEvent struct {
	ID           string          `json:"id" db:"id"`
	Kind         LedgerEventKind `json:"kind" db:"kind"`
	Account      string          `json:"account,omitempty" db:"account"`
	NFTID        string          `json:"nft_id,omitempty" db:"nft_id"`
	SellerWallet string          `json:"seller_wallet,omitempty" db:"seller_wallet"`
	BuyerWallet  string          `json:"buyer_wallet,omitempty" db:"buyer_wallet"`
	OfferIDs     pq.StringArray  `json:"offer_ids" db:"offer_ids"`
	Brokered     bool            `json:"brokered" db:"brokered"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}
