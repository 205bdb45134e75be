package models

import (
	"time"
)

// OfferSource identifies where an offer was learned from
type OfferSource string

const (
	OfferSourceUserCreated OfferSource = "user_created"
	OfferSourceCounter     OfferSource = "counter"
	OfferSourcePrivate     OfferSource = "private"
	OfferSourceRealtime    OfferSource = "realtime"
)

// Offer represents an on-ledger proposal to sell or buy a specific NFT
type Offer struct {
	OfferID          string      `json:"offerId"`
	NFTID            string      `json:"nftId"`
	Amount           Amount      `json:"amount"`
	OfferOwner       string      `json:"offerOwner"`
	OfferOwnerName   string      `json:"offerOwnerName"`
	IsSell           bool        `json:"isSell"`
	Destination      string      `json:"destination,omitempty"`
	Valid            *bool       `json:"valid,omitempty"`
	ValidationErrors []string    `json:"validationErrors,omitempty"`
	CreatedAt        *time.Time  `json:"createdAt,omitempty"`
	Expiration       *time.Time  `json:"expiration,omitempty"`
	Source           OfferSource `json:"source"`
}

// IsTransfer reports whether the offer is a zero-amount transfer
func (o Offer) IsTransfer() bool {
	return o.Amount.IsZero()
}

// OfferEntry pairs an offer with the NFT it refers to, when known
type OfferEntry struct {
	Offer Offer `json:"offer"`
	NFT   *NFT  `json:"nft"`
}

// BulkOffers holds the three offer lists returned by the indexing API for
// one address
type BulkOffers struct {
	UserCreated []OfferEntry `json:"userCreatedOffers"`
	Counter     []OfferEntry `json:"counterOffers"`
	Private     []OfferEntry `json:"privateOffers"`
}

// Total counts all offers in the listing
func (b BulkOffers) Total() int {
	return len(b.UserCreated) + len(b.Counter) + len(b.Private)
}
