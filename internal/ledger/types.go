// Package ledger decodes validated ledger transactions from the account
// subscription stream and classifies NFT offer activity into domain actions.
package ledger

import (
	"github.com/satonic/roomtrade/internal/models"
)

// Transaction types handled by the classifier
const (
	TxNFTokenCreateOffer = "NFTokenCreateOffer"
	TxNFTokenCancelOffer = "NFTokenCancelOffer"
	TxNFTokenAcceptOffer = "NFTokenAcceptOffer"

	EntryNFTokenOffer = "NFTokenOffer"

	ResultSuccess = "tesSUCCESS"

	// tfSellNFToken on the transaction, lsfSellNFToken on the ledger entry
	FlagSellNFToken uint32 = 0x00000001
)

// Transaction is a stream message of type "transaction". API v2 servers
// send the body under tx_json, v1 servers under transaction.
type Transaction struct {
	Type        string  `json:"type"`
	Validated   bool    `json:"validated"`
	Hash        string  `json:"hash,omitempty"`
	LedgerIndex uint32  `json:"ledger_index,omitempty"`
	TxJSON      *TxJSON `json:"tx_json,omitempty"`
	Legacy      *TxJSON `json:"transaction,omitempty"`
	Meta        *Meta   `json:"meta,omitempty"`
}

// Body returns the transaction fields regardless of API version
func (t Transaction) Body() *TxJSON {
	if t.TxJSON != nil {
		return t.TxJSON
	}
	return t.Legacy
}

// TxJSON holds the transaction fields used by NFT offer transactions
type TxJSON struct {
	TransactionType  string         `json:"TransactionType"`
	Account          string         `json:"Account"`
	Owner            string         `json:"Owner,omitempty"`
	Destination      string         `json:"Destination,omitempty"`
	Amount           models.Amount  `json:"Amount"`
	NFTokenID        string         `json:"NFTokenID,omitempty"`
	Flags            uint32         `json:"Flags"`
	NFTokenOffers    []string       `json:"NFTokenOffers,omitempty"`
	NFTokenSellOffer string         `json:"NFTokenSellOffer,omitempty"`
	NFTokenBuyOffer  string         `json:"NFTokenBuyOffer,omitempty"`
	NFTokenBrokerFee *models.Amount `json:"NFTokenBrokerFee,omitempty"`
}

// Meta is the transaction metadata
type Meta struct {
	TransactionResult string         `json:"TransactionResult"`
	AffectedNodes     []AffectedNode `json:"AffectedNodes"`
}

// AffectedNode wraps exactly one of the created, modified or deleted entries
type AffectedNode struct {
	CreatedNode  *LedgerNode `json:"CreatedNode,omitempty"`
	ModifiedNode *LedgerNode `json:"ModifiedNode,omitempty"`
	DeletedNode  *LedgerNode `json:"DeletedNode,omitempty"`
}

// LedgerNode is a ledger entry touched by the transaction
type LedgerNode struct {
	LedgerEntryType string       `json:"LedgerEntryType"`
	LedgerIndex     string       `json:"LedgerIndex"`
	FinalFields     *OfferFields `json:"FinalFields,omitempty"`
	NewFields       *OfferFields `json:"NewFields,omitempty"`
}

// OfferFields are the NFTokenOffer entry fields
type OfferFields struct {
	Owner       string        `json:"Owner"`
	NFTokenID   string        `json:"NFTokenID"`
	Flags       uint32        `json:"Flags"`
	Amount      models.Amount `json:"Amount"`
	Destination string        `json:"Destination,omitempty"`
}

// IsSell reports whether the entry is a sell offer
func (f OfferFields) IsSell() bool {
	return f.Flags&FlagSellNFToken != 0
}

// Action is the result of classifying a transaction. It is one of
// OfferCreated, OffersCancelled, OfferAccepted or Unclassified.
type Action interface {
	isAction()
}

// Unclassified marks a transaction that carries nothing for the local user
type Unclassified struct {
	Reason string
}

// ProposalKind distinguishes the two kinds of incoming offers
type ProposalKind string

const (
	ProposalTransfer ProposalKind = "transfer"
	ProposalBuy      ProposalKind = "buy"
)

// OfferCreated is a new offer addressed to the local user
type OfferCreated struct {
	Kind  ProposalKind
	Offer models.Offer
	NFT   *models.NFT
}

// OffersCancelled lists offers removed from the ledger by their creators
type OffersCancelled struct {
	Account  string
	OfferIDs []string
}

// OfferAccepted is a completed trade. Seller or buyer may be empty when the
// metadata did not allow resolving them.
type OfferAccepted struct {
	NFTID            string
	SellerWallet     string
	BuyerWallet      string
	AffectedOfferIDs []string
	Brokered         bool
}

func (Unclassified) isAction()    {}
func (OfferCreated) isAction()    {}
func (OffersCancelled) isAction() {}
func (OfferAccepted) isAction()   {}
