package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/satonic/roomtrade/internal/models"
)

// DefaultBrokerFeeThreshold is the broker fee, in drops, at or below which an
// acceptance is treated as direct
const DefaultBrokerFeeThreshold = "15"

// Classifier turns validated transactions into actions for one local wallet.
// It never mutates state.
type Classifier struct {
	localWallet        string
	brokerFeeThreshold decimal.Decimal
}

// NewClassifier creates a classifier. An empty threshold uses the default.
func NewClassifier(localWallet, brokerFeeThreshold string) (*Classifier, error) {
	if brokerFeeThreshold == "" {
		brokerFeeThreshold = DefaultBrokerFeeThreshold
	}
	threshold, err := decimal.NewFromString(brokerFeeThreshold)
	if err != nil {
		return nil, fmt.Errorf("invalid broker fee threshold %q: %w", brokerFeeThreshold, err)
	}
	return &Classifier{
		localWallet:        localWallet,
		brokerFeeThreshold: threshold,
	}, nil
}

// LocalWallet returns the wallet the classifier filters for
func (c *Classifier) LocalWallet() string {
	return c.localWallet
}

// Classify inspects a transaction against the current ownership index
func (c *Classifier) Classify(tx Transaction, idx models.Index) Action {
	if !tx.Validated {
		return Unclassified{Reason: "not validated"}
	}
	body := tx.Body()
	if body == nil || tx.Meta == nil {
		return Unclassified{Reason: "missing transaction body or metadata"}
	}
	if tx.Meta.TransactionResult != ResultSuccess {
		return Unclassified{Reason: "result " + tx.Meta.TransactionResult}
	}

	switch body.TransactionType {
	case TxNFTokenCreateOffer:
		return c.classifyCreate(body, tx.Meta, idx)
	case TxNFTokenCancelOffer:
		return classifyCancel(body)
	case TxNFTokenAcceptOffer:
		return c.classifyAccept(body, tx.Meta)
	default:
		return Unclassified{Reason: "transaction type " + body.TransactionType}
	}
}

func (c *Classifier) classifyCreate(body *TxJSON, meta *Meta, idx models.Index) Action {
	isSell := body.Flags&FlagSellNFToken != 0

	var kind ProposalKind
	if body.Amount.IsZero() {
		if !isSell || body.Destination == "" || body.Destination != c.localWallet {
			return Unclassified{Reason: "transfer offer not addressed to local wallet"}
		}
		kind = ProposalTransfer
	} else {
		if isSell {
			return Unclassified{Reason: "sell offer"}
		}
		owner, ok := idx.OwnerOf(body.NFTokenID)
		if !ok {
			owner = body.Owner
		}
		if owner == "" || owner != c.localWallet {
			return Unclassified{Reason: "buy offer on a token not held locally"}
		}
		kind = ProposalBuy
	}

	offer := models.Offer{
		OfferID:     createdOfferID(meta),
		NFTID:       body.NFTokenID,
		Amount:      body.Amount,
		OfferOwner:  body.Account,
		IsSell:      isSell,
		Destination: body.Destination,
		Source:      models.OfferSourceRealtime,
	}

	created := OfferCreated{Kind: kind, Offer: offer}
	if nft, ok := idx.FindNFT(body.NFTokenID); ok {
		created.NFT = &nft
		created.Offer.NFTID = nft.NFTID
	}
	return created
}

func classifyCancel(body *TxJSON) Action {
	ids := make([]string, 0, len(body.NFTokenOffers))
	for _, id := range body.NFTokenOffers {
		if id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return Unclassified{Reason: "cancel without offer ids"}
	}
	return OffersCancelled{Account: body.Account, OfferIDs: ids}
}

func (c *Classifier) classifyAccept(body *TxJSON, meta *Meta) Action {
	accepted := OfferAccepted{
		AffectedOfferIDs: nonEmpty(body.NFTokenSellOffer, body.NFTokenBuyOffer),
	}

	deleted := deletedOffers(meta)

	if body.NFTokenBrokerFee != nil && body.NFTokenBrokerFee.GreaterThan(c.brokerFeeThreshold) {
		accepted.Brokered = true
		for _, offer := range deleted {
			if accepted.NFTID != "" && offer.NFTokenID != "" && !models.SameNFT(accepted.NFTID, offer.NFTokenID) {
				return Unclassified{Reason: "brokered offers refer to different tokens"}
			}
			if accepted.NFTID == "" {
				accepted.NFTID = offer.NFTokenID
			}
			if offer.IsSell() {
				accepted.SellerWallet = offer.Owner
			} else {
				accepted.BuyerWallet = offer.Owner
			}
		}
		return accepted
	}

	if sell, ok := findOffer(deleted, true); ok {
		accepted.SellerWallet = sell.Owner
		accepted.BuyerWallet = body.Account
		accepted.NFTID = sell.NFTokenID
		return accepted
	}

	// A holder accepting a buy offer directly is the seller.
	if buy, ok := findOffer(deleted, false); ok {
		accepted.SellerWallet = body.Account
		accepted.BuyerWallet = buy.Owner
		accepted.NFTID = buy.NFTokenID
		return accepted
	}

	accepted.BuyerWallet = body.Account
	return accepted
}

// createdOfferID returns the ledger index of the first created offer entry
func createdOfferID(meta *Meta) string {
	for _, node := range meta.AffectedNodes {
		if node.CreatedNode != nil && node.CreatedNode.LedgerEntryType == EntryNFTokenOffer {
			return node.CreatedNode.LedgerIndex
		}
	}
	return ""
}

func deletedOffers(meta *Meta) []OfferFields {
	var out []OfferFields
	for _, node := range meta.AffectedNodes {
		d := node.DeletedNode
		if d == nil || d.LedgerEntryType != EntryNFTokenOffer || d.FinalFields == nil {
			continue
		}
		out = append(out, *d.FinalFields)
	}
	return out
}

func findOffer(offers []OfferFields, sell bool) (OfferFields, bool) {
	for _, o := range offers {
		if o.IsSell() == sell {
			return o, true
		}
	}
	return OfferFields{}, false
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
