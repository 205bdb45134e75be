package marketplace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/satonic/roomtrade/internal/models"
)

// OfferList selects which offer listing to fetch for an address
type OfferList string

const (
	// ListUserCreated is the default listing: offers created by the address
	ListUserCreated OfferList = ""
	// ListCounterOffers lists offers made on the address's NFTs
	ListCounterOffers OfferList = "counterOffers"
	// ListPrivate lists offers whose destination is the address
	ListPrivate OfferList = "privatelyOfferedToAddress"
)

// Metadata is the display metadata of a single NFT
type Metadata struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// Raw API response types (internal)

type nftListResponse struct {
	NFTs []rawNFT `json:"nfts"`
}

type offerListResponse struct {
	NFTOffers []rawOffer `json:"nftOffers"`
}

type rawNFT struct {
	NFTokenID      string          `json:"nftokenID"`
	NFTokenIDUpper string          `json:"NFTokenID"`
	ID             string          `json:"id"`
	Issuer         string          `json:"issuer"`
	NFTokenTaxon   uint32          `json:"nftokenTaxon"`
	URI            string          `json:"uri"`
	ImageURI       string          `json:"imageURI"`
	Collection     looseString     `json:"collection"`
	Owner          string          `json:"owner"`
	Assets         *rawAssets      `json:"assets"`
	Metadata       json.RawMessage `json:"metadata"`
}

type rawAssets struct {
	Image looseString `json:"image"`
}

type rawMetadata struct {
	Name        looseString     `json:"name"`
	Description looseString     `json:"description"`
	Image       looseString     `json:"image"`
	Collection  json.RawMessage `json:"collection"`
}

type rawOffer struct {
	OfferIndex       string        `json:"offerIndex"`
	Amount           models.Amount `json:"amount"`
	Account          string        `json:"account"`
	Owner            string        `json:"owner"`
	Destination      string        `json:"destination"`
	NFTokenID        string        `json:"nftokenID"`
	Flags            rawOfferFlags `json:"flags"`
	Valid            *bool         `json:"valid"`
	ValidationErrors []string      `json:"validationErrors"`
	CreatedAt        int64         `json:"createdAt"`
	Expiration       *int64        `json:"expiration"`
	NFToken          *rawNFT       `json:"nftoken"`
}

type rawOfferFlags struct {
	SellToken bool `json:"sellToken"`
}

// looseString decodes strings and ignores values of any other JSON type.
// Token metadata is user-authored and often malformed.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		*s = ""
		return nil
	}
	*s = looseString(v)
	return nil
}

// id returns the canonical token identifier from whichever alias is present
func (r rawNFT) id() string {
	return firstNonEmpty(r.NFTokenID, r.NFTokenIDUpper, r.ID)
}

func (r rawNFT) metadata() models.NFTMetadata {
	var meta models.NFTMetadata
	raw := bytes.TrimSpace(r.Metadata)
	if len(raw) == 0 || raw[0] != '{' {
		return meta
	}
	var m rawMetadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return meta
	}
	meta.Name = string(m.Name)
	meta.Description = string(m.Description)
	meta.Image = string(m.Image)
	meta.Collection = collectionName(m.Collection)
	return meta
}

// collectionName accepts either {"name": "..."} or a bare string
func collectionName(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	if raw[0] == '{' {
		var obj struct {
			Name looseString `json:"name"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return ""
		}
		return string(obj.Name)
	}
	var s looseString
	_ = json.Unmarshal(raw, &s)
	return string(s)
}

// toModel normalizes a raw listing record. Image priority is CDN asset,
// metadata image, raw image field. Collection name priority is metadata
// collection, raw collection field, synthesized from the taxon.
func (r rawNFT) toModel() models.NFT {
	meta := r.metadata()

	var assetImage string
	if r.Assets != nil {
		assetImage = string(r.Assets.Image)
	}

	return models.NFT{
		NFTID:          r.id(),
		Issuer:         r.Issuer,
		Taxon:          r.NFTokenTaxon,
		URI:            r.URI,
		AssetImage:     assetImage,
		ImageURI:       firstNonEmpty(assetImage, meta.Image, r.ImageURI),
		CollectionName: firstNonEmpty(meta.Collection, string(r.Collection), fmt.Sprintf("Collection %d", r.NFTokenTaxon)),
		Metadata:       meta,
		OwnerWallet:    r.Owner,
	}
}

func (o rawOffer) toEntry(source models.OfferSource) models.OfferEntry {
	offer := models.Offer{
		OfferID:          o.OfferIndex,
		NFTID:            o.NFTokenID,
		Amount:           o.Amount,
		OfferOwner:       firstNonEmpty(o.Account, o.Owner),
		IsSell:           o.Flags.SellToken,
		Destination:      o.Destination,
		Valid:            o.Valid,
		ValidationErrors: o.ValidationErrors,
		Source:           source,
	}
	if o.CreatedAt > 0 {
		t := time.Unix(o.CreatedAt, 0).UTC()
		offer.CreatedAt = &t
	}
	if o.Expiration != nil && *o.Expiration > 0 {
		t := time.Unix(*o.Expiration, 0).UTC()
		offer.Expiration = &t
	}

	entry := models.OfferEntry{Offer: offer}
	if o.NFToken != nil {
		nft := o.NFToken.toModel()
		if nft.NFTID == "" {
			nft.NFTID = o.NFTokenID
		}
		if offer.NFTID == "" {
			entry.Offer.NFTID = nft.NFTID
		}
		entry.NFT = &nft
	}
	return entry
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
