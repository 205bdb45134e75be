package ownership

import (
	"fmt"

	"github.com/satonic/roomtrade/internal/models"
)

// CollectionQuery identifies one collection of one wallet, either by issuer
// and taxon or by collection name
type CollectionQuery struct {
	Wallet string
	Issuer string
	Taxon  uint32
	Name   string
}

// Key is the memoization key of the query
func (q CollectionQuery) Key() string {
	if q.Issuer != "" {
		return fmt.Sprintf("%s|%s", q.Wallet, models.CollectionKey(q.Issuer, q.Taxon))
	}
	return fmt.Sprintf("%s|name:%s", q.Wallet, q.Name)
}

// Valid reports whether the query names a wallet and a collection
func (q CollectionQuery) Valid() bool {
	return q.Wallet != "" && (q.Issuer != "" || q.Name != "")
}

// Matches reports whether the token belongs to the queried collection
func (q CollectionQuery) Matches(nft models.NFT) bool {
	if q.Issuer != "" {
		return nft.Issuer == q.Issuer && nft.Taxon == q.Taxon
	}
	return nft.CollectionName == q.Name
}

// Filter keeps the tokens belonging to the queried collection
func (q CollectionQuery) Filter(nfts []models.NFT) []models.NFT {
	out := make([]models.NFT, 0, len(nfts))
	for _, nft := range nfts {
		if q.Matches(nft) {
			out = append(out, nft)
		}
	}
	return out
}

func (q CollectionQuery) matchesGroup(g models.CollectionGroup) bool {
	if q.Issuer != "" {
		return g.Issuer == q.Issuer && g.Taxon == q.Taxon
	}
	return g.Collection == q.Name
}

// ReplaceCollection installs a freshly loaded collection into the wallet's
// record. An empty load removes the group. Wallets outside the index are
// left alone.
func ReplaceCollection(idx models.Index, q CollectionQuery, nfts []models.NFT) models.Index {
	ui := idx.FindUser(q.Wallet)
	if ui < 0 {
		return idx
	}
	user := idx[ui]

	stamped := make([]models.NFT, len(nfts))
	for i, nft := range nfts {
		stamped[i] = stampOwner(nft, user)
	}

	groups := make([]models.CollectionGroup, 0, len(user.GroupedNFTs)+1)
	replaced := false
	for _, g := range user.GroupedNFTs {
		if replaced || !q.matchesGroup(g) {
			groups = append(groups, g)
			continue
		}
		replaced = true
		if len(stamped) > 0 {
			groups = append(groups, newGroup(g.CollectionKey, stamped))
		}
	}
	if !replaced && len(stamped) > 0 {
		groups = append(groups, newGroup(groupKey(stamped[0]), stamped))
	}

	user.GroupedNFTs = groups
	out := make(models.Index, len(idx))
	copy(out, idx)
	out[ui] = user
	return out
}
