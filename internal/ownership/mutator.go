package ownership

import (
	"github.com/satonic/roomtrade/internal/models"
	"go.uber.org/zap"
)

// Transfer moves one token from seller to buyer
type Transfer struct {
	NFTID        string
	SellerWallet string
	BuyerWallet  string
}

// ApplyTransfer returns a new index reflecting the transfer. The input is
// never modified and users other than seller and buyer are shared with it.
// When the seller or the token cannot be found the input is returned as is.
func ApplyTransfer(idx models.Index, t Transfer, logger *zap.Logger) models.Index {
	si := idx.FindUser(t.SellerWallet)
	if si < 0 {
		logger.Warn("transfer seller not in index",
			zap.String("nft_id", t.NFTID), zap.String("seller", t.SellerWallet))
		return idx
	}

	seller := idx[si]
	gi, ni, matches := locate(seller, t.NFTID)
	if gi < 0 {
		logger.Warn("transfer NFT not held by seller",
			zap.String("nft_id", t.NFTID), zap.String("seller", t.SellerWallet))
		return idx
	}
	if matches > 1 {
		logger.Warn("NFT held in multiple groups, moving first match",
			zap.String("nft_id", t.NFTID), zap.Int("matches", matches))
	}

	if t.SellerWallet == t.BuyerWallet {
		return idx
	}

	src := seller.GroupedNFTs[gi]
	nft := src.NFTs[ni]

	out := make(models.Index, len(idx))
	copy(out, idx)
	out[si] = removeNFT(seller, gi, ni)

	bi := idx.FindUser(t.BuyerWallet)
	if bi < 0 {
		logger.Debug("transfer buyer not tracked",
			zap.String("nft_id", t.NFTID), zap.String("buyer", t.BuyerWallet))
		return out
	}

	buyer := idx[bi]
	if g, _, _ := locate(buyer, t.NFTID); g >= 0 {
		logger.Warn("buyer already holds NFT",
			zap.String("nft_id", t.NFTID), zap.String("buyer", t.BuyerWallet))
		return out
	}

	out[bi] = addNFT(buyer, src, stampOwner(nft, buyer))
	return out
}

// locate finds the first group and position of the token in the user's
// holdings and counts how many groups contain it
func locate(user models.User, nftID string) (group, pos, matches int) {
	group, pos = -1, -1
	for gi, g := range user.GroupedNFTs {
		for ni, n := range g.NFTs {
			if models.SameNFT(n.NFTID, nftID) {
				if group < 0 {
					group, pos = gi, ni
				}
				matches++
				break
			}
		}
	}
	return group, pos, matches
}

func removeNFT(user models.User, gi, ni int) models.User {
	g := user.GroupedNFTs[gi]
	removed := g.NFTs[ni]

	nfts := make([]models.NFT, 0, len(g.NFTs)-1)
	nfts = append(nfts, g.NFTs[:ni]...)
	nfts = append(nfts, g.NFTs[ni+1:]...)

	groups := make([]models.CollectionGroup, 0, len(user.GroupedNFTs))
	groups = append(groups, user.GroupedNFTs[:gi]...)
	if len(nfts) > 0 {
		g.NFTs = nfts
		g.NFTCount = len(nfts)
		g.Info.NFTCount = len(nfts)
		if g.Info.SampleNFT == nil || models.SameNFT(g.Info.SampleNFT.NFTID, removed.NFTID) {
			sample := pickSample(nfts)
			g.Info.SampleNFT = &sample
			g.Info.SampleImage = sample.ImageURI
		}
		groups = append(groups, g)
	}
	groups = append(groups, user.GroupedNFTs[gi+1:]...)

	user.GroupedNFTs = groups
	return user
}

func addNFT(user models.User, src models.CollectionGroup, nft models.NFT) models.User {
	groups := make([]models.CollectionGroup, len(user.GroupedNFTs), len(user.GroupedNFTs)+1)
	copy(groups, user.GroupedNFTs)

	if di := destinationGroup(groups, src, nft); di >= 0 {
		g := groups[di]
		nfts := make([]models.NFT, len(g.NFTs), len(g.NFTs)+1)
		copy(nfts, g.NFTs)
		g.NFTs = append(nfts, nft)
		g.NFTCount = len(g.NFTs)
		g.Info.NFTCount = len(g.NFTs)
		if g.Info.SampleNFT == nil {
			g.Info.SampleNFT = &nft
			g.Info.SampleImage = nft.ImageURI
		}
		groups[di] = g
	} else {
		groups = append(groups, inheritGroup(src, nft))
	}

	user.GroupedNFTs = groups
	return user
}

// destinationGroup picks the buyer group by collection key, then issuer and
// taxon, then collection name
func destinationGroup(groups []models.CollectionGroup, src models.CollectionGroup, nft models.NFT) int {
	key := src.CollectionKey
	if key == "" {
		key = groupKey(nft)
	}
	for i, g := range groups {
		if key != "" && g.CollectionKey == key {
			return i
		}
	}

	issuer, taxon := src.Issuer, src.Taxon
	if issuer == "" {
		issuer, taxon = nft.Issuer, nft.Taxon
	}
	if issuer != "" {
		for i, g := range groups {
			if g.Issuer == issuer && g.Taxon == taxon {
				return i
			}
		}
	}

	name := src.Collection
	if name == "" {
		name = nft.CollectionName
	}
	if name != "" {
		for i, g := range groups {
			if g.Collection == name {
				return i
			}
		}
	}
	return -1
}

// inheritGroup creates a single-token group carrying the seller group's
// collection details
func inheritGroup(src models.CollectionGroup, nft models.NFT) models.CollectionGroup {
	info := src.Info
	info.CollectionKey = src.CollectionKey
	info.NFTCount = 1
	info.SampleNFT = &nft
	if info.SampleImage == "" {
		info.SampleImage = nft.ImageURI
	}

	return models.CollectionGroup{
		Collection:    src.Collection,
		CollectionKey: src.CollectionKey,
		Issuer:        src.Issuer,
		Taxon:         src.Taxon,
		NFTs:          []models.NFT{nft},
		NFTCount:      1,
		Info:          info,
	}
}
