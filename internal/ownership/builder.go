package ownership

import (
	"context"

	"github.com/satonic/roomtrade/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Lister fetches the NFTs held by a wallet
type Lister interface {
	ListNFTs(ctx context.Context, owner string) ([]models.NFT, error)
}

// Collections is one wallet's holdings grouped by collection key.
// Summaries keep first-seen order.
type Collections struct {
	Summaries []models.CollectionInfo
	NFTsByKey map[string][]models.NFT
}

// BuildCollections fetches and groups a wallet's NFTs. A failed or empty
// listing yields empty collections so loading can continue for other members.
func BuildCollections(ctx context.Context, lister Lister, wallet string, logger *zap.Logger) Collections {
	if wallet == "" {
		return GroupNFTs(nil)
	}

	nfts, err := lister.ListNFTs(ctx, wallet)
	if err != nil {
		logger.Warn("failed to list NFTs", zap.String("wallet", wallet), zap.Error(err))
		return GroupNFTs(nil)
	}
	return GroupNFTs(nfts)
}

// GroupNFTs groups tokens by issuer and taxon
func GroupNFTs(nfts []models.NFT) Collections {
	c := Collections{NFTsByKey: make(map[string][]models.NFT)}
	var order []string

	for _, nft := range nfts {
		key := groupKey(nft)
		if _, ok := c.NFTsByKey[key]; !ok {
			order = append(order, key)
		}
		c.NFTsByKey[key] = append(c.NFTsByKey[key], nft)
	}

	for _, key := range order {
		c.Summaries = append(c.Summaries, summarize(key, c.NFTsByKey[key]))
	}
	return c
}

// BuildUser assembles a member's ownership record, stamping each token with
// the member's identity
func BuildUser(member models.Member, c Collections) models.User {
	user := models.User{
		WalletAddress: member.WalletAddress,
		Name:          member.Name,
		UserID:        member.UserID,
		GroupedNFTs:   make([]models.CollectionGroup, 0, len(c.Summaries)),
	}

	for _, info := range c.Summaries {
		src := c.NFTsByKey[info.CollectionKey]
		nfts := make([]models.NFT, len(src))
		for i, nft := range src {
			nfts[i] = stampOwner(nft, user)
		}
		user.GroupedNFTs = append(user.GroupedNFTs, newGroup(info.CollectionKey, nfts))
	}
	return user
}

// BuildIndex fetches every member's holdings concurrently and joins the
// results in member order
func BuildIndex(ctx context.Context, lister Lister, members []models.Member, logger *zap.Logger) models.Index {
	users := make(models.Index, len(members))

	g, gctx := errgroup.WithContext(ctx)
	for i, member := range members {
		i, member := i, member
		g.Go(func() error {
			users[i] = BuildUser(member, BuildCollections(gctx, lister, member.WalletAddress, logger))
			return nil
		})
	}
	g.Wait()

	logger.Info("ownership index built",
		zap.Int("members", len(users)),
		zap.Int("nfts", users.TotalNFTs()))
	return users
}

// SampleImages lists the distinct sample images of every group in the index
func SampleImages(idx models.Index) []string {
	seen := make(map[string]struct{})
	var images []string
	for _, u := range idx {
		for _, g := range u.GroupedNFTs {
			img := g.Info.SampleImage
			if img == "" || img == "undefined" || img == "null" {
				continue
			}
			if _, ok := seen[img]; ok {
				continue
			}
			seen[img] = struct{}{}
			images = append(images, img)
		}
	}
	return images
}

func groupKey(nft models.NFT) string {
	if nft.Issuer == "" {
		return nft.CollectionName
	}
	return nft.CollectionKey()
}

func stampOwner(nft models.NFT, user models.User) models.NFT {
	nft.OwnerWallet = user.WalletAddress
	nft.OwnerName = user.Name
	nft.UserName = user.Name
	nft.UserID = user.UserID
	return nft
}

func summarize(key string, nfts []models.NFT) models.CollectionInfo {
	info := models.CollectionInfo{CollectionKey: key, NFTCount: len(nfts)}
	if len(nfts) == 0 {
		return info
	}
	first := nfts[0]
	info.Name = first.CollectionName
	info.Issuer = first.Issuer
	info.Taxon = first.Taxon
	sample := pickSample(nfts)
	info.SampleNFT = &sample
	info.SampleImage = sample.ImageURI
	return info
}

// pickSample returns the first token with an image, else the first token
func pickSample(nfts []models.NFT) models.NFT {
	for _, nft := range nfts {
		if nft.ImageURI != "" {
			return nft
		}
	}
	return nfts[0]
}

func newGroup(key string, nfts []models.NFT) models.CollectionGroup {
	info := summarize(key, nfts)
	return models.CollectionGroup{
		Collection:    info.Name,
		CollectionKey: key,
		Issuer:        info.Issuer,
		Taxon:         info.Taxon,
		NFTs:          nfts,
		NFTCount:      len(nfts),
		Info:          info,
	}
}
