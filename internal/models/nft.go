package models

import (
	"fmt"
	"strings"
)

// NFTMetadata is the subset of token metadata the widget displays
type NFTMetadata struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	Collection  string `json:"collection,omitempty"`
}

// NFT represents a token held by a room member.
// NFTID is the single canonical identifier; source-specific aliases are
// resolved when records are ingested.
type NFT struct {
	NFTID          string      `json:"nftId"`
	Issuer         string      `json:"issuer"`
	Taxon          uint32      `json:"taxon"`
	URI            string      `json:"uri,omitempty"`
	AssetImage     string      `json:"assetImage,omitempty"`
	ImageURI       string      `json:"imageURI"`
	CollectionName string      `json:"collectionName"`
	Metadata       NFTMetadata `json:"metadata"`
	OwnerWallet    string      `json:"ownerWallet"`
	OwnerName      string      `json:"ownerName"`
	UserName       string      `json:"userName"`
	UserID         string      `json:"userId"`
}

// CollectionKey returns the grouping key of the token
func (n NFT) CollectionKey() string {
	return CollectionKey(n.Issuer, n.Taxon)
}

// CollectionKey derives the grouping key for an issuer and taxon
func CollectionKey(issuer string, taxon uint32) string {
	return fmt.Sprintf("%s-%d", issuer, taxon)
}

// SameNFT compares two token identifiers. Identifiers are hex strings and
// sources disagree on case.
func SameNFT(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

// CollectionInfo summarizes a collection group for display
type CollectionInfo struct {
	Name          string `json:"name"`
	Issuer        string `json:"issuer"`
	Taxon         uint32 `json:"taxon"`
	CollectionKey string `json:"collectionKey"`
	NFTCount      int    `json:"nftCount"`
	SampleImage   string `json:"sampleImage,omitempty"`
	SampleNFT     *NFT   `json:"sampleNft,omitempty"`
}

// CollectionGroup is one user's NFTs sharing an issuer and taxon
type CollectionGroup struct {
	Collection    string         `json:"collection"`
	CollectionKey string         `json:"collectionKey"`
	Issuer        string         `json:"issuer"`
	Taxon         uint32         `json:"taxon"`
	NFTs          []NFT          `json:"nfts"`
	NFTCount      int            `json:"nftCount"`
	Info          CollectionInfo `json:"collectionInfo"`
}

// User is the ownership record of one room member
type User struct {
	WalletAddress string            `json:"walletAddress"`
	Name          string            `json:"name"`
	UserID        string            `json:"userId"`
	GroupedNFTs   []CollectionGroup `json:"groupedNfts"`
}

// NFTCount returns the number of tokens the user holds
func (u User) NFTCount() int {
	total := 0
	for _, g := range u.GroupedNFTs {
		total += len(g.NFTs)
	}
	return total
}

// Index is the ownership index of a room, keyed by wallet address.
// Values are treated as immutable once published; updates build new slices.
type Index []User

// FindUser returns the position of the wallet's record, or -1
func (idx Index) FindUser(wallet string) int {
	if wallet == "" {
		return -1
	}
	for i, u := range idx {
		if u.WalletAddress == wallet {
			return i
		}
	}
	return -1
}

// FindNFT returns the first token matching the identifier
func (idx Index) FindNFT(nftID string) (NFT, bool) {
	for _, u := range idx {
		for _, g := range u.GroupedNFTs {
			for _, n := range g.NFTs {
				if SameNFT(n.NFTID, nftID) {
					return n, true
				}
			}
		}
	}
	return NFT{}, false
}

// OwnerOf returns the wallet currently holding the token
func (idx Index) OwnerOf(nftID string) (string, bool) {
	for _, u := range idx {
		for _, g := range u.GroupedNFTs {
			for _, n := range g.NFTs {
				if SameNFT(n.NFTID, nftID) {
					return u.WalletAddress, true
				}
			}
		}
	}
	return "", false
}

// Holds reports whether the wallet holds the token
func (idx Index) Holds(wallet, nftID string) bool {
	owner, ok := idx.OwnerOf(nftID)
	return ok && owner == wallet
}

// TotalNFTs counts every token in the index
func (idx Index) TotalNFTs() int {
	total := 0
	for _, u := range idx {
		total += u.NFTCount()
	}
	return total
}
