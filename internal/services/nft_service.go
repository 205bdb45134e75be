package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/satonic/roomtrade/internal/models"
	"github.com/satonic/roomtrade/internal/ownership"
	"go.uber.org/zap"
)

// NFTService loads single collections on demand and memoizes the result
// per (wallet, issuer, taxon) or (wallet, collection name)
type NFTService struct {
	lister ownership.Lister
	logger *zap.Logger

	mu      sync.Mutex
	cache   map[string][]models.NFT
	loading map[string]struct{}
}

// NewNFTService creates a new NFTService
func NewNFTService(lister ownership.Lister, logger *zap.Logger) *NFTService {
	return &NFTService{
		lister:  lister,
		logger:  logger,
		cache:   make(map[string][]models.NFT),
		loading: make(map[string]struct{}),
	}
}

// LoadCollection returns the tokens of one collection of a wallet. A request
// for a key that is already being fetched fails with ErrCollectionLoading.
// Fetch errors are not cached.
func (s *NFTService) LoadCollection(ctx context.Context, q ownership.CollectionQuery) ([]models.NFT, error) {
	if !q.Valid() {
		return nil, fmt.Errorf("invalid collection query")
	}
	key := q.Key()

	s.mu.Lock()
	if nfts, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return nfts, nil
	}
	if _, busy := s.loading[key]; busy {
		s.mu.Unlock()
		return nil, ErrCollectionLoading
	}
	s.loading[key] = struct{}{}
	s.mu.Unlock()

	all, err := s.lister.ListNFTs(ctx, q.Wallet)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loading, key)

	if err != nil {
		return nil, fmt.Errorf("failed to load collection %s: %w", key, err)
	}

	nfts := q.Filter(all)
	s.cache[key] = nfts
	s.logger.Debug("collection loaded", zap.String("key", key), zap.Int("nfts", len(nfts)))
	return nfts, nil
}

// IsLoading reports whether a fetch for the query is in flight
func (s *NFTService) IsLoading(q ownership.CollectionQuery) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.loading[q.Key()]
	return busy
}

// Forget drops memoized collections of a wallet whose holdings changed on
// the ledger
func (s *NFTService) Forget(wallet string) {
	prefix := wallet + "|"

	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.cache {
		if strings.HasPrefix(key, prefix) {
			delete(s.cache, key)
		}
	}
}
