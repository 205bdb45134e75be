package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/satonic/roomtrade/internal/models"
	"github.com/satonic/roomtrade/internal/ownership"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type blockingLister struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
	started chan struct{}
	nfts    []models.NFT
	err     error
}

func (b *blockingLister) ListNFTs(ctx context.Context, owner string) ([]models.NFT, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	if b.started != nil {
		b.started <- struct{}{}
	}
	if b.release != nil {
		<-b.release
	}
	return b.nfts, b.err
}

func (b *blockingLister) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

var apes = ownership.CollectionQuery{Wallet: peerWallet, Issuer: "rIssuer", Taxon: 7}

func TestNFTService_MemoizesAndFilters(t *testing.T) {
	lister := &blockingLister{nfts: []models.NFT{
		{NFTID: "N1", Issuer: "rIssuer", Taxon: 7},
		{NFTID: "N2", Issuer: "rIssuer", Taxon: 8},
	}}
	svc := NewNFTService(lister, zap.NewNop())

	first, err := svc.LoadCollection(context.Background(), apes)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "N1", first[0].NFTID)

	second, err := svc.LoadCollection(context.Background(), apes)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, lister.callCount())
}

func TestNFTService_SuppressesInFlightDuplicates(t *testing.T) {
	lister := &blockingLister{
		release: make(chan struct{}),
		started: make(chan struct{}, 1),
		nfts:    []models.NFT{{NFTID: "N1", Issuer: "rIssuer", Taxon: 7}},
	}
	svc := NewNFTService(lister, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := svc.LoadCollection(context.Background(), apes)
		done <- err
	}()
	<-lister.started

	assert.True(t, svc.IsLoading(apes))
	_, err := svc.LoadCollection(context.Background(), apes)
	assert.ErrorIs(t, err, ErrCollectionLoading)

	close(lister.release)
	require.NoError(t, <-done)
	assert.False(t, svc.IsLoading(apes))
	assert.Equal(t, 1, lister.callCount())
}

func TestNFTService_ErrorsAreNotCached(t *testing.T) {
	lister := &blockingLister{err: errors.New("upstream down")}
	svc := NewNFTService(lister, zap.NewNop())

	_, err := svc.LoadCollection(context.Background(), apes)
	assert.Error(t, err)
	assert.False(t, svc.IsLoading(apes))

	lister.err = nil
	_, err = svc.LoadCollection(context.Background(), apes)
	assert.NoError(t, err)
	assert.Equal(t, 2, lister.callCount())
}

func TestNFTService_Forget(t *testing.T) {
	lister := &blockingLister{}
	svc := NewNFTService(lister, zap.NewNop())
	other := ownership.CollectionQuery{Wallet: localWallet, Name: "Apes"}

	svc.LoadCollection(context.Background(), apes)
	svc.LoadCollection(context.Background(), other)
	svc.Forget(peerWallet)
	svc.LoadCollection(context.Background(), apes)
	svc.LoadCollection(context.Background(), other)

	assert.Equal(t, 3, lister.callCount())
}

func TestNFTService_InvalidQuery(t *testing.T) {
	svc := NewNFTService(&blockingLister{}, zap.NewNop())
	_, err := svc.LoadCollection(context.Background(), ownership.CollectionQuery{Wallet: peerWallet})
	assert.Error(t, err)
}
