package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/satonic/roomtrade/internal/ledger"
	"github.com/satonic/roomtrade/internal/marketplace"
	"github.com/satonic/roomtrade/internal/models"
	"github.com/satonic/roomtrade/internal/names"
	"github.com/satonic/roomtrade/internal/offers"
	"github.com/satonic/roomtrade/internal/ownership"
	"go.uber.org/zap"
)

// Update types pushed to widget clients
const (
	UpdateIndex         = "index_update"
	UpdateOffers        = "offers_update"
	UpdateIncomingOffer = "incoming_offer"
	UpdateStreamClosed  = "stream_closed"
)

// Update is a state change notification for one session
type Update struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Publisher delivers updates to the clients of a session
type Publisher interface {
	Publish(sessionID string, update Update)
}

// Marketplace is the indexing API used by sessions
type Marketplace interface {
	ListNFTs(ctx context.Context, owner string) ([]models.NFT, error)
	Metadata(ctx context.Context, nftID string) (marketplace.Metadata, error)
	AllOffers(ctx context.Context, address string) (models.BulkOffers, error)
	Prefetch(ctx context.Context, urls []string)
}

// Subscriber streams ledger transactions for a set of accounts
type Subscriber interface {
	Subscribe(ctx context.Context, accounts []string, handle ledger.Handler) error
}

// ActivityRecorder persists observed ledger activity
type ActivityRecorder interface {
	RecordAcceptance(nftID, seller, buyer string, offerIDs []string, brokered bool) (*models.LedgerEvent, error)
	RecordCancellation(account string, offerIDs []string) (*models.LedgerEvent, error)
}

// State is an immutable snapshot of a session's data
type State struct {
	Index     models.Index        `json:"index"`
	Offers    offers.Book         `json:"offers"`
	Realtime  []models.OfferEntry `json:"-"`
	Loading   bool                `json:"loading"`
	Streaming bool                `json:"streaming"`
	StreamErr string              `json:"streamError,omitempty"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// Session owns the state of one widget instance. All writes go through a
// single lock; readers use snapshots and never block writers.
type Session struct {
	ID        string
	Local     models.Member
	Members   []models.Member
	CreatedAt time.Time

	market     Marketplace
	stream     Subscriber
	classifier *ledger.Classifier
	nfts       *NFTService
	activity   ActivityRecorder
	publisher  Publisher
	wallets    *WalletService
	parties    offers.Parties
	logger     *zap.Logger

	mu    sync.Mutex
	state atomic.Pointer[State]
	names atomic.Pointer[names.Resolver]
}

// Snapshot returns the current state
func (s *Session) Snapshot() State {
	return *s.state.Load()
}

// Resolve returns the display name of an address
func (s *Session) Resolve(address string) string {
	return s.names.Load().Resolve(address)
}

// update applies fn to the current state under the writer lock
func (s *Session) update(fn func(st State) State) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := fn(s.Snapshot())
	next.UpdatedAt = time.Now()
	s.state.Store(&next)
	return next
}

func (s *Session) publish(updateType string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(s.ID, Update{Type: updateType, Payload: payload})
}

// Load builds the ownership index for every member, publishes it and then
// fetches the local user's offers
func (s *Session) Load(ctx context.Context) error {
	s.update(func(st State) State {
		st.Loading = true
		return st
	})

	idx := ownership.BuildIndex(ctx, s.market, s.Members, s.logger)
	if err := ctx.Err(); err != nil {
		return err
	}

	st := s.update(func(st State) State {
		st.Index = idx
		st.Loading = false
		s.names.Store(s.names.Load().WithIndex(idx))
		st.Offers = st.Offers.Renamed(s.names.Load())
		return st
	})
	s.publish(UpdateIndex, st.Index)

	s.market.Prefetch(ctx, ownership.SampleImages(idx))

	if err := s.RefreshOffers(ctx); err != nil {
		s.logger.Warn("initial offer load failed", zap.String("session_id", s.ID), zap.Error(err))
	}
	return nil
}

// RefreshOffers refetches the local user's offers and reconciles them with
// offers seen on the stream. On failure the previous offers are kept.
func (s *Session) RefreshOffers(ctx context.Context) error {
	bulk, err := s.market.AllOffers(ctx, s.Local.WalletAddress)
	if err != nil {
		return err
	}

	st := s.update(func(st State) State {
		st.Offers = offers.Reconcile(st.Index, st.Realtime, bulk, s.parties, s.names.Load())
		return st
	})
	s.publish(UpdateOffers, st.Offers)

	s.logger.Debug("offers refreshed",
		zap.String("session_id", s.ID),
		zap.Int("made", len(st.Offers.Made)),
		zap.Int("received", len(st.Offers.Received)))
	return nil
}

// LoadCollection loads one collection of a wallet and installs it in the
// index. Failed fetches leave the index unchanged and return an empty list.
func (s *Session) LoadCollection(ctx context.Context, q ownership.CollectionQuery) ([]models.NFT, error) {
	nfts, err := s.nfts.LoadCollection(ctx, q)
	if errors.Is(err, ErrCollectionLoading) {
		return nil, err
	}
	if err != nil {
		s.logger.Warn("collection load failed", zap.String("key", q.Key()), zap.Error(err))
		return []models.NFT{}, nil
	}

	st := s.update(func(st State) State {
		st.Index = ownership.ReplaceCollection(st.Index, q, withoutForeign(st.Index, q.Wallet, nfts))
		return st
	})
	s.publish(UpdateIndex, st.Index)

	return nfts, nil
}

// withoutForeign drops tokens the index shows as held by another wallet
func withoutForeign(idx models.Index, wallet string, nfts []models.NFT) []models.NFT {
	out := make([]models.NFT, 0, len(nfts))
	for _, nft := range nfts {
		if owner, ok := idx.OwnerOf(nft.NFTID); ok && owner != wallet {
			continue
		}
		out = append(out, nft)
	}
	return out
}

// HandleTransaction classifies one ledger transaction and applies it.
// Transactions must be handled in arrival order.
func (s *Session) HandleTransaction(ctx context.Context, tx ledger.Transaction) {
	action := s.classifier.Classify(tx, s.Snapshot().Index)

	switch a := action.(type) {
	case ledger.OfferAccepted:
		s.applyAcceptance(a)
	case ledger.OffersCancelled:
		s.applyCancellation(a)
	case ledger.OfferCreated:
		s.applyIncoming(ctx, a)
	case ledger.Unclassified:
		s.logger.Debug("transaction ignored",
			zap.String("session_id", s.ID),
			zap.String("hash", tx.Hash),
			zap.String("reason", a.Reason))
	}
}

func (s *Session) applyAcceptance(a ledger.OfferAccepted) {
	changed := false
	st := s.update(func(st State) State {
		st.Offers = st.Offers.Accept(a.AffectedOfferIDs)
		st.Realtime = offers.Without(st.Realtime, a.AffectedOfferIDs)

		if a.NFTID != "" && a.SellerWallet != "" {
			idx := ownership.ApplyTransfer(st.Index, ownership.Transfer{
				NFTID:        a.NFTID,
				SellerWallet: a.SellerWallet,
				BuyerWallet:  a.BuyerWallet,
			}, s.logger)
			if !sameIndex(idx, st.Index) {
				changed = true
				st.Index = idx
				s.names.Store(s.names.Load().WithIndex(idx))
			}
		}
		return st
	})

	s.logger.Info("offer accepted",
		zap.String("session_id", s.ID),
		zap.String("nft_id", a.NFTID),
		zap.String("seller", a.SellerWallet),
		zap.String("buyer", a.BuyerWallet),
		zap.Bool("brokered", a.Brokered))

	if changed {
		s.nfts.Forget(a.SellerWallet)
		s.nfts.Forget(a.BuyerWallet)
		s.publish(UpdateIndex, st.Index)
	}
	s.publish(UpdateOffers, st.Offers)

	if s.activity != nil {
		if _, err := s.activity.RecordAcceptance(a.NFTID, a.SellerWallet, a.BuyerWallet, a.AffectedOfferIDs, a.Brokered); err != nil {
			s.logger.Warn("failed to record acceptance", zap.String("nft_id", a.NFTID), zap.Error(err))
		}
	}
}

func (s *Session) applyCancellation(c ledger.OffersCancelled) {
	st := s.update(func(st State) State {
		st.Offers = st.Offers.Cancel(c.OfferIDs)
		st.Realtime = offers.Without(st.Realtime, c.OfferIDs)
		return st
	})
	s.publish(UpdateOffers, st.Offers)

	if s.activity != nil {
		if _, err := s.activity.RecordCancellation(c.Account, c.OfferIDs); err != nil {
			s.logger.Warn("failed to record cancellation", zap.Strings("offer_ids", c.OfferIDs), zap.Error(err))
		}
	}
}

func (s *Session) applyIncoming(ctx context.Context, c ledger.OfferCreated) {
	entry := models.OfferEntry{Offer: c.Offer, NFT: c.NFT}
	entry.Offer.Source = models.OfferSourceRealtime
	if entry.NFT == nil && entry.Offer.NFTID != "" {
		entry.NFT = s.describe(ctx, entry.Offer.NFTID)
	}

	added := false
	st := s.update(func(st State) State {
		if st.Offers.Contains(entry.Offer.OfferID) {
			return st
		}
		added = true
		st.Realtime = append(append([]models.OfferEntry(nil), st.Realtime...), entry)
		st.Offers = st.Offers.AddIncoming(entry, s.names.Load())
		return st
	})
	if !added {
		return
	}

	s.logger.Info("incoming offer",
		zap.String("session_id", s.ID),
		zap.String("kind", string(c.Kind)),
		zap.String("offer_id", entry.Offer.OfferID),
		zap.String("nft_id", entry.Offer.NFTID))

	incoming := st.Offers.Received[len(st.Offers.Received)-1]
	s.publish(UpdateIncomingOffer, incoming)
	s.publish(UpdateOffers, st.Offers)
}

// describe fetches display metadata for a token outside the index
func (s *Session) describe(ctx context.Context, nftID string) *models.NFT {
	meta, err := s.market.Metadata(ctx, nftID)
	if err != nil {
		s.logger.Debug("metadata lookup failed", zap.String("nft_id", nftID), zap.Error(err))
		return nil
	}
	return &models.NFT{
		NFTID:    nftID,
		ImageURI: meta.Image,
		Metadata: models.NFTMetadata{Name: meta.Name, Image: meta.Image},
	}
}

// Run loads the session and then follows the peers' ledger activity until
// ctx ends or the stream fails. The stream is not re-established.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Load(ctx); err != nil {
		return err
	}

	peers := s.wallets.PeerWallets(s.Members, s.Local.WalletAddress)
	if len(peers) == 0 {
		s.logger.Info("no peers to follow", zap.String("session_id", s.ID))
		return nil
	}

	s.update(func(st State) State {
		st.Streaming = true
		return st
	})

	err := s.stream.Subscribe(ctx, peers, func(tx ledger.Transaction) {
		s.HandleTransaction(ctx, tx)
	})

	st := s.update(func(st State) State {
		st.Streaming = false
		if err != nil && ctx.Err() == nil {
			st.StreamErr = err.Error()
		}
		return st
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.Error("ledger stream lost", zap.String("session_id", s.ID), zap.Error(err))
	s.publish(UpdateStreamClosed, map[string]string{"error": st.StreamErr})
	return err
}

// sameIndex reports whether ApplyTransfer returned its input unchanged
func sameIndex(a, b models.Index) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return &a[0] == &b[0]
}
