package offers

import (
	"github.com/satonic/roomtrade/internal/models"
)

// Resolver turns a wallet address into a display name
type Resolver interface {
	Resolve(address string) string
}

// Parties identifies the wallets whose offers are relevant to the room
type Parties struct {
	LocalWallet  string
	BrokerWallet string
}

// Book holds the offers surfaced to the local user. Books are values;
// every operation returns a new Book.
type Book struct {
	Made     []models.OfferEntry `json:"made"`
	Received []models.OfferEntry `json:"received"`
}

// Total counts made and received offers
func (b Book) Total() int {
	return len(b.Made) + len(b.Received)
}

// Reconcile merges bulk-fetched offers with offers seen on the live stream.
// Bulk entries win over realtime entries with the same offer id.
func Reconcile(idx models.Index, realtime []models.OfferEntry, bulk models.BulkOffers, p Parties, names Resolver) Book {
	var book Book
	seen := make(map[string]struct{})

	add := func(entry models.OfferEntry) {
		id := entry.Offer.OfferID
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		if !p.Relevant(entry.Offer) {
			return
		}

		switch {
		case entry.Offer.OfferOwner == p.LocalWallet:
			seen[id] = struct{}{}
			book.Made = append(book.Made, withName(entry, names))
		case isReceived(idx, entry, p):
			seen[id] = struct{}{}
			book.Received = append(book.Received, withName(entry, names))
		}
	}

	for _, e := range bulk.UserCreated {
		add(e)
	}
	for _, e := range bulk.Counter {
		add(e)
	}
	for _, e := range bulk.Private {
		add(e)
	}
	for _, e := range realtime {
		add(e)
	}
	return book
}

// Relevant reports whether the offer concerns the room: a plain transfer,
// an offer involving the broker, or one involving the local wallet
func (p Parties) Relevant(o models.Offer) bool {
	if o.Destination == "" && o.Amount.IsZero() {
		return true
	}
	if p.BrokerWallet != "" && (o.OfferOwner == p.BrokerWallet || o.Destination == p.BrokerWallet) {
		return true
	}
	return p.LocalWallet != "" && (o.OfferOwner == p.LocalWallet || o.Destination == p.LocalWallet)
}

func isReceived(idx models.Index, entry models.OfferEntry, p Parties) bool {
	o := entry.Offer
	switch o.Source {
	case models.OfferSourceCounter:
		return idx.Holds(p.LocalWallet, o.NFTID)
	case models.OfferSourcePrivate:
		return o.Destination == p.LocalWallet
	case models.OfferSourceRealtime:
		return o.Destination == p.LocalWallet || idx.Holds(p.LocalWallet, o.NFTID)
	default:
		return false
	}
}

// Cancel removes the offers with the given ids from both sides. Unknown
// ids are ignored.
func (b Book) Cancel(ids []string) Book {
	if len(ids) == 0 {
		return b
	}
	return Book{
		Made:     Without(b.Made, ids),
		Received: Without(b.Received, ids),
	}
}

// Accept removes the offers consumed by an acceptance
func (b Book) Accept(offerIDs []string) Book {
	return b.Cancel(offerIDs)
}

// AddIncoming adds a proposal seen on the live stream to the received side
// unless an offer with the same id is already present
func (b Book) AddIncoming(entry models.OfferEntry, names Resolver) Book {
	id := entry.Offer.OfferID
	if id == "" || b.Contains(id) {
		return b
	}
	received := make([]models.OfferEntry, len(b.Received), len(b.Received)+1)
	copy(received, b.Received)
	return Book{
		Made:     b.Made,
		Received: append(received, withName(entry, names)),
	}
}

// Contains reports whether either side holds the offer
func (b Book) Contains(offerID string) bool {
	for _, e := range b.Made {
		if e.Offer.OfferID == offerID {
			return true
		}
	}
	for _, e := range b.Received {
		if e.Offer.OfferID == offerID {
			return true
		}
	}
	return false
}

// Renamed re-resolves every owner name
func (b Book) Renamed(names Resolver) Book {
	out := Book{
		Made:     make([]models.OfferEntry, len(b.Made)),
		Received: make([]models.OfferEntry, len(b.Received)),
	}
	for i, e := range b.Made {
		out.Made[i] = withName(e, names)
	}
	for i, e := range b.Received {
		out.Received[i] = withName(e, names)
	}
	return out
}

// Without returns the entries whose offer id is not in ids
func Without(entries []models.OfferEntry, ids []string) []models.OfferEntry {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	out := make([]models.OfferEntry, 0, len(entries))
	for _, e := range entries {
		if _, ok := drop[e.Offer.OfferID]; ok {
			continue
		}
		out = append(out, e)
	}
	return out
}

func withName(entry models.OfferEntry, names Resolver) models.OfferEntry {
	if names != nil {
		entry.Offer.OfferOwnerName = names.Resolve(entry.Offer.OfferOwner)
	}
	return entry
}
