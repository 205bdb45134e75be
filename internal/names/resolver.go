package names

import (
	"github.com/satonic/roomtrade/internal/models"
)

const (
	brokerName  = "Broker"
	selfName    = "You"
	unknownName = "Unknown"
)

// Resolver maps wallet addresses to display names. It is immutable; use
// WithIndex to derive a resolver for a newer ownership index.
type Resolver struct {
	members     map[string]string
	index       map[string]string
	broker      string
	localWallet string
	localName   string
}

// NewResolver builds a resolver from room membership, the ownership index,
// the broker wallet and the local user's identity
func NewResolver(members []models.Member, idx models.Index, broker, localWallet, localName string) *Resolver {
	r := &Resolver{
		members:     make(map[string]string, len(members)),
		broker:      broker,
		localWallet: localWallet,
		localName:   localName,
	}
	for _, m := range members {
		if m.WalletAddress != "" && m.Name != "" {
			r.members[m.WalletAddress] = m.Name
		}
	}
	r.index = indexNames(idx)
	return r
}

// WithIndex returns a copy of the resolver using names from idx
func (r *Resolver) WithIndex(idx models.Index) *Resolver {
	next := *r
	next.index = indexNames(idx)
	return &next
}

// Resolve returns a display name for the address. It never fails: unknown
// addresses are shown truncated.
func (r *Resolver) Resolve(address string) string {
	if address == "" {
		return unknownName
	}
	if name, ok := r.members[address]; ok {
		return name
	}
	if name, ok := r.index[address]; ok {
		return name
	}
	if r.broker != "" && address == r.broker {
		return brokerName
	}
	if address == r.localWallet {
		if r.localName != "" {
			return r.localName
		}
		return selfName
	}
	return Truncate(address)
}

// Truncate shortens an address to its first 6 and last 4 characters
func Truncate(address string) string {
	if address == "" {
		return unknownName
	}
	if len(address) < 10 {
		return address
	}
	return address[:6] + "…" + address[len(address)-4:]
}

func indexNames(idx models.Index) map[string]string {
	out := make(map[string]string)
	for _, u := range idx {
		if u.WalletAddress != "" && u.Name != "" {
			out[u.WalletAddress] = u.Name
		}
		for _, g := range u.GroupedNFTs {
			for _, n := range g.NFTs {
				if n.OwnerWallet == "" || n.OwnerName == "" {
					continue
				}
				if _, ok := out[n.OwnerWallet]; !ok {
					out[n.OwnerWallet] = n.OwnerName
				}
			}
		}
	}
	return out
}
