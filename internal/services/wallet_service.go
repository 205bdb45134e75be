package services

import (
	"strings"

	"github.com/satonic/roomtrade/internal/models"
)

// rippleAlphabet is the base58 alphabet used by classic ledger addresses
const rippleAlphabet = "rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz"

// WalletService handles room membership and wallet address operations
type WalletService struct {
	serviceAccount string
}

// NewWalletService creates a new WalletService. Membership entries sent by
// serviceAccount are never treated as room members.
func NewWalletService(serviceAccount string) *WalletService {
	return &WalletService{serviceAccount: serviceAccount}
}

// MembersFromEvents converts joined membership entries to members
func (s *WalletService) MembersFromEvents(events []models.MembershipEvent) []models.Member {
	members := make([]models.Member, 0, len(events))
	seen := make(map[string]struct{}, len(events))

	for _, e := range events {
		if e.Membership != models.MembershipStateJoin {
			continue
		}
		if e.Sender == "" || e.Sender == s.serviceAccount {
			continue
		}
		if _, ok := seen[e.Sender]; ok {
			continue
		}
		seen[e.Sender] = struct{}{}

		members = append(members, models.Member{
			Name:          e.DisplayName,
			UserID:        e.Sender,
			WalletAddress: WalletFromUserID(e.Sender),
		})
	}
	return members
}

// LocalMember finds the member with the widget user's display name
func (s *WalletService) LocalMember(members []models.Member, displayName string) (models.Member, bool) {
	for _, m := range members {
		if m.Name == displayName {
			return m, true
		}
	}
	return models.Member{}, false
}

// PeerWallets lists the valid wallet addresses of every member except self
func (s *WalletService) PeerWallets(members []models.Member, self string) []string {
	var wallets []string
	for _, m := range members {
		if m.WalletAddress == self || !s.IsAddressValid(m.WalletAddress) {
			continue
		}
		wallets = append(wallets, m.WalletAddress)
	}
	return wallets
}

// IsAddressValid checks the shape of a classic ledger address
func (s *WalletService) IsAddressValid(address string) bool {
	if len(address) < 25 || len(address) > 35 || address[0] != 'r' {
		return false
	}
	for _, c := range address {
		if !strings.ContainsRune(rippleAlphabet, c) {
			return false
		}
	}
	return true
}

// WalletFromUserID strips the protocol sigil and home server from a room
// identity, e.g. "@rAbc:server" becomes "rAbc"
func WalletFromUserID(userID string) string {
	id := strings.TrimPrefix(userID, "@")
	if i := strings.Index(id, ":"); i >= 0 {
		id = id[:i]
	}
	return id
}
