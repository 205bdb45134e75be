package models

import (
	"time"
)

// MembershipStateJoin is the membership state of active room members
const MembershipStateJoin = "join"

// Member represents a room member
type Member struct {
	Name          string `json:"name"`
	UserID        string `json:"userId"`
	WalletAddress string `json:"walletAddress"`
}

// MembershipEvent is a room membership entry as reported by the widget host
type MembershipEvent struct {
	DisplayName string `json:"displayname"`
	Sender      string `json:"sender"`
	Membership  string `json:"membership"`
}

// SessionRequest represents a request to open a widget session
type SessionRequest struct {
	DisplayName string            `json:"displayName"`
	Members     []MembershipEvent `json:"members"`
}

// AuthToken represents the session token response
type AuthToken struct {
	Token         string    `json:"token"`
	ExpiresAt     time.Time `json:"expires_at"`
	SessionID     string    `json:"session_id"`
	WalletAddress string    `json:"wallet_address"`
	Members       []Member  `json:"members,omitempty"`
}
