package names

import (
	"testing"

	"github.com/satonic/roomtrade/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestResolve_Priority(t *testing.T) {
	members := []models.Member{{Name: "Alice", WalletAddress: "rAlice"}}
	idx := models.Index{
		{WalletAddress: "rAlice", Name: "Alice (index)"},
		{WalletAddress: "rBob", Name: "Bob"},
		{WalletAddress: "rCarol", GroupedNFTs: []models.CollectionGroup{{
			NFTs: []models.NFT{{NFTID: "N1", OwnerWallet: "rCarol", OwnerName: "Carol"}},
		}}},
	}
	r := NewResolver(members, idx, "rBrokerWallet", "rMe", "Me")

	tests := []struct {
		address string
		want    string
	}{
		{"rAlice", "Alice"},
		{"rBob", "Bob"},
		{"rCarol", "Carol"},
		{"rBrokerWallet", "Broker"},
		{"rMe", "Me"},
		{"rPQRSTUVWXYZabcd1234", "rPQRST…1234"},
		{"rShort", "rShort"},
		{"", "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.address))
		})
	}
}

func TestResolve_SelfWithoutName(t *testing.T) {
	r := NewResolver(nil, nil, "", "rMe", "")
	assert.Equal(t, "You", r.Resolve("rMe"))
}

func TestWithIndex(t *testing.T) {
	r := NewResolver(nil, nil, "", "rMe", "Me")
	assert.Equal(t, "rNewco…ller", r.Resolve("rNewcomerSeller"))

	next := r.WithIndex(models.Index{{WalletAddress: "rNewcomerSeller", Name: "Dana"}})
	assert.Equal(t, "Dana", next.Resolve("rNewcomerSeller"))
	assert.Equal(t, "rNewco…ller", r.Resolve("rNewcomerSeller"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Unknown", Truncate(""))
	assert.Equal(t, "r12345678", Truncate("r12345678"))
	assert.Equal(t, "r12345…6789", Truncate("r12345XX6789"))
}
