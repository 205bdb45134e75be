package marketplace

import (
	"errors"
	"fmt"
)

// Sentinel errors for indexing API operations.
var (
	ErrNotFound     = errors.New("marketplace: not found")
	ErrRateLimited  = errors.New("marketplace: rate limited by server")
	ErrUnauthorized = errors.New("marketplace: unauthorized")
	ErrServer       = errors.New("marketplace: server error")
)

// Error wraps an underlying error with operation context.
type Error struct {
	Op  string // Operation: "listNFTs", "metadata", "listOffers"
	Key string // wallet address or NFT id
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("marketplace %s [%s]: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapError(op, key string, err error) error {
	return &Error{Op: op, Key: key, Err: err}
}
