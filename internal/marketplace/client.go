package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/satonic/roomtrade/internal/config"
	"github.com/satonic/roomtrade/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	tokenHeader     = "x-bithomp-token"
	prefetchWorkers = 4
)

// Client talks to the NFT indexing API
type Client struct {
	baseURL  string
	token    string
	pageSize int
	http     *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewClient creates an indexing API client from configuration
func NewClient(cfg config.MarketplaceConfig, logger *zap.Logger) *Client {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 400
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		pageSize: pageSize,
		http:     &http.Client{Timeout: cfg.RequestTimeout.Duration},
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger,
	}
}

// ListNFTs returns every NFT held by owner, normalized
func (c *Client) ListNFTs(ctx context.Context, owner string) ([]models.NFT, error) {
	q := url.Values{}
	q.Set("owner", owner)
	q.Set("limit", strconv.Itoa(c.pageSize))
	q.Set("assets", "true")
	q.Set("collectionDetails", "true")

	var resp nftListResponse
	if err := c.get(ctx, "/nfts", q, &resp); err != nil {
		return nil, wrapError("listNFTs", owner, err)
	}

	nfts := make([]models.NFT, 0, len(resp.NFTs))
	for _, raw := range resp.NFTs {
		nft := raw.toModel()
		if nft.NFTID == "" {
			continue
		}
		if nft.OwnerWallet == "" {
			nft.OwnerWallet = owner
		}
		nfts = append(nfts, nft)
	}
	return nfts, nil
}

// Metadata fetches display metadata for a single NFT
func (c *Client) Metadata(ctx context.Context, nftID string) (Metadata, error) {
	q := url.Values{}
	q.Set("assets", "true")

	var raw rawNFT
	if err := c.get(ctx, "/metadata/"+url.PathEscape(nftID), q, &raw); err != nil {
		return Metadata{}, wrapError("metadata", nftID, err)
	}

	nft := raw.toModel()
	return Metadata{Name: nft.Metadata.Name, Image: nft.ImageURI}, nil
}

// ListOffers fetches one offer listing for address
func (c *Client) ListOffers(ctx context.Context, address string, list OfferList) ([]models.OfferEntry, error) {
	q := url.Values{}
	if list != ListUserCreated {
		q.Set("list", string(list))
	}
	q.Set("nftoken", "true")
	q.Set("offersValidate", "true")
	q.Set("assets", "true")

	var resp offerListResponse
	if err := c.get(ctx, "/nft-offers/"+url.PathEscape(address), q, &resp); err != nil {
		return nil, wrapError("listOffers", address, err)
	}

	source := sourceFor(list)
	entries := make([]models.OfferEntry, 0, len(resp.NFTOffers))
	for _, raw := range resp.NFTOffers {
		if raw.OfferIndex == "" {
			continue
		}
		entries = append(entries, raw.toEntry(source))
	}
	return entries, nil
}

// AllOffers fetches the three offer listings for address concurrently.
// Any failure fails the whole call.
func (c *Client) AllOffers(ctx context.Context, address string) (models.BulkOffers, error) {
	var bulk models.BulkOffers
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		entries, err := c.ListOffers(gctx, address, ListUserCreated)
		bulk.UserCreated = entries
		return err
	})
	g.Go(func() error {
		entries, err := c.ListOffers(gctx, address, ListCounterOffers)
		bulk.Counter = entries
		return err
	})
	g.Go(func() error {
		entries, err := c.ListOffers(gctx, address, ListPrivate)
		bulk.Private = entries
		return err
	})

	if err := g.Wait(); err != nil {
		return models.BulkOffers{}, err
	}
	return bulk, nil
}

// Prefetch warms image caches in the background. Failures are ignored.
func (c *Client) Prefetch(ctx context.Context, urls []string) {
	targets := dedupe(urls)
	if len(targets) == 0 {
		return
	}

	go func() {
		var g errgroup.Group
		g.SetLimit(prefetchWorkers)
		for _, target := range targets {
			target := target
			g.Go(func() error {
				if err := c.fetch(ctx, target); err != nil {
					c.logger.Debug("prefetch failed", zap.String("url", target), zap.Error(err))
				}
				return nil
			})
		}
		g.Wait()
	}()
}

func (c *Client) fetch(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set(tokenHeader, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		io.Copy(io.Discard, resp.Body)
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrUnauthorized
	case code >= 500:
		return fmt.Errorf("%w: status %d", ErrServer, code)
	default:
		return fmt.Errorf("unexpected status %d", code)
	}
}

func sourceFor(list OfferList) models.OfferSource {
	switch list {
	case ListCounterOffers:
		return models.OfferSourceCounter
	case ListPrivate:
		return models.OfferSourcePrivate
	default:
		return models.OfferSourceUserCreated
	}
}

func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
