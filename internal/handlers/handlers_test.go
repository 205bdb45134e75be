package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/satonic/roomtrade/internal/config"
	"github.com/satonic/roomtrade/internal/ledger"
	"github.com/satonic/roomtrade/internal/marketplace"
	"github.com/satonic/roomtrade/internal/models"
	"github.com/satonic/roomtrade/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	localWallet = "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"
	peerWallet  = "rPEPPER7kfTD9w2To4CQk6UCfuHM9c6GDY"
	botAccount  = "@tokengatebot:synapse.textrp.io"
)

type stubMarket struct {
	mu       sync.Mutex
	holdings map[string][]models.NFT
	offers   models.BulkOffers
	offerErr error
}

func (m *stubMarket) ListNFTs(ctx context.Context, owner string) ([]models.NFT, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holdings[owner], nil
}

func (m *stubMarket) Metadata(ctx context.Context, nftID string) (marketplace.Metadata, error) {
	return marketplace.Metadata{}, marketplace.ErrNotFound
}

func (m *stubMarket) AllOffers(ctx context.Context, address string) (models.BulkOffers, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offers, m.offerErr
}

func (m *stubMarket) set(fn func(m *stubMarket)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

func (m *stubMarket) Prefetch(ctx context.Context, urls []string) {}

// idleStream follows the ledger until the session stops
type idleStream struct{}

func (idleStream) Subscribe(ctx context.Context, accounts []string, handle ledger.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

type stubTrades struct {
	mu     sync.Mutex
	wallet string
	limit  int
	events []models.LedgerEvent
	err    error
}

func (s *stubTrades) ListByWallet(wallet string, limit int) ([]models.LedgerEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallet = wallet
	s.limit = limit
	return s.events, s.err
}

type testServer struct {
	*httptest.Server
	market  *stubMarket
	manager *services.SessionManager
	hub     *Hub
}

func (s *stubTrades) last() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallet, s.limit
}

func newTestServer(t *testing.T, trades TradeLister) *testServer {
	t.Helper()

	market := &stubMarket{
		holdings: map[string][]models.NFT{
			peerWallet:  {{NFTID: "N001", Issuer: "rIssuer", Taxon: 7, CollectionName: "Apes"}},
			localWallet: {{NFTID: "N009", Issuer: "rOther", Taxon: 1, CollectionName: "Other"}},
		},
		offers: models.BulkOffers{UserCreated: []models.OfferEntry{{Offer: models.Offer{
			OfferID: "MADE1", NFTID: "N009", OfferOwner: localWallet,
			Amount: models.NewDrops("5000000"), IsSell: true, Source: models.OfferSourceUserCreated,
		}}}},
	}

	logger := zap.NewNop()
	manager := services.NewSessionManager(services.SessionDeps{
		Market:  market,
		Stream:  idleStream{},
		Wallets: services.NewWalletService(botAccount),
	}, logger)
	hub := NewHub(manager, logger)
	manager.SetPublisher(hub)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	router := NewRouter(RouterConfig{
		Sessions:       manager,
		Auth:           services.NewAuthService(config.AuthConfig{JWTSecret: "test-secret", JWTExpiration: 1}),
		Hub:            hub,
		Trades:         trades,
		AllowedOrigins: []string{"*"},
		Logger:         logger,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		manager.StopAll()
		srv.Close()
		cancel()
	})
	return &testServer{Server: srv, market: market, manager: manager, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func sessionRequest(displayName string) models.SessionRequest {
	return models.SessionRequest{
		DisplayName: displayName,
		Members: []models.MembershipEvent{
			{DisplayName: "Me", Sender: "@" + localWallet + ":synapse.textrp.io", Membership: "join"},
			{DisplayName: "Peer", Sender: "@" + peerWallet + ":synapse.textrp.io", Membership: "join"},
			{DisplayName: "Bot", Sender: botAccount, Membership: "join"},
		},
	}
}

// login opens a session and waits for its initial load
func (s *testServer) login(t *testing.T) models.AuthToken {
	t.Helper()

	resp := s.do(t, http.MethodPost, "/api/sessions", "", sessionRequest("Me"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var token models.AuthToken
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&token))

	session, err := s.manager.Get(token.SessionID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		st := session.Snapshot()
		return !st.Loading && st.Streaming
	}, 2*time.Second, 10*time.Millisecond)
	return token
}

func TestCreateSession(t *testing.T) {
	srv := newTestServer(t, nil)

	token := srv.login(t)
	assert.NotEmpty(t, token.Token)
	assert.Equal(t, localWallet, token.WalletAddress)
	assert.Len(t, token.Members, 2)
	assert.True(t, token.ExpiresAt.After(time.Now()))
}

func TestCreateSession_Rejections(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := srv.do(t, http.MethodPost, "/api/sessions", "", sessionRequest("Stranger"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = srv.do(t, http.MethodPost, "/api/sessions", "", sessionRequest(""))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/sessions", strings.NewReader("{"))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)

	assert.Equal(t, 0, srv.manager.Count())
}

func TestAuthMiddleware(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := srv.do(t, http.MethodGet, "/api/index", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = srv.do(t, http.MethodGet, "/api/index", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/index", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Token abc")
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, raw.StatusCode)
}

func TestGetIndexAndOffers(t *testing.T) {
	srv := newTestServer(t, nil)
	token := srv.login(t)

	resp := srv.do(t, http.MethodGet, "/api/index", token.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st struct {
		Index     models.Index `json:"index"`
		Loading   bool         `json:"loading"`
		Streaming bool         `json:"streaming"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.False(t, st.Loading)
	assert.True(t, st.Streaming)
	assert.True(t, st.Index.Holds(peerWallet, "N001"))
	assert.True(t, st.Index.Holds(localWallet, "N009"))

	resp = srv.do(t, http.MethodGet, "/api/offers", token.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var book struct {
		Made     []models.OfferEntry `json:"made"`
		Received []models.OfferEntry `json:"received"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&book))
	require.Len(t, book.Made, 1)
	assert.Equal(t, "MADE1", book.Made[0].Offer.OfferID)
}

func TestRefreshOffers(t *testing.T) {
	srv := newTestServer(t, nil)
	token := srv.login(t)

	resp := srv.do(t, http.MethodPost, "/api/offers/refresh", token.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	srv.market.set(func(m *stubMarket) { m.offerErr = errors.New("upstream down") })
	resp = srv.do(t, http.MethodPost, "/api/offers/refresh", token.Token, nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestGetCollection(t *testing.T) {
	srv := newTestServer(t, nil)
	token := srv.login(t)

	srv.market.set(func(m *stubMarket) {
		m.holdings[peerWallet] = []models.NFT{
			{NFTID: "N001", Issuer: "rIssuer", Taxon: 7, CollectionName: "Apes"},
			{NFTID: "N002", Issuer: "rIssuer", Taxon: 7, CollectionName: "Apes"},
		}
	})

	resp := srv.do(t, http.MethodGet, "/api/collections/"+peerWallet+"?issuer=rIssuer&taxon=7", token.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Wallet string       `json:"wallet"`
		NFTs   []models.NFT `json:"nfts"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, peerWallet, body.Wallet)
	assert.Len(t, body.NFTs, 2)

	session, err := srv.manager.Get(token.SessionID)
	require.NoError(t, err)
	assert.True(t, session.Snapshot().Index.Holds(peerWallet, "N002"))
}

func TestGetCollection_BadQuery(t *testing.T) {
	srv := newTestServer(t, nil)
	token := srv.login(t)

	tests := []struct {
		name string
		path string
	}{
		{"missing collection", "/api/collections/" + peerWallet},
		{"bad taxon", "/api/collections/" + peerWallet + "?issuer=rIssuer&taxon=-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := srv.do(t, http.MethodGet, tt.path, token.Token, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestGetName(t *testing.T) {
	srv := newTestServer(t, nil)
	token := srv.login(t)

	tests := []struct {
		address string
		want    string
	}{
		{peerWallet, "Peer"},
		{localWallet, "Me"},
		{"rUNKNOWNxxxxxxxxxxxxxxxxxx1234", "rUNKNO…1234"},
	}
	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			resp := srv.do(t, http.MethodGet, "/api/names/"+tt.address, token.Token, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.want, body["name"])
		})
	}
}

func TestGetTrades(t *testing.T) {
	trades := &stubTrades{events: []models.LedgerEvent{{Kind: models.LedgerEventAccepted, NFTID: "N001"}}}
	srv := newTestServer(t, trades)
	token := srv.login(t)

	resp := srv.do(t, http.MethodGet, "/api/trades?limit=5", token.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var events []models.LedgerEvent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
	require.Len(t, events, 1)
	wallet, limit := trades.last()
	assert.Equal(t, localWallet, wallet)
	assert.Equal(t, 5, limit)

	resp = srv.do(t, http.MethodGet, "/api/trades?wallet="+peerWallet, token.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	wallet, _ = trades.last()
	assert.Equal(t, peerWallet, wallet)

	resp = srv.do(t, http.MethodGet, "/api/trades?limit=abc", token.Token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetTrades_StoreDisabled(t *testing.T) {
	srv := newTestServer(t, nil)
	token := srv.login(t)

	resp := srv.do(t, http.MethodGet, "/api/trades", token.Token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestEndSession(t *testing.T) {
	srv := newTestServer(t, nil)
	token := srv.login(t)

	resp := srv.do(t, http.MethodDelete, "/api/sessions/current", token.Token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, srv.manager.Count())

	resp = srv.do(t, http.MethodGet, "/api/index", token.Token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = srv.do(t, http.MethodDelete, "/api/sessions/current", token.Token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func readMessage(t *testing.T, conn *websocket.Conn) WebSocketMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg WebSocketMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocket(t *testing.T) {
	srv := newTestServer(t, nil)
	token := srv.login(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token.Token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	msg := readMessage(t, conn)
	assert.Equal(t, MessageSnapshot, msg.Type)
	assert.Contains(t, string(msg.Payload), "N001")

	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: "ping"}))
	assert.Equal(t, MessagePong, readMessage(t, conn).Type)

	srv.hub.Publish(token.SessionID, services.Update{Type: services.UpdateOffers, Payload: map[string]int{"made": 1}})
	msg = readMessage(t, conn)
	assert.Equal(t, services.UpdateOffers, msg.Type)
	assert.JSONEq(t, `{"made":1}`, string(msg.Payload))

	srv.hub.Publish("another-session", services.Update{Type: services.UpdateIndex})
	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: "bogus"}))
	assert.Equal(t, MessageError, readMessage(t, conn).Type)
}

func TestWebSocket_RequiresToken(t *testing.T) {
	srv := newTestServer(t, nil)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
