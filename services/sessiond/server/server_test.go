package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"votesync/chain"
	"votesync/events"
	"votesync/observability"
	"votesync/services/sessiond/middleware"
	"votesync/session"
	"votesync/session/sessiontest"
	"votesync/storage"
	"votesync/store"
	"votesync/voting"
	"votesync/wallet"
)

const expectedNetwork = 1337

var (
	contractAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	admin        = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	voterAddr    = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

type fixture struct {
	handler  http.Handler
	store    *store.Store
	provider *sessiontest.Provider
	contract *sessiontest.Contract
}

type fixtureOpts struct {
	network uint64
	dial    wallet.Dialer
	secret  string
}

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()
	if opts.network == 0 {
		opts.network = expectedNetwork
	}
	provider := sessiontest.NewProvider(opts.network, admin, voterAddr)
	contract := sessiontest.NewContract(contractAddr, admin)
	dial := opts.dial
	if dial == nil {
		dial = provider.Dialer()
	}
	registry := prometheus.NewRegistry()
	metrics := observability.NewSessionMetrics(registry)
	bridge := events.NewBridge(events.Config{Metrics: metrics})
	mgr, err := session.New(session.Config{
		Guard:           chain.NewGuard(expectedNetwork),
		Dial:            dial,
		ContractAddress: contractAddr,
		Bind:            contract.Binder(),
		Bridge:          bridge,
		Metrics:         metrics,
	})
	require.NoError(t, err)
	st, err := store.New(store.Config{Manager: mgr, Bridge: bridge, Ledger: storage.NewMemLedger(), Metrics: metrics})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = st.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		st.Close()
		mgr.Close()
		bridge.Close()
	})
	_ = st.Boot(context.Background())

	srv, err := New(Config{
		Store:       st,
		Gatherer:    registry,
		Auth:        middleware.NewAuthenticator(opts.secret, nil),
		RateLimiter: middleware.NewRateLimiter(6000, 100),
	})
	require.NoError(t, err)
	return &fixture{handler: srv.Handler(), store: st, provider: provider, contract: contract}
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec.Code, rec.Body.Bytes()
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	code, body := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", string(body))

	code, body = f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(body), "votesync_boot_total")
}

func TestSessionSnapshotAfterConnect(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	code, body := f.do(t, http.MethodGet, "/v1/session", "")
	require.Equal(t, http.StatusOK, code)
	before := decode[sessionDTO](t, body)
	require.False(t, before.Connected)
	require.Equal(t, "0x", before.Address)
	require.True(t, before.NetworkValid)
	require.Equal(t, "Localhost", before.NetworkName)
	require.NotNil(t, before.Phase)
	require.Equal(t, "Registering voters", before.Phase.Label)

	code, body = f.do(t, http.MethodPost, "/v1/wallet/connect", "")
	require.Equal(t, http.StatusOK, code, string(body))
	after := decode[sessionDTO](t, body)
	require.True(t, after.Connected)
	require.Equal(t, admin.Hex(), after.Address)
	require.True(t, after.IsAdmin)

	code, body = f.do(t, http.MethodPost, "/v1/wallet/disconnect", "")
	require.Equal(t, http.StatusOK, code)
	require.False(t, decode[sessionDTO](t, body).Connected)
}

func TestAdvancePhase(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	code, _ := f.do(t, http.MethodPost, "/v1/wallet/connect", "")
	require.Equal(t, http.StatusOK, code)

	code, body := f.do(t, http.MethodPost, "/v1/phase", `{"target":1}`)
	require.Equal(t, http.StatusAccepted, code, string(body))
	pending := decode[pendingDTO](t, body)
	require.Equal(t, "phase", pending.Kind)
	require.NotEmpty(t, pending.ID)
	require.Equal(t, admin.Hex(), pending.Subject)

	code, body = f.do(t, http.MethodPost, "/v1/phase", `{"target":3}`)
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, decode[errorDTO](t, body).Error, session.ErrInvalidPhaseTransition.Error())

	for _, raw := range []string{`{"target":9}`, `{}`, `{"target":"x"}`, `{"target":1,"extra":true}`} {
		code, _ = f.do(t, http.MethodPost, "/v1/phase", raw)
		require.Equal(t, http.StatusBadRequest, code, raw)
	}
}

func TestWriteErrorMapping(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	// Not yet authorised: the wallet refuses to sign.
	code, _ := f.do(t, http.MethodPost, "/v1/tally", "")
	require.Equal(t, http.StatusPreconditionFailed, code)

	code, _ = f.do(t, http.MethodPost, "/v1/wallet/connect", "")
	require.Equal(t, http.StatusOK, code)

	code, _ = f.do(t, http.MethodPost, "/v1/proposals", `{"description":"   "}`)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/v1/voters", `{"address":"0x1234"}`)
	require.Equal(t, http.StatusBadRequest, code)

	f.contract.FailTransacts(&voting.RevertError{
		Method: voting.MethodAddVoter,
		Reason: "Already registered",
		Err:    errors.New("execution reverted: Already registered"),
	})
	code, body := f.do(t, http.MethodPost, "/v1/voters", `{"address":"`+strings.ToLower(voterAddr.Hex())+`"}`)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.Equal(t, "execution reverted: Already registered", decode[errorDTO](t, body).Error)

	f.contract.FailTransacts(errors.New("connection refused"))
	code, _ = f.do(t, http.MethodPost, "/v1/votes", `{"proposalId":0}`)
	require.Equal(t, http.StatusBadGateway, code)

	code, _ = f.do(t, http.MethodPost, "/v1/votes", `{}`)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestWrongNetworkConflicts(t *testing.T) {
	f := newFixture(t, fixtureOpts{network: 1})
	code, _ := f.do(t, http.MethodPost, "/v1/wallet/connect", "")
	require.Equal(t, http.StatusOK, code)

	code, body := f.do(t, http.MethodPost, "/v1/tally", "")
	require.Equal(t, http.StatusConflict, code, string(body))

	code, _ = f.do(t, http.MethodGet, "/v1/proposals", "")
	require.Equal(t, http.StatusConflict, code)

	code, body = f.do(t, http.MethodGet, "/v1/session", "")
	require.Equal(t, http.StatusOK, code)
	snapshot := decode[sessionDTO](t, body)
	require.False(t, snapshot.NetworkValid)
	require.Nil(t, snapshot.Phase)
}

func TestConnectWithoutWallet(t *testing.T) {
	f := newFixture(t, fixtureOpts{dial: sessiontest.NoWallet})
	code, _ := f.do(t, http.MethodPost, "/v1/wallet/connect", "")
	require.Equal(t, http.StatusPreconditionFailed, code)
}

func TestReads(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.contract.SetProposals(
		voting.Proposal{ID: 0, Description: "GENESIS", VoteCount: uint256.NewInt(0)},
		voting.Proposal{ID: 1, Description: "more coffee", VoteCount: uint256.NewInt(3)},
	)
	f.contract.SetWinner(1)
	f.contract.SetVoter(voterAddr, voting.Voter{IsRegistered: true, HasVoted: true, VotedProposalID: 1})

	code, body := f.do(t, http.MethodGet, "/v1/proposals", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, decode[[]proposalDTO](t, body), 2)

	code, body = f.do(t, http.MethodGet, "/v1/winner", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, proposalDTO{ID: 1, Description: "more coffee", VoteCount: "3"}, decode[proposalDTO](t, body))

	code, body = f.do(t, http.MethodGet, "/v1/voters/"+strings.ToLower(voterAddr.Hex()), "")
	require.Equal(t, http.StatusOK, code)
	voter := decode[voterDTO](t, body)
	require.Equal(t, voterAddr.Hex(), voter.Address)
	require.True(t, voter.HasVoted)

	code, _ = f.do(t, http.MethodGet, "/v1/voters/nope", "")
	require.Equal(t, http.StatusBadRequest, code)

	code, body = f.do(t, http.MethodGet, "/v1/networks/0x539", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, networkDTO{ID: 1337, Hex: "0x539", Name: "Localhost", Expected: true}, decode[networkDTO](t, body))

	code, body = f.do(t, http.MethodGet, "/v1/networks/1", "")
	require.Equal(t, http.StatusOK, code)
	require.False(t, decode[networkDTO](t, body).Expected)

	code, _ = f.do(t, http.MethodGet, "/v1/networks/zz", "")
	require.Equal(t, http.StatusBadRequest, code)
}

func TestWritesRequireTokenWhenConfigured(t *testing.T) {
	f := newFixture(t, fixtureOpts{secret: "s3cret"})
	code, _ := f.do(t, http.MethodPost, "/v1/wallet/connect", "")
	require.Equal(t, http.StatusUnauthorized, code)

	code, _ = f.do(t, http.MethodGet, "/v1/session", "")
	require.Equal(t, http.StatusOK, code)

	token, err := middleware.Sign("s3cret", "ops", time.Minute)
	require.NoError(t, err)
	code, _ = f.do(t, http.MethodPost, "/v1/wallet/connect", "", "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, code)
}

func TestSessionStream(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/session/stream", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	read := func() sessionDTO {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		return decode[sessionDTO](t, data)
	}
	require.False(t, read().Connected)

	resp, err := http.Post(ts.URL+"/v1/wallet/connect", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for {
		if snap := read(); snap.Connected {
			require.Equal(t, admin.Hex(), snap.Address)
			return
		}
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		chain.ErrInvalidAddress:                       http.StatusBadRequest,
		session.ErrEmptyProposal:                      http.StatusBadRequest,
		session.ErrNoSigner:                           http.StatusPreconditionFailed,
		wallet.ErrNoWallet:                            http.StatusPreconditionFailed,
		session.ErrNotConnected:                       http.StatusPreconditionFailed,
		session.ErrBadNetwork:                         http.StatusConflict,
		session.ErrNotBound:                           http.StatusConflict,
		&voting.RevertError{Err: errors.New("nope")}: http.StatusUnprocessableEntity,
		errors.New("boom"):                            http.StatusBadGateway,
	}
	for err, want := range cases {
		require.Equal(t, want, statusFor(err), err.Error())
	}
}
