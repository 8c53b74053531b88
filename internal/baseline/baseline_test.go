package baseline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeValidator answers the JSON-RPC methods the client uses.
type fakeValidator struct {
	mu       sync.Mutex
	calls    map[string]int
	unhealth int    // number of health checks to fail before reporting ok
	txErr    any    // error carried by every signature status
	status   string // confirmation status reported for every signature
	sent     []*solana.Transaction
}

func decodeSentTransaction(params []json.RawMessage) (*solana.Transaction, error) {
	if len(params) == 0 {
		return nil, errors.New("missing transaction param")
	}
	var encoded string
	if err := json.Unmarshal(params[0], &encoded); err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, err
	}
	if len(tx.Signatures) == 0 {
		return nil, errors.New("unsigned transaction")
	}
	return tx, nil
}

func (f *fakeValidator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.calls[req.Method]++
	count := f.calls[req.Method]
	f.mu.Unlock()

	sig := solana.Signature{1, 2, 3}.String()
	var result any
	switch req.Method {
	case "getHealth":
		if count <= f.unhealth {
			writeJSON(w, map[string]any{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"error":   map[string]any{"code": -32005, "message": "Node is behind"},
			})
			return
		}
		result = "ok"
	case "requestAirdrop":
		result = sig
	case "sendTransaction":
		sent, err := decodeSentTransaction(req.Params)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.sent = append(f.sent, sent)
		f.mu.Unlock()
		result = sent.Signatures[0].String()
	case "getLatestBlockhash":
		result = map[string]any{
			"context": map[string]any{"slot": 1},
			"value": map[string]any{
				"blockhash":            solana.Hash{9}.String(),
				"lastValidBlockHeight": 100,
			},
		}
	case "getSignatureStatuses":
		result = map[string]any{
			"context": map[string]any{"slot": 1},
			"value": []any{map[string]any{
				"slot":               1,
				"confirmations":      nil,
				"err":                f.txErr,
				"confirmationStatus": f.status,
			}},
		}
	case "getBalance":
		result = map[string]any{
			"context": map[string]any{"slot": 1},
			"value":   42,
		}
	default:
		http.Error(w, "unexpected method "+req.Method, http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
}

func (f *fakeValidator) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, f *fakeValidator) *Client {
	t.Helper()
	f.calls = make(map[string]int)
	if f.status == "" {
		f.status = "confirmed"
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return New(Config{RPCURL: srv.URL, PollInterval: time.Millisecond}, nil)
}

func TestWaitHealthy(t *testing.T) {
	f := &fakeValidator{unhealth: 2}
	c := newTestClient(t, f)

	require.NoError(t, c.WaitHealthy(context.Background()))
	assert.Equal(t, 3, f.count("getHealth"))
}

func TestWaitHealthy_ContextDone(t *testing.T) {
	f := &fakeValidator{unhealth: 1 << 30}
	c := newTestClient(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.WaitHealthy(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFund(t *testing.T) {
	f := &fakeValidator{}
	c := newTestClient(t, f)

	alice := solana.NewWallet().PublicKey()
	bob := solana.NewWallet().PublicKey()
	require.NoError(t, c.Fund(context.Background(), 1_000_000_000, alice, bob))
	assert.Equal(t, 2, f.count("requestAirdrop"))
	assert.GreaterOrEqual(t, f.count("getSignatureStatuses"), 2)
}

func TestTransfer(t *testing.T) {
	f := &fakeValidator{}
	c := newTestClient(t, f)

	alice := solana.NewWallet().PrivateKey
	bob := solana.NewWallet().PublicKey()
	sig, err := c.Transfer(context.Background(), alice, bob, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, f.count("getLatestBlockhash"))
	assert.Equal(t, 1, f.count("sendTransaction"))

	require.Len(t, f.sent, 1)
	tx := f.sent[0]
	assert.Equal(t, sig, tx.Signatures[0])
	assert.Equal(t, alice.PublicKey(), tx.Message.AccountKeys[0])
	assert.Equal(t, solana.Hash{9}, tx.Message.RecentBlockhash)
	require.NoError(t, tx.VerifySignatures())
}

func TestTransfer_SameBlockhash(t *testing.T) {
	f := &fakeValidator{}
	c := newTestClient(t, f)
	ctx := context.Background()

	alice := solana.NewWallet().PrivateKey
	bob := solana.NewWallet().PublicKey()

	// Every call sees the same blockhash, so only the amount can tell transfers apart.
	first, err := c.Transfer(ctx, alice, bob, 10)
	require.NoError(t, err)
	repeat, err := c.Transfer(ctx, alice, bob, 10)
	require.NoError(t, err)
	next, err := c.Transfer(ctx, alice, bob, 11)
	require.NoError(t, err)

	assert.Equal(t, first, repeat)
	assert.NotEqual(t, first, next)
}

func TestTransfer_Failed(t *testing.T) {
	f := &fakeValidator{txErr: map[string]any{"InstructionError": []any{0, "InsufficientFunds"}}}
	c := newTestClient(t, f)

	_, err := c.Transfer(context.Background(), solana.NewWallet().PrivateKey, solana.NewWallet().PublicKey(), 10)
	assert.ErrorIs(t, err, ErrTransactionFailed)
}

func TestBalance(t *testing.T) {
	c := newTestClient(t, &fakeValidator{})

	lamports, err := c.Balance(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), lamports)
}

func TestReached(t *testing.T) {
	assert.True(t, reached(rpc.ConfirmationStatusFinalized, rpc.CommitmentFinalized))
	assert.False(t, reached(rpc.ConfirmationStatusConfirmed, rpc.CommitmentFinalized))
	assert.True(t, reached(rpc.ConfirmationStatusConfirmed, rpc.CommitmentConfirmed))
	assert.False(t, reached(rpc.ConfirmationStatusProcessed, rpc.CommitmentConfirmed))
	assert.True(t, reached(rpc.ConfirmationStatusProcessed, rpc.CommitmentProcessed))
	assert.False(t, reached("", rpc.CommitmentProcessed))
}
