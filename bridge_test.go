package fasttester

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type setAccountCall struct {
	ptc                            Handle
	address, lamports, data, owner []byte
	executable                     uint8
	rentEpoch                      []byte
}

type processCall struct {
	rt, ptc    Handle
	message    []byte
	signers    []byte
	numSigners int
}

// recordingEngine records the raw arguments it receives.
type recordingEngine struct {
	rtErr, ptcErr error
	status        uint8
	failure       *EngineFailure
	initRuntimes  int
	initContexts  int
	closes        int
	setAccounts   []setAccountCall
	processes     []processCall
}

func (e *recordingEngine) InitRuntime(ctx context.Context) (Handle, error) {
	e.initRuntimes++
	return 7, e.rtErr
}

func (e *recordingEngine) InitContext(ctx context.Context, rt Handle) (Handle, error) {
	e.initContexts++
	return rt + 1, e.ptcErr
}

func (e *recordingEngine) SetAccount(ctx context.Context, ptc Handle, address, lamports, data, owner []byte, executable uint8, rentEpoch []byte) error {
	e.setAccounts = append(e.setAccounts, setAccountCall{ptc, address, lamports, data, owner, executable, rentEpoch})
	return nil
}

func (e *recordingEngine) Process(ctx context.Context, rt, ptc Handle, message, signers []byte, numSigners int) (uint8, error) {
	e.processes = append(e.processes, processCall{rt, ptc, message, signers, numSigners})
	return e.status, nil
}

func (e *recordingEngine) LastFailure(ctx context.Context, ptc Handle) (*EngineFailure, error) {
	return e.failure, nil
}

func (e *recordingEngine) Close(ctx context.Context) error {
	e.closes++
	return nil
}

func TestBridge_InitOnce(t *testing.T) {
	ctx := context.Background()
	eng := &recordingEngine{}

	b, err := NewBridge(ctx, eng)
	require.NoError(t, err)
	assert.Equal(t, 1, eng.initRuntimes)
	assert.Equal(t, 1, eng.initContexts)
	assert.Equal(t, Handle(7), b.rt)
	assert.Equal(t, Handle(8), b.ptc)
}

func TestBridge_InitFailure(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("boom")

	eng := &recordingEngine{ptcErr: cause}
	_, err := NewBridge(ctx, eng)
	require.Error(t, err)

	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "init_ptc", initErr.Stage)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, eng.closes)
}

func TestBridge_SetAccountDefaults(t *testing.T) {
	ctx := context.Background()
	eng := &recordingEngine{}
	b, err := NewBridge(ctx, eng)
	require.NoError(t, err)

	addr := solana.NewWallet().PublicKey()
	require.NoError(t, b.SetAccount(ctx, AccountRecord{Address: addr}))

	require.Len(t, eng.setAccounts, 1)
	call := eng.setAccounts[0]
	assert.Equal(t, Handle(8), call.ptc)
	assert.Equal(t, addr.Bytes(), call.address)
	assert.Equal(t, make([]byte, 8), call.lamports)
	assert.NotNil(t, call.data)
	assert.Empty(t, call.data)
	assert.Equal(t, solana.SystemProgramID.Bytes(), call.owner)
	assert.Equal(t, uint8(0), call.executable)
	assert.Equal(t, make([]byte, 8), call.rentEpoch)
}

func TestBridge_SetAccountFields(t *testing.T) {
	ctx := context.Background()
	eng := &recordingEngine{}
	b, err := NewBridge(ctx, eng)
	require.NoError(t, err)

	owner := solana.NewWallet().PublicKey()
	require.NoError(t, b.SetAccount(ctx, AccountRecord{
		Address:    solana.NewWallet().PublicKey(),
		Lamports:   0x0102030405060708,
		Data:       []byte{9, 9, 9},
		Owner:      owner,
		Executable: true,
		RentEpoch:  300,
	}))

	call := eng.setAccounts[0]
	assert.Equal(t, []byte{8, 7, 6, 5, 4, 3, 2, 1}, call.lamports)
	assert.Equal(t, []byte{9, 9, 9}, call.data)
	assert.Equal(t, owner.Bytes(), call.owner)
	assert.Equal(t, uint8(1), call.executable)
	assert.Equal(t, []byte{44, 1, 0, 0, 0, 0, 0, 0}, call.rentEpoch)
}

func TestBridge_ProcessSignerLength(t *testing.T) {
	ctx := context.Background()
	eng := &recordingEngine{}
	b, err := NewBridge(ctx, eng)
	require.NoError(t, err)

	_, err = b.Process(ctx, []byte{1}, make([]byte, 63), 1)
	assert.ErrorIs(t, err, ErrSignerLength)
	_, err = b.Process(ctx, []byte{1}, make([]byte, 128), 1)
	assert.ErrorIs(t, err, ErrSignerLength)
	assert.Empty(t, eng.processes, "engine must not be called")

	status, err := b.Process(ctx, []byte{1, 2}, make([]byte, 128), 2)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), status)
	require.Len(t, eng.processes, 1)
	assert.Equal(t, Handle(7), eng.processes[0].rt)
	assert.Equal(t, Handle(8), eng.processes[0].ptc)
	assert.Equal(t, 2, eng.processes[0].numSigners)
}

func TestBridge_Close(t *testing.T) {
	ctx := context.Background()
	eng := &recordingEngine{}
	b, err := NewBridge(ctx, eng)
	require.NoError(t, err)

	require.NoError(t, b.Close(ctx))
	require.NoError(t, b.Close(ctx))
	assert.Equal(t, 1, eng.closes)

	assert.ErrorIs(t, b.SetAccount(ctx, AccountRecord{}), ErrClosed)
	_, err = b.Process(ctx, nil, nil, 0)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = b.Account(ctx, solana.PublicKey{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBridge_AccountUnsupported(t *testing.T) {
	ctx := context.Background()
	b, err := NewBridge(ctx, &recordingEngine{})
	require.NoError(t, err)

	_, err = b.Account(ctx, solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, ErrIntrospectionUnsupported)
}
