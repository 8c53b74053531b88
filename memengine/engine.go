// Package memengine is an in-memory transaction-processing engine that
// implements the fasttester engine calls without loading a WASM module.
//
// It keeps one ledger per processing context, verifies signer keypairs
// against the message, and executes System program instructions (create
// account, assign, transfer). Transactions are atomic: a failed transaction
// leaves the ledger untouched. Fees are not charged.
package memengine

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/mgpai22/fasttester"
)

var errUnknownHandle = errors.New("memengine: unknown handle")

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used to report failed transactions.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// Engine is an in-memory engine. Each processing context owns an independent ledger.
type Engine struct {
	mu       sync.Mutex
	next     fasttester.Handle
	runtimes map[fasttester.Handle]struct{}
	contexts map[fasttester.Handle]*bank
	closed   bool
	logger   *zap.Logger
}

var (
	_ fasttester.Engine          = (*Engine)(nil)
	_ fasttester.AccountReader   = (*Engine)(nil)
	_ fasttester.FailureReporter = (*Engine)(nil)
)

// New creates an in-memory engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		runtimes: make(map[fasttester.Handle]struct{}),
		contexts: make(map[fasttester.Handle]*bank),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Factory returns a fasttester.EngineFactory producing a fresh in-memory engine per call.
func Factory(opts ...Option) fasttester.EngineFactory {
	return func(ctx context.Context) (fasttester.Engine, error) {
		return New(opts...), nil
	}
}

func (e *Engine) newHandle() fasttester.Handle {
	e.next++
	return e.next
}

func (e *Engine) InitRuntime(ctx context.Context) (fasttester.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, fasttester.ErrClosed
	}
	h := e.newHandle()
	e.runtimes[h] = struct{}{}
	return h, nil
}

func (e *Engine) InitContext(ctx context.Context, rt fasttester.Handle) (fasttester.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, fasttester.ErrClosed
	}
	if _, ok := e.runtimes[rt]; !ok {
		return 0, fmt.Errorf("runtime %d: %w", rt, errUnknownHandle)
	}
	h := e.newHandle()
	e.contexts[h] = newBank()
	return h, nil
}

func (e *Engine) context(ptc fasttester.Handle) (*bank, error) {
	if e.closed {
		return nil, fasttester.ErrClosed
	}
	b, ok := e.contexts[ptc]
	if !ok {
		return nil, fmt.Errorf("context %d: %w", ptc, errUnknownHandle)
	}
	return b, nil
}

func (e *Engine) SetAccount(ctx context.Context, ptc fasttester.Handle, address, lamports, data, owner []byte, executable uint8, rentEpoch []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.context(ptc)
	if err != nil {
		return err
	}
	if len(address) != fasttester.AddressSize || len(owner) != fasttester.AddressSize {
		return fmt.Errorf("address and owner must be %d bytes: %w", fasttester.AddressSize, fasttester.ErrInvalidLength)
	}
	lamportsVal, err := readU64LE(lamports)
	if err != nil {
		return fmt.Errorf("lamports: %w", err)
	}
	rentEpochVal, err := readU64LE(rentEpoch)
	if err != nil {
		return fmt.Errorf("rent epoch: %w", err)
	}

	rec := fasttester.AccountRecord{
		Address:    solana.PublicKeyFromBytes(address),
		Lamports:   lamportsVal,
		Data:       append([]byte{}, data...),
		Owner:      solana.PublicKeyFromBytes(owner),
		Executable: executable != 0,
		RentEpoch:  rentEpochVal,
	}
	b.accounts[rec.Address] = rec
	return nil
}

func (e *Engine) Process(ctx context.Context, rt, ptc fasttester.Handle, message, signers []byte, numSigners int) (uint8, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.context(ptc)
	if err != nil {
		return 0, err
	}
	if _, ok := e.runtimes[rt]; !ok {
		return 0, fmt.Errorf("runtime %d: %w", rt, errUnknownHandle)
	}
	if numSigners < 0 || len(signers) != fasttester.KeypairSize*numSigners {
		return 0, fasttester.ErrSignerLength
	}

	b.lastFailure = nil
	if err := b.processTransaction(message, signers, numSigners); err != nil {
		b.lastFailure = toFailure(err)
		e.logger.Debug("error processing tx", zap.Error(err))
		return 1, nil
	}
	return 0, nil
}

// GetAccount returns a copy of the account stored under address.
func (e *Engine) GetAccount(ctx context.Context, ptc fasttester.Handle, address []byte) (*fasttester.AccountRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.context(ptc)
	if err != nil {
		return nil, err
	}
	if len(address) != fasttester.AddressSize {
		return nil, fasttester.ErrInvalidLength
	}
	rec, ok := b.accounts[solana.PublicKeyFromBytes(address)]
	if !ok {
		return nil, fasttester.ErrAccountNotFound
	}
	rec.Data = append([]byte{}, rec.Data...)
	return &rec, nil
}

// LastFailure returns the reason the last Process call on ptc failed, or nil.
func (e *Engine) LastFailure(ctx context.Context, ptc fasttester.Handle) (*fasttester.EngineFailure, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.context(ptc)
	if err != nil {
		return nil, err
	}
	if b.lastFailure == nil {
		return nil, nil
	}
	f := *b.lastFailure
	f.Logs = append([]string(nil), f.Logs...)
	return &f, nil
}

// Close drops every ledger. Later calls fail with fasttester.ErrClosed.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	e.runtimes = nil
	e.contexts = nil
	return nil
}

func readU64LE(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fasttester.ErrInvalidLength
	}
	return bin.NewBinDecoder(b).ReadUint64(binary.LittleEndian)
}
