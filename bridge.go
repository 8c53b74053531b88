package fasttester

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Bridge owns an engine together with the runtime and processing-context
// handles obtained from it at startup. Both handles are passed to every later call.
//
// A Bridge is not safe for concurrent use.
type Bridge struct {
	engine Engine
	rt     Handle
	ptc    Handle
	closed bool
}

// NewBridge initializes the engine's runtime and processing context. On failure
// the engine is closed and an *InitError is returned.
func NewBridge(ctx context.Context, engine Engine) (*Bridge, error) {
	rt, err := engine.InitRuntime(ctx)
	if err != nil {
		engine.Close(ctx)
		return nil, &InitError{Stage: exportInitRuntime, Cause: err}
	}
	ptc, err := engine.InitContext(ctx, rt)
	if err != nil {
		engine.Close(ctx)
		return nil, &InitError{Stage: exportInitContext, Cause: err}
	}
	return &Bridge{engine: engine, rt: rt, ptc: ptc}, nil
}

// SetAccount installs or overwrites the full record for rec.Address.
func (b *Bridge) SetAccount(ctx context.Context, rec AccountRecord) error {
	if b.closed {
		return ErrClosed
	}
	var executable uint8
	if rec.Executable {
		executable = 1
	}
	data := rec.Data
	if data == nil {
		data = []byte{}
	}
	return b.engine.SetAccount(ctx, b.ptc,
		rec.Address.Bytes(),
		EncodeU64LE(rec.Lamports),
		data,
		rec.Owner.Bytes(),
		executable,
		EncodeU64LE(rec.RentEpoch),
	)
}

// Process submits a compiled message and the keypairs that sign it. The
// returned status is 0 on success. The signer buffer is checked before the
// engine is called.
func (b *Bridge) Process(ctx context.Context, message, signers []byte, numSigners int) (uint8, error) {
	if b.closed {
		return 0, ErrClosed
	}
	if numSigners < 0 || len(signers) != KeypairSize*numSigners {
		return 0, fmt.Errorf("%w: got %d bytes for %d signers", ErrSignerLength, len(signers), numSigners)
	}
	return b.engine.Process(ctx, b.rt, b.ptc, message, signers, numSigners)
}

// Account reads an account back from the engine, if the engine supports it.
func (b *Bridge) Account(ctx context.Context, address solana.PublicKey) (*AccountRecord, error) {
	if b.closed {
		return nil, ErrClosed
	}
	reader, ok := b.engine.(AccountReader)
	if !ok {
		return nil, ErrIntrospectionUnsupported
	}
	return reader.GetAccount(ctx, b.ptc, address.Bytes())
}

// LastFailure returns the engine's reason for the last failed Process call.
// It returns nil when the engine does not report reasons.
func (b *Bridge) LastFailure(ctx context.Context) (*EngineFailure, error) {
	if b.closed {
		return nil, ErrClosed
	}
	reporter, ok := b.engine.(FailureReporter)
	if !ok {
		return nil, nil
	}
	return reporter.LastFailure(ctx, b.ptc)
}

// Close releases the engine. Only the first call has an effect.
func (b *Bridge) Close(ctx context.Context) error {
	if b.closed {
		return nil
	}
	b.closed = true
	return b.engine.Close(ctx)
}
