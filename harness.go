package fasttester

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/mgpai22/fasttester"

// Harness executes transactions synchronously against an embedded engine.
// Calls are serialized, so a Harness may be shared between goroutines, but
// transactions are processed one at a time in call order.
type Harness struct {
	mu           sync.Mutex
	bridge       *Bridge
	defaultPayer solana.PrivateKey
	logger       *zap.Logger
	tracer       trace.Tracer
	closed       bool
}

// New loads the engine, obtains its handles and seeds the default payer.
func New(ctx context.Context, config HarnessConfig) (*Harness, error) {
	logger := config.Logger
	if logger == nil {
		logger = Logger()
	}
	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	factory := config.EngineFactory
	if factory == nil {
		factory = WasmEngineFactory(WasmEngineConfig{
			WasmFile: config.EngineWasmFile,
			Wasm:     config.EngineWasm,
			Logger:   logger,
		})
	}

	engine, err := factory(ctx)
	if err != nil {
		return nil, &InitError{Stage: "load", Cause: err}
	}
	bridge, err := NewBridge(ctx, engine)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		bridge: bridge,
		logger: logger,
		tracer: tp.Tracer(tracerName),
	}

	if config.DefaultPayer != nil {
		h.defaultPayer = *config.DefaultPayer
	} else {
		keyGen := config.KeyGen
		if keyGen == nil {
			keyGen = solana.NewRandomPrivateKey
		}
		h.defaultPayer, err = keyGen()
		if err != nil {
			bridge.Close(ctx)
			return nil, &InitError{Stage: "default payer", Cause: err}
		}
	}
	if len(h.defaultPayer) != KeypairSize {
		bridge.Close(ctx)
		return nil, &InitError{Stage: "default payer", Cause: ErrInvalidKeypair}
	}

	lamports := config.DefaultPayerLamports
	if lamports == 0 {
		lamports = DefaultPayerLamports
	}
	if err := bridge.SetAccount(ctx, AccountRecord{
		Address:  h.defaultPayer.PublicKey(),
		Lamports: lamports,
	}); err != nil {
		bridge.Close(ctx)
		return nil, &InitError{Stage: "default payer", Cause: err}
	}

	logger.Debug("harness ready",
		zap.Stringer("default_payer", h.defaultPayer.PublicKey()),
		zap.Uint64("default_payer_lamports", lamports))

	return h, nil
}

// DefaultPayer returns the keypair used when Process is called without signers.
func (h *Harness) DefaultPayer() solana.PrivateKey {
	return h.defaultPayer
}

// SetAccount installs or overwrites the full account record.
func (h *Harness) SetAccount(ctx context.Context, rec AccountRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}

	ctx, span := h.tracer.Start(ctx, "fasttester.SetAccount",
		trace.WithAttributes(
			attribute.String("account.address", rec.Address.String()),
			attribute.Int("account.data_len", len(rec.Data)),
		))
	defer span.End()

	if err := h.bridge.SetAccount(ctx, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("set account %s: %w", rec.Address, err)
	}
	return nil
}

// Process compiles ix into a transaction, signs it and submits it. With no
// signers the default payer signs. The first signer pays fees.
func (h *Harness) Process(ctx context.Context, ix solana.Instruction, signers ...solana.PrivateKey) error {
	return h.ProcessAll(ctx, []solana.Instruction{ix}, signers...)
}

// ProcessAll is Process for an ordered list of instructions in one transaction.
func (h *Harness) ProcessAll(ctx context.Context, ixs []solana.Instruction, signers ...solana.PrivateKey) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if len(signers) == 0 {
		signers = []solana.PrivateKey{h.defaultPayer}
	}

	ctx, span := h.tracer.Start(ctx, "fasttester.Process",
		trace.WithAttributes(
			attribute.Int("tx.instructions", len(ixs)),
			attribute.Int("tx.signers", len(signers)),
		))
	defer span.End()

	err := h.process(ctx, ixs, signers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var perr *ProcessError
		if errors.As(err, &perr) {
			span.SetAttributes(attribute.Int("tx.status", int(perr.Status)))
		}
	}
	return err
}

func (h *Harness) process(ctx context.Context, ixs []solana.Instruction, signers []solana.PrivateKey) error {
	signerBytes, err := EncodeSigners(signers)
	if err != nil {
		return err
	}
	msg, err := CompileMessage(ixs, signers[0].PublicKey(), PlaceholderBlockhash)
	if err != nil {
		return err
	}

	status, err := h.bridge.Process(ctx, msg, signerBytes, len(signers))
	if err != nil {
		return fmt.Errorf("process: %w", err)
	}
	if status == 0 {
		return nil
	}

	perr := &ProcessError{Status: status}
	failure, err := h.bridge.LastFailure(ctx)
	if err != nil {
		h.logger.Warn("failed to read engine failure", zap.Error(err))
	} else {
		perr.Failure = failure
	}
	h.logger.Debug("transaction failed",
		zap.Uint8("status", status),
		zap.Int("instructions", len(ixs)),
		zap.Stringer("fee_payer", signers[0].PublicKey()),
		zap.Error(perr))
	return perr
}

// Account reads an account back from the engine. Engines that cannot report
// state return ErrIntrospectionUnsupported.
func (h *Harness) Account(ctx context.Context, address solana.PublicKey) (*AccountRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	return h.bridge.Account(ctx, address)
}

// Close releases the engine. Only the first call has an effect.
func (h *Harness) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	return h.bridge.Close(ctx)
}

// WithHarness creates a Harness, runs fn and closes the harness on every exit
// path, including a panic in fn.
func WithHarness(ctx context.Context, config HarnessConfig, fn func(h *Harness) error) (err error) {
	h, err := New(ctx, config)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := h.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(h)
}
