package fasttester

import "context"

// Engine is the four-call capability exposed by a transaction-processing engine.
// Byte arguments follow the engine's calling convention: addresses are 32
// bytes, lamports and rent epoch are 8 byte little-endian integers, signers
// are 64 bytes each.
//
// Engines are not safe for concurrent use against the same context handle.
type Engine interface {
	InitRuntime(ctx context.Context) (Handle, error)
	InitContext(ctx context.Context, rt Handle) (Handle, error)
	SetAccount(ctx context.Context, ptc Handle, address, lamports, data, owner []byte, executable uint8, rentEpoch []byte) error
	Process(ctx context.Context, rt, ptc Handle, message, signers []byte, numSigners int) (uint8, error)
	Close(ctx context.Context) error
}

// AccountReader is implemented by engines that can report account state back.
type AccountReader interface {
	GetAccount(ctx context.Context, ptc Handle, address []byte) (*AccountRecord, error)
}

// FailureReporter is implemented by engines that can explain the last failed Process call.
type FailureReporter interface {
	LastFailure(ctx context.Context, ptc Handle) (*EngineFailure, error)
}

// EngineFactory creates an Engine. It stands in for loading a native library.
type EngineFactory func(ctx context.Context) (Engine, error)

// WasmEngineFactory returns a factory that loads the engine as a WASM module.
func WasmEngineFactory(config WasmEngineConfig) EngineFactory {
	return func(ctx context.Context) (Engine, error) {
		return NewWasmEngine(ctx, config)
	}
}
