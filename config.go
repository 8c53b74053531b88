package fasttester

import (
	"io"

	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL uint64 = 1_000_000_000

// DefaultPayerLamports is the balance seeded into the harness's default payer.
const DefaultPayerLamports = 100 * LamportsPerSOL

// HarnessConfig holds configuration parameters for the Harness.
type HarnessConfig struct {
	EngineFactory        EngineFactory      // Optional engine constructor, takes precedence over the WASM fields
	EngineWasmFile       *string            // Optional path to the engine WASM module
	EngineWasm           []byte             // Raw engine WASM module, used when EngineWasmFile is nil
	DefaultPayer         *solana.PrivateKey // Optional fixed default payer
	DefaultPayerLamports uint64             // Default payer balance, zero means DefaultPayerLamports

	// KeyGen creates the default payer when DefaultPayer is nil.
	// Defaults to solana.NewRandomPrivateKey.
	KeyGen func() (solana.PrivateKey, error)

	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
}

// WasmEngineConfig holds configuration parameters for the WasmEngine.
type WasmEngineConfig struct {
	WasmFile *string // Optional path to the engine WASM module
	Wasm     []byte  // Raw engine WASM module, used when WasmFile is nil
	Stdout   io.Writer
	Stderr   io.Writer
	Logger   *zap.Logger
}
