package fasttester

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Salvionied/cbor/v2"
	"github.com/gagliardetto/solana-go"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
)

// Exports an engine module must provide.
const (
	exportInitRuntime = "init_runtime"
	exportInitContext = "init_ptc"
	exportSetAccount  = "set_account"
	exportProcess     = "process"
	exportAlloc       = "alloc"
	exportDealloc     = "dealloc"

	// optional
	exportGetAccount = "get_account"
	exportLastError  = "last_error"
)

// WasmEngine runs a transaction-processing engine compiled to WASM inside wazero.
// Arguments are copied into the module's linear memory and released after each call.
type WasmEngine struct {
	runtime     wazero.Runtime
	module      api.Module
	initRuntime api.Function
	initContext api.Function
	setAccount  api.Function
	process     api.Function
	alloc       api.Function
	dealloc     api.Function
	getAccount  api.Function
	lastError   api.Function
	logger      *zap.Logger
}

var (
	_ Engine          = (*WasmEngine)(nil)
	_ AccountReader   = (*WasmEngine)(nil)
	_ FailureReporter = (*WasmEngine)(nil)
)

func NewWasmEngine(ctx context.Context, config WasmEngineConfig) (*WasmEngine, error) {
	runtime := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, err
	}

	var wasmBytes []byte
	var err error

	if config.WasmFile != nil {
		wasmBytes, err = os.ReadFile(*config.WasmFile)
		if err != nil {
			runtime.Close(ctx)
			return nil, fmt.Errorf("failed to read engine WASM file: %w", err)
		}
	} else {
		wasmBytes = config.Wasm
	}
	if len(wasmBytes) == 0 {
		runtime.Close(ctx)
		return nil, errors.New("no engine WASM module configured")
	}

	stdout, stderr := config.Stdout, config.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	modConfig := wazero.NewModuleConfig().
		WithStdout(stdout).
		WithStderr(stderr)

	module, err := runtime.InstantiateWithConfig(ctx, wasmBytes, modConfig)
	if err != nil {
		runtime.Close(ctx)
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = Logger()
	}

	e := &WasmEngine{
		runtime:     runtime,
		module:      module,
		initRuntime: module.ExportedFunction(exportInitRuntime),
		initContext: module.ExportedFunction(exportInitContext),
		setAccount:  module.ExportedFunction(exportSetAccount),
		process:     module.ExportedFunction(exportProcess),
		alloc:       module.ExportedFunction(exportAlloc),
		dealloc:     module.ExportedFunction(exportDealloc),
		getAccount:  module.ExportedFunction(exportGetAccount),
		lastError:   module.ExportedFunction(exportLastError),
		logger:      logger,
	}

	required := map[string]api.Function{
		exportInitRuntime: e.initRuntime,
		exportInitContext: e.initContext,
		exportSetAccount:  e.setAccount,
		exportProcess:     e.process,
		exportAlloc:       e.alloc,
		exportDealloc:     e.dealloc,
	}
	for name, fn := range required {
		if fn == nil {
			e.Close(ctx)
			return nil, fmt.Errorf("engine module does not export %q", name)
		}
	}
	if module.Memory() == nil {
		e.Close(ctx)
		return nil, errors.New("engine module does not export memory")
	}

	return e, nil
}

// Close terminates the WASM runtime and releases resources.
func (e *WasmEngine) Close(ctx context.Context) error {
	modErr := e.module.Close(ctx)
	if err := e.runtime.Close(ctx); err != nil {
		return err
	}
	return modErr
}

func (e *WasmEngine) InitRuntime(ctx context.Context) (Handle, error) {
	results, err := e.initRuntime.Call(ctx)
	if err != nil {
		return 0, err
	}
	return handleFromResults(results)
}

func (e *WasmEngine) InitContext(ctx context.Context, rt Handle) (Handle, error) {
	results, err := e.initContext.Call(ctx, uint64(rt))
	if err != nil {
		return 0, err
	}
	return handleFromResults(results)
}

func (e *WasmEngine) SetAccount(ctx context.Context, ptc Handle, address, lamports, data, owner []byte, executable uint8, rentEpoch []byte) error {
	addrPtr, addrLen, err := e.writeToMemory(ctx, address)
	if err != nil {
		return err
	}
	defer e.deallocMemory(ctx, addrPtr, addrLen)

	lamportsPtr, lamportsLen, err := e.writeToMemory(ctx, lamports)
	if err != nil {
		return err
	}
	defer e.deallocMemory(ctx, lamportsPtr, lamportsLen)

	dataPtr, dataLen, err := e.writeToMemory(ctx, data)
	if err != nil {
		return err
	}
	defer e.deallocMemory(ctx, dataPtr, dataLen)

	ownerPtr, ownerLen, err := e.writeToMemory(ctx, owner)
	if err != nil {
		return err
	}
	defer e.deallocMemory(ctx, ownerPtr, ownerLen)

	rentPtr, rentLen, err := e.writeToMemory(ctx, rentEpoch)
	if err != nil {
		return err
	}
	defer e.deallocMemory(ctx, rentPtr, rentLen)

	_, err = e.setAccount.Call(ctx,
		uint64(ptc),
		addrPtr,
		lamportsPtr,
		dataPtr, dataLen,
		ownerPtr,
		uint64(executable),
		rentPtr,
	)
	return err
}

func (e *WasmEngine) Process(ctx context.Context, rt, ptc Handle, message, signers []byte, numSigners int) (uint8, error) {
	msgPtr, msgLen, err := e.writeToMemory(ctx, message)
	if err != nil {
		return 0, err
	}
	defer e.deallocMemory(ctx, msgPtr, msgLen)

	signersPtr, signersLen, err := e.writeToMemory(ctx, signers)
	if err != nil {
		return 0, err
	}
	defer e.deallocMemory(ctx, signersPtr, signersLen)

	results, err := e.process.Call(ctx,
		uint64(rt), uint64(ptc),
		msgPtr, msgLen,
		signersPtr, uint64(numSigners),
	)
	if err != nil {
		return 0, err
	}
	if len(results) < 1 {
		return 0, errors.New("no status from process")
	}
	return uint8(results[0]), nil
}

// GetAccount reads an account back through the optional get_account export.
func (e *WasmEngine) GetAccount(ctx context.Context, ptc Handle, address []byte) (*AccountRecord, error) {
	if e.getAccount == nil {
		return nil, ErrIntrospectionUnsupported
	}
	addrPtr, addrLen, err := e.writeToMemory(ctx, address)
	if err != nil {
		return nil, err
	}
	defer e.deallocMemory(ctx, addrPtr, addrLen)

	resultBytes, err := e.callFunction(ctx, e.getAccount, uint64(ptc), addrPtr)
	if err != nil {
		return nil, err
	}
	if len(resultBytes) == 0 {
		return nil, errors.New("empty result from get_account")
	}
	if resultBytes[0] != 0 {
		return nil, ErrAccountNotFound
	}

	var snap accountSnapshot
	if err := cbor.Unmarshal(resultBytes[1:], &snap); err != nil {
		return nil, fmt.Errorf("failed to decode account: %w", err)
	}
	if len(snap.Owner) != AddressSize {
		return nil, fmt.Errorf("account owner: %w", ErrInvalidLength)
	}
	return &AccountRecord{
		Address:    solana.PublicKeyFromBytes(address),
		Lamports:   snap.Lamports,
		Data:       snap.Data,
		Owner:      solana.PublicKeyFromBytes(snap.Owner),
		Executable: snap.Executable,
		RentEpoch:  snap.RentEpoch,
	}, nil
}

// LastFailure reads the reason for the last failed process call through the
// optional last_error export. It returns nil when the engine has nothing to report.
func (e *WasmEngine) LastFailure(ctx context.Context, ptc Handle) (*EngineFailure, error) {
	if e.lastError == nil {
		return nil, nil
	}
	resultBytes, err := e.callFunction(ctx, e.lastError, uint64(ptc))
	if err != nil {
		return nil, err
	}
	return decodeFailure(resultBytes)
}

func decodeFailure(resultBytes []byte) (*EngineFailure, error) {
	if len(resultBytes) == 0 || resultBytes[0] != 0 {
		return nil, nil
	}
	var failure EngineFailure
	if err := cbor.Unmarshal(resultBytes[1:], &failure); err != nil {
		return nil, fmt.Errorf("failed to decode engine failure: %w", err)
	}
	return &failure, nil
}

func handleFromResults(results []uint64) (Handle, error) {
	if len(results) < 1 {
		return 0, errors.New("no handle returned")
	}
	if results[0] == 0 {
		return 0, errors.New("engine returned a null handle")
	}
	return Handle(results[0]), nil
}

// writeToMemory allocates memory in WASM and writes data to it.
func (e *WasmEngine) writeToMemory(ctx context.Context, data []byte) (uint64, uint64, error) {
	results, err := e.alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to allocate memory: %w", err)
	}
	if len(results) < 1 {
		return 0, 0, errors.New("no pointer returned from alloc")
	}
	ptr := results[0]
	if !e.module.Memory().Write(uint32(ptr), data) {
		e.deallocMemory(ctx, ptr, uint64(len(data)))
		return 0, 0, errors.New("failed to write data to WASM memory")
	}
	return ptr, uint64(len(data)), nil
}

// deallocMemory deallocates memory in WASM.
func (e *WasmEngine) deallocMemory(ctx context.Context, ptr, size uint64) {
	if _, err := e.dealloc.Call(ctx, ptr, size); err != nil {
		e.logger.Warn("failed to deallocate memory",
			zap.Uint64("ptr", ptr),
			zap.Uint64("size", size),
			zap.Error(err))
	}
}

// callFunction invokes a WASM function that returns a packed ptr/len and copies the result out.
func (e *WasmEngine) callFunction(ctx context.Context, fn api.Function, args ...uint64) ([]byte, error) {
	results, err := fn.Call(ctx, args...)
	if err != nil {
		return nil, err
	}
	if len(results) < 1 {
		return nil, errors.New("no results from function call")
	}

	resultPtr, resultLen := unpackResult(results[0])
	if resultLen == 0 {
		return nil, nil
	}

	resultBytes, ok := e.module.Memory().Read(resultPtr, resultLen)
	if !ok {
		return nil, errors.New("failed to read function result memory")
	}

	// Copy before the engine reuses the memory.
	resultCopy := make([]byte, len(resultBytes))
	copy(resultCopy, resultBytes)

	e.deallocMemory(ctx, uint64(resultPtr), uint64(resultLen))

	return resultCopy, nil
}
