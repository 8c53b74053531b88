package fasttester

import (
	"github.com/gagliardetto/solana-go"
)

// AddressSize is the size of an address in bytes.
const AddressSize = 32

// Handle is an opaque token issued by an engine. It is only meaningful to the
// engine that produced it.
type Handle uint64

// AccountRecord is the ledger-visible state of one address. The zero value of
// each field is its default: no lamports, no data, owned by the system
// program, not executable, rent epoch 0.
type AccountRecord struct {
	Address    solana.PublicKey
	Lamports   uint64
	Data       []byte
	Owner      solana.PublicKey
	Executable bool
	RentEpoch  uint64
}

// EngineFailure is the optional reason an engine reports for a failed transaction.
type EngineFailure struct {
	ErrorType string   `cbor:"error_type"`
	Logs      []string `cbor:"logs"`
}

// accountSnapshot is the CBOR form of an account returned by a WASM engine's get_account export.
type accountSnapshot struct {
	Lamports   uint64 `cbor:"lamports"`
	Data       []byte `cbor:"data"`
	Owner      []byte `cbor:"owner"`
	Executable bool   `cbor:"executable"`
	RentEpoch  uint64 `cbor:"rent_epoch"`
}
