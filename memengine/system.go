package memengine

import (
	"encoding/binary"
	"math"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// System program instruction discriminants.
const (
	systemCreateAccount uint32 = 0
	systemAssign        uint32 = 1
	systemTransfer      uint32 = 2
)

// maxPermittedDataLength caps the space CreateAccount may allocate.
const maxPermittedDataLength = 10 * 1024 * 1024

func (tc *txContext) executeSystem(accounts []instrAccount, data []byte) error {
	dec := bin.NewBinDecoder(data)
	kind, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return txFail(FailureInvalidInstructionData, "system instruction: %v", err)
	}

	switch kind {
	case systemCreateAccount:
		lamports, err := dec.ReadUint64(binary.LittleEndian)
		if err != nil {
			return txFail(FailureInvalidInstructionData, "create account lamports: %v", err)
		}
		space, err := dec.ReadUint64(binary.LittleEndian)
		if err != nil {
			return txFail(FailureInvalidInstructionData, "create account space: %v", err)
		}
		owner, err := readPublicKey(dec)
		if err != nil {
			return txFail(FailureInvalidInstructionData, "create account owner: %v", err)
		}
		return tc.createAccount(accounts, lamports, space, owner)
	case systemAssign:
		owner, err := readPublicKey(dec)
		if err != nil {
			return txFail(FailureInvalidInstructionData, "assign owner: %v", err)
		}
		return tc.assign(accounts, owner)
	case systemTransfer:
		lamports, err := dec.ReadUint64(binary.LittleEndian)
		if err != nil {
			return txFail(FailureInvalidInstructionData, "transfer lamports: %v", err)
		}
		return tc.transfer(accounts, lamports)
	default:
		return txFail(FailureInvalidInstructionData, "unsupported system instruction %d", kind)
	}
}

func readPublicKey(dec *bin.Decoder) (solana.PublicKey, error) {
	b, err := dec.ReadNBytes(32)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(b), nil
}

func requireAccounts(accounts []instrAccount, n int) error {
	if len(accounts) < n {
		return txFail(FailureNotEnoughAccountKeys, "need %d accounts, got %d", n, len(accounts))
	}
	return nil
}

func requireSignerWritable(acc instrAccount) error {
	if !acc.signer {
		return txFail(FailureMissingRequiredSignature, "%s must sign", acc.key)
	}
	if !acc.writable {
		return txFail(FailureAccountNotWritable, "%s is read-only", acc.key)
	}
	return nil
}

func (tc *txContext) transfer(accounts []instrAccount, lamports uint64) error {
	if err := requireAccounts(accounts, 2); err != nil {
		return err
	}
	from, to := accounts[0], accounts[1]
	if err := requireSignerWritable(from); err != nil {
		return err
	}
	if !to.writable {
		return txFail(FailureAccountNotWritable, "%s is read-only", to.key)
	}

	src := tc.state.get(from.key)
	if len(src.Data) != 0 {
		return txFail(FailureInvalidArgument, "transfer: from %s must not carry data", from.key)
	}
	if src.Owner != solana.SystemProgramID {
		return txFail(FailureInvalidAccountOwner, "transfer: from %s is owned by %s", from.key, src.Owner)
	}
	if src.Lamports < lamports {
		return txFail(FailureInsufficientFunds, "transfer: %s has %d lamports, need %d", from.key, src.Lamports, lamports)
	}
	src.Lamports -= lamports
	tc.state.put(src)

	dst := tc.state.get(to.key)
	if dst.Lamports > math.MaxUint64-lamports {
		return txFail(FailureArithmeticOverflow, "transfer: %s balance overflows", to.key)
	}
	dst.Lamports += lamports
	tc.state.put(dst)
	return nil
}

func (tc *txContext) createAccount(accounts []instrAccount, lamports, space uint64, owner solana.PublicKey) error {
	if err := requireAccounts(accounts, 2); err != nil {
		return err
	}
	from, to := accounts[0], accounts[1]
	if err := requireSignerWritable(from); err != nil {
		return err
	}
	if err := requireSignerWritable(to); err != nil {
		return err
	}

	existing := tc.state.get(to.key)
	if existing.Lamports != 0 || len(existing.Data) != 0 || existing.Owner != solana.SystemProgramID {
		return txFail(FailureAccountAlreadyInUse, "create account: %s already in use", to.key)
	}
	if space > maxPermittedDataLength {
		return txFail(FailureInvalidArgument, "create account: space %d exceeds %d", space, maxPermittedDataLength)
	}

	if err := tc.transfer(accounts, lamports); err != nil {
		return err
	}
	created := tc.state.get(to.key)
	created.Data = make([]byte, space)
	created.Owner = owner
	tc.state.put(created)
	return nil
}

func (tc *txContext) assign(accounts []instrAccount, owner solana.PublicKey) error {
	if err := requireAccounts(accounts, 1); err != nil {
		return err
	}
	acc := accounts[0]
	if err := requireSignerWritable(acc); err != nil {
		return err
	}

	rec := tc.state.get(acc.key)
	if rec.Owner == owner {
		return nil
	}
	if rec.Owner != solana.SystemProgramID {
		return txFail(FailureInvalidAccountOwner, "assign: %s is owned by %s", acc.key, rec.Owner)
	}
	rec.Owner = owner
	tc.state.put(rec)
	return nil
}
