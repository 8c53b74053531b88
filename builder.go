package fasttester

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// KeypairSize is the size of an encoded keypair: 32 byte seed followed by the 32 byte public key.
const KeypairSize = 64

// PlaceholderBlockhash is used in place of a recent blockhash: the all-zero
// address decoded from its base58 text form.
var PlaceholderBlockhash = solana.MustHashFromBase58(solana.PublicKey{}.String())

// CompileMessage compiles instructions into the legacy message byte layout
// (header, account keys, blockhash, instructions). The output depends only on
// the arguments. Instruction order is preserved.
func CompileMessage(ixs []solana.Instruction, feePayer solana.PublicKey, blockhash solana.Hash) ([]byte, error) {
	if len(ixs) == 0 {
		return nil, ErrNoInstructions
	}
	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(feePayer))
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %w", err)
	}
	return msg, nil
}

// EncodeSigners concatenates the signers' keypairs in the order given.
func EncodeSigners(signers []solana.PrivateKey) ([]byte, error) {
	bufs := make([][]byte, len(signers))
	for i, kp := range signers {
		if len(kp) != KeypairSize {
			return nil, fmt.Errorf("signer %d: %w", i, ErrInvalidKeypair)
		}
		bufs[i] = kp
	}
	out := Concat(bufs...)
	if len(out) != KeypairSize*len(signers) {
		return nil, ErrSignerLength
	}
	return out, nil
}

// SignMessage signs message with each signer, in signer order.
func SignMessage(message []byte, signers []solana.PrivateKey) ([]solana.Signature, error) {
	sigs := make([]solana.Signature, 0, len(signers))
	for i, kp := range signers {
		if len(kp) != KeypairSize {
			return nil, fmt.Errorf("signer %d: %w", i, ErrInvalidKeypair)
		}
		sig, err := kp.Sign(message)
		if err != nil {
			return nil, fmt.Errorf("signer %d: %w", i, err)
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}
