package memengine

import (
	"bytes"
	"crypto/ed25519"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/mgpai22/fasttester"
)

// bank is the ledger of one processing context.
type bank struct {
	accounts    map[solana.PublicKey]fasttester.AccountRecord
	lastFailure *fasttester.EngineFailure
}

func newBank() *bank {
	return &bank{accounts: make(map[solana.PublicKey]fasttester.AccountRecord)}
}

// workingSet holds the accounts a transaction modified. It is written back to
// the bank only when every instruction succeeded.
type workingSet struct {
	base    map[solana.PublicKey]fasttester.AccountRecord
	touched map[solana.PublicKey]fasttester.AccountRecord
}

func (w *workingSet) get(key solana.PublicKey) fasttester.AccountRecord {
	if rec, ok := w.touched[key]; ok {
		return rec
	}
	if rec, ok := w.base[key]; ok {
		rec.Data = append([]byte{}, rec.Data...)
		return rec
	}
	return fasttester.AccountRecord{Address: key}
}

func (w *workingSet) put(rec fasttester.AccountRecord) {
	w.touched[rec.Address] = rec
}

// txContext is the decoded transaction an instruction executes within.
type txContext struct {
	msg   solana.Message
	state *workingSet
}

func (tc *txContext) isSigner(idx int) bool {
	return idx < int(tc.msg.Header.NumRequiredSignatures)
}

func (tc *txContext) isWritable(idx int) bool {
	h := tc.msg.Header
	numSigned := int(h.NumRequiredSignatures)
	if idx < numSigned {
		return idx < numSigned-int(h.NumReadonlySignedAccounts)
	}
	return idx < len(tc.msg.AccountKeys)-int(h.NumReadonlyUnsignedAccounts)
}

// instrAccount is an account as seen by one instruction.
type instrAccount struct {
	key      solana.PublicKey
	signer   bool
	writable bool
}

func (b *bank) processTransaction(raw, signers []byte, numSigners int) error {
	var msg solana.Message
	if err := msg.UnmarshalWithDecoder(bin.NewBinDecoder(raw)); err != nil {
		return txFail(FailureInvalidMessage, "decode: %v", err)
	}
	numRequired := int(msg.Header.NumRequiredSignatures)
	if numRequired == 0 || numRequired > len(msg.AccountKeys) {
		return txFail(FailureInvalidMessage, "%d required signatures for %d account keys", numRequired, len(msg.AccountKeys))
	}
	if int(msg.Header.NumReadonlySignedAccounts) >= numRequired {
		// the fee payer must stay writable
		return txFail(FailureInvalidMessage, "fee payer is read-only")
	}

	if err := verifySigners(&msg, raw, signers, numSigners); err != nil {
		return err
	}

	tc := &txContext{
		msg: msg,
		state: &workingSet{
			base:    b.accounts,
			touched: make(map[solana.PublicKey]fasttester.AccountRecord),
		},
	}
	for i, ix := range msg.Instructions {
		if err := tc.executeInstruction(ix); err != nil {
			if te, ok := err.(*txError); ok {
				te.Instruction = i
			}
			return err
		}
	}

	for key, rec := range tc.state.touched {
		b.accounts[key] = rec
	}
	return nil
}

// verifySigners checks that every required signer has a valid keypair, that no
// keypair is extraneous, and that each keypair's signature over the message verifies.
func verifySigners(msg *solana.Message, raw, signers []byte, numSigners int) error {
	required := msg.AccountKeys[:msg.Header.NumRequiredSignatures]
	keypairs := make(map[solana.PublicKey]solana.PrivateKey, numSigners)

	for i := 0; i < numSigners; i++ {
		kp := solana.PrivateKey(signers[i*fasttester.KeypairSize : (i+1)*fasttester.KeypairSize])
		derived := ed25519.NewKeyFromSeed(kp[:ed25519.SeedSize])
		if !bytes.Equal(derived[ed25519.SeedSize:], kp[ed25519.SeedSize:]) {
			return txFail(FailureInvalidKeypair, "signer %d: public key does not match seed", i)
		}
		pub := kp.PublicKey()
		if !containsKey(required, pub) {
			return txFail(FailureKeypairPubkeyMismatch, "signer %d (%s) is not a required signer", i, pub)
		}
		keypairs[pub] = kp
	}

	ordered := make([]solana.PrivateKey, len(required))
	for i, key := range required {
		kp, ok := keypairs[key]
		if !ok {
			return txFail(FailureMissingSignature, "no keypair for %s", key)
		}
		ordered[i] = kp
	}

	sigs, err := fasttester.SignMessage(raw, ordered)
	if err != nil {
		return txFail(FailureSignatureFailure, "sign: %v", err)
	}
	for i, key := range required {
		if !sigs[i].Verify(key, raw) {
			return txFail(FailureSignatureFailure, "signature for %s does not verify", key)
		}
	}
	return nil
}

func containsKey(keys []solana.PublicKey, key solana.PublicKey) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func (tc *txContext) executeInstruction(ix solana.CompiledInstruction) error {
	keys := tc.msg.AccountKeys
	if int(ix.ProgramIDIndex) >= len(keys) {
		return txFail(FailureInvalidMessage, "program index %d out of range", ix.ProgramIDIndex)
	}
	programID := keys[ix.ProgramIDIndex]

	accounts := make([]instrAccount, len(ix.Accounts))
	for i, idx := range ix.Accounts {
		if int(idx) >= len(keys) {
			return txFail(FailureInvalidMessage, "account index %d out of range", idx)
		}
		accounts[i] = instrAccount{
			key:      keys[idx],
			signer:   tc.isSigner(int(idx)),
			writable: tc.isWritable(int(idx)),
		}
	}

	switch programID {
	case solana.SystemProgramID:
		return tc.executeSystem(accounts, ix.Data)
	default:
		return txFail(FailureUnsupportedProgram, "program %s", programID)
	}
}
