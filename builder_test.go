package fasttester

import (
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceholderBlockhash(t *testing.T) {
	assert.Equal(t, solana.Hash{}, PlaceholderBlockhash)
	assert.Equal(t, "11111111111111111111111111111111", PlaceholderBlockhash.String())
}

func TestCompileMessage_Deterministic(t *testing.T) {
	alice := solana.NewWallet().PrivateKey
	bob := solana.NewWallet().PublicKey()
	ix := system.NewTransferInstruction(10, alice.PublicKey(), bob).Build()

	first, err := CompileMessage([]solana.Instruction{ix}, alice.PublicKey(), PlaceholderBlockhash)
	require.NoError(t, err)
	second, err := CompileMessage([]solana.Instruction{ix}, alice.PublicKey(), PlaceholderBlockhash)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCompileMessage_Layout(t *testing.T) {
	alice := solana.NewWallet().PrivateKey
	bob := solana.NewWallet().PublicKey()
	ix := system.NewTransferInstruction(10, alice.PublicKey(), bob).Build()

	msg, err := CompileMessage([]solana.Instruction{ix}, alice.PublicKey(), PlaceholderBlockhash)
	require.NoError(t, err)

	// header: one signer, no read-only signers, one read-only unsigned (system program)
	assert.Equal(t, []byte{1, 0, 1}, msg[:3])
	assert.Equal(t, byte(3), msg[3], "account key count")
	assert.Equal(t, alice.PublicKey().Bytes(), msg[4:36], "fee payer first")
	assert.Equal(t, make([]byte, 32), msg[4+3*32:4+4*32], "placeholder blockhash")
}

func TestCompileMessage_FeePayerAndOrder(t *testing.T) {
	payer := solana.NewWallet().PrivateKey
	alice := solana.NewWallet().PrivateKey
	bob := solana.NewWallet().PublicKey()
	carol := solana.NewWallet().PublicKey()

	toBob := system.NewTransferInstruction(1, alice.PublicKey(), bob).Build()
	toCarol := system.NewTransferInstruction(2, alice.PublicKey(), carol).Build()

	raw, err := CompileMessage([]solana.Instruction{toBob, toCarol}, payer.PublicKey(), PlaceholderBlockhash)
	require.NoError(t, err)

	var msg solana.Message
	require.NoError(t, msg.UnmarshalWithDecoder(bin.NewBinDecoder(raw)))

	assert.Equal(t, payer.PublicKey(), msg.AccountKeys[0])
	assert.Equal(t, uint8(2), msg.Header.NumRequiredSignatures)
	require.Len(t, msg.Instructions, 2)
	assert.Equal(t, bob, msg.AccountKeys[msg.Instructions[0].Accounts[1]])
	assert.Equal(t, carol, msg.AccountKeys[msg.Instructions[1].Accounts[1]])

	swapped, err := CompileMessage([]solana.Instruction{toCarol, toBob}, payer.PublicKey(), PlaceholderBlockhash)
	require.NoError(t, err)
	assert.NotEqual(t, raw, swapped)
}

func TestCompileMessage_NoInstructions(t *testing.T) {
	_, err := CompileMessage(nil, solana.NewWallet().PublicKey(), PlaceholderBlockhash)
	assert.ErrorIs(t, err, ErrNoInstructions)
}

func TestEncodeSigners(t *testing.T) {
	for n := 0; n <= 3; n++ {
		signers := make([]solana.PrivateKey, n)
		for i := range signers {
			signers[i] = solana.NewWallet().PrivateKey
		}
		out, err := EncodeSigners(signers)
		require.NoError(t, err)
		assert.Len(t, out, KeypairSize*n)
		for i, kp := range signers {
			assert.Equal(t, []byte(kp), out[i*KeypairSize:(i+1)*KeypairSize])
		}
	}
}

func TestEncodeSigners_InvalidKeypair(t *testing.T) {
	_, err := EncodeSigners([]solana.PrivateKey{solana.NewWallet().PrivateKey, make(solana.PrivateKey, 32)})
	assert.ErrorIs(t, err, ErrInvalidKeypair)
}

func TestSignMessage(t *testing.T) {
	alice := solana.NewWallet().PrivateKey
	bob := solana.NewWallet().PrivateKey
	msg := []byte("message bytes")

	sigs, err := SignMessage(msg, []solana.PrivateKey{alice, bob})
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.True(t, sigs[0].Verify(alice.PublicKey(), msg))
	assert.True(t, sigs[1].Verify(bob.PublicKey(), msg))
	assert.False(t, sigs[0].Verify(bob.PublicKey(), msg))
}
