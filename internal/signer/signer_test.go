package signer

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"orchestrator/pkg/exception"
)

type fakeSender struct {
	sent []*solana.Transaction
	err  error
}

func (f *fakeSender) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if f.err != nil {
		return solana.Signature{}, f.err
	}
	f.sent = append(f.sent, tx)
	return tx.Signatures[0], nil
}

func newTestSigner(t *testing.T) (*Local, *fakeSender) {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	sender := &fakeSender{}
	return NewLocalFromKey(key, sender), sender
}

func memoInstruction(data string) solana.Instruction {
	program := solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")
	return solana.NewInstruction(program, solana.AccountMetaSlice{}, []byte(data))
}

func instructionData(tx *solana.Transaction) []string {
	out := make([]string, 0, len(tx.Message.Instructions))
	for _, ci := range tx.Message.Instructions {
		out = append(out, string(ci.Data))
	}
	return out
}

func TestNewLocalRejectsBadKey(t *testing.T) {
	_, err := NewLocal("not-base58-!!!", &fakeSender{})
	assert.ErrorIs(t, err, exception.ErrInvalidPrivateKey)

	_, err = NewLocal("whatever", nil)
	assert.ErrorIs(t, err, exception.ErrNilInstance)
}

func TestNewLocalFromBase58(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	s, err := NewLocal(key.String(), &fakeSender{})
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), s.PublicKey())
}

func TestSignAndSendWithZeroTipKeepsInstructions(t *testing.T) {
	s, sender := newTestSigner(t)
	blockhash := solana.Hash{1, 2, 3}
	ixs := []solana.Instruction{memoInstruction("a"), memoInstruction("b"), memoInstruction("c")}

	sig, err := s.SignAndSendWithTip(t.Context(), ixs, 0, blockhash)
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	tx := sender.sent[0]
	assert.Equal(t, sig, tx.Signatures[0])
	assert.Equal(t, blockhash, tx.Message.RecentBlockhash)
	assert.Equal(t, []string{"a", "b", "c"}, instructionData(tx))
	assert.Equal(t, s.PublicKey(), tx.Message.AccountKeys[0], "signer pays the fee")
	assert.NoError(t, tx.VerifySignatures())
	assert.Len(t, ixs, 3, "caller slice untouched")
}

func TestSignAndSendWithTipAppendsTransfer(t *testing.T) {
	s, sender := newTestSigner(t)
	ixs := []solana.Instruction{memoInstruction("a"), memoInstruction("b")}

	_, err := s.SignAndSendWithTip(t.Context(), ixs, 10_000, solana.Hash{9})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	tx := sender.sent[0]
	require.Len(t, tx.Message.Instructions, 3)
	assert.Equal(t, []string{"a", "b"}, instructionData(tx)[:2], "tip never reorders earlier instructions")

	tip := tx.Message.Instructions[2]
	assert.Equal(t, solana.SystemProgramID, tx.Message.AccountKeys[tip.ProgramIDIndex])
	require.Len(t, tip.Accounts, 2)
	assert.Equal(t, s.PublicKey(), tx.Message.AccountKeys[tip.Accounts[0]])
	assert.Equal(t, TipAccount(s.PublicKey()), tx.Message.AccountKeys[tip.Accounts[1]])
	assert.NoError(t, tx.VerifySignatures())
}

func TestSignAndSendStampsBlockhash(t *testing.T) {
	s, sender := newTestSigner(t)
	tx, err := solana.NewTransaction([]solana.Instruction{memoInstruction("x")}, solana.Hash{}, solana.TransactionPayer(s.PublicKey()))
	require.NoError(t, err)

	fresh := solana.Hash{7, 7, 7}
	_, err = s.SignAndSend(t.Context(), tx, fresh)
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, fresh, sender.sent[0].Message.RecentBlockhash)
	assert.NoError(t, sender.sent[0].VerifySignatures())
}

func TestSubmissionErrorIsReported(t *testing.T) {
	s, sender := newTestSigner(t)
	sender.err = errors.New("blockhash not found")

	_, err := s.SignAndSendWithTip(t.Context(), []solana.Instruction{memoInstruction("x")}, 1, solana.Hash{1})
	assert.ErrorIs(t, err, exception.ErrTransactionSubmit)
	assert.Contains(t, err.Error(), "blockhash not found")
}

func TestBuildWithTipNeedsInstructions(t *testing.T) {
	_, err := BuildWithTip(nil, 0, solana.NewWallet().PublicKey(), solana.Hash{1})
	assert.ErrorIs(t, err, exception.ErrTransactionBuild)
}

func TestTipAccountStable(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	assert.Equal(t, TipAccount(payer), TipAccount(payer))
	assert.Contains(t, TipAccounts, TipAccount(payer))
}
