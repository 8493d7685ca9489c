package executor

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/yanun0323/errors"

	"orchestrator/internal/signer"
	"orchestrator/pkg/exception"
)

// BlockhashSource returns the freshest known block reference.
type BlockhashSource interface {
	Get(ctx context.Context) (solana.Hash, error)
}

// Executor stamps transactions with a fresh block reference and hands them to a
// signer. One call is one submission attempt, resubmitting is up to the caller.
type Executor struct {
	signer    signer.Signer
	blockhash BlockhashSource
}

// New creates an executor.
func New(s signer.Signer, blockhash BlockhashSource) *Executor {
	return &Executor{
		signer:    s,
		blockhash: blockhash,
	}
}

// PublicKey returns the signer identity.
func (e *Executor) PublicKey() solana.PublicKey {
	return e.signer.PublicKey()
}

// SignAndSend signs and submits a fully formed transaction.
func (e *Executor) SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	blockhash, err := e.freshBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}
	return e.signer.SignAndSend(ctx, tx, blockhash)
}

// SignAndSendWithTip builds a transaction from ixs with a priority tip of
// tipLamports, paid by the signer.
func (e *Executor) SignAndSendWithTip(ctx context.Context, ixs []solana.Instruction, tipLamports uint64) (solana.Signature, error) {
	blockhash, err := e.freshBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}
	return e.signer.SignAndSendWithTip(ctx, ixs, tipLamports, blockhash)
}

// freshBlockhash reads the shared cache right before signing and never keeps
// the value across calls.
func (e *Executor) freshBlockhash(ctx context.Context) (solana.Hash, error) {
	blockhash, err := e.blockhash.Get(ctx)
	if err != nil {
		return solana.Hash{}, errors.Wrap(exception.ErrBlockhashUnavailable, err.Error())
	}
	if blockhash.IsZero() {
		return solana.Hash{}, exception.ErrBlockhashUnavailable
	}
	return blockhash, nil
}
