package signer

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// Signer is a capability to sign and submit transactions for one key. The key
// material may live in process or behind a custodial service.
type Signer interface {
	// PublicKey reports the identity transactions are signed with.
	PublicKey() solana.PublicKey
	// SignAndSend stamps tx with blockhash, signs and submits it.
	SignAndSend(ctx context.Context, tx *solana.Transaction, blockhash solana.Hash) (solana.Signature, error)
	// SignAndSendWithTip appends a priority tip to ixs, builds a transaction paid
	// by the signer, signs and submits it.
	SignAndSendWithTip(ctx context.Context, ixs []solana.Instruction, tipLamports uint64, blockhash solana.Hash) (solana.Signature, error)
}

// Sender submits a signed transaction to the network.
type Sender interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}
