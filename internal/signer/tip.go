package signer

import (
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/yanun0323/errors"

	"orchestrator/pkg/exception"
)

// TipAccounts are the block engine tip collection accounts.
var TipAccounts = []solana.PublicKey{
	solana.MustPublicKeyFromBase58("96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5"),
	solana.MustPublicKeyFromBase58("HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe"),
	solana.MustPublicKeyFromBase58("Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY"),
	solana.MustPublicKeyFromBase58("ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49"),
	solana.MustPublicKeyFromBase58("DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh"),
	solana.MustPublicKeyFromBase58("ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt"),
	solana.MustPublicKeyFromBase58("DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL"),
	solana.MustPublicKeyFromBase58("3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT"),
}

// TipAccount picks the tip account for payer. The choice is stable per payer.
func TipAccount(payer solana.PublicKey) solana.PublicKey {
	var sum uint64
	for _, b := range payer {
		sum += uint64(b)
	}
	return TipAccounts[sum%uint64(len(TipAccounts))]
}

// AppendTip returns ixs followed by a transfer of tipLamports from payer to its
// tip account. ixs is never modified. A zero tip adds nothing.
func AppendTip(ixs []solana.Instruction, tipLamports uint64, payer solana.PublicKey) []solana.Instruction {
	out := make([]solana.Instruction, 0, len(ixs)+1)
	out = append(out, ixs...)
	if tipLamports == 0 {
		return out
	}
	return append(out, system.NewTransferInstruction(tipLamports, payer, TipAccount(payer)).Build())
}

// BuildWithTip assembles an unsigned transaction paid by payer.
func BuildWithTip(ixs []solana.Instruction, tipLamports uint64, payer solana.PublicKey, blockhash solana.Hash) (*solana.Transaction, error) {
	all := AppendTip(ixs, tipLamports, payer)
	if len(all) == 0 {
		return nil, errors.Wrap(exception.ErrTransactionBuild, "no instructions")
	}
	tx, err := solana.NewTransaction(all, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, errors.Wrap(exception.ErrTransactionBuild, err.Error())
	}
	return tx, nil
}
