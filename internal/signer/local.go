package signer

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/yanun0323/errors"

	"orchestrator/pkg/exception"
)

var _ Signer = (*Local)(nil)

// Local signs with a key held in process memory.
type Local struct {
	key    solana.PrivateKey
	pub    solana.PublicKey
	sender Sender
}

// NewLocal parses a base58 private key.
func NewLocal(privateKey string, sender Sender) (*Local, error) {
	if sender == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "sender")
	}
	key, err := solana.PrivateKeyFromBase58(privateKey)
	if err != nil {
		return nil, errors.Wrap(exception.ErrInvalidPrivateKey, err.Error())
	}
	return NewLocalFromKey(key, sender), nil
}

// NewLocalFromKey wraps an already parsed key.
func NewLocalFromKey(key solana.PrivateKey, sender Sender) *Local {
	return &Local{
		key:    key,
		pub:    key.PublicKey(),
		sender: sender,
	}
}

func (s *Local) PublicKey() solana.PublicKey {
	return s.pub
}

func (s *Local) SignAndSend(ctx context.Context, tx *solana.Transaction, blockhash solana.Hash) (solana.Signature, error) {
	if tx == nil {
		return solana.Signature{}, errors.Wrap(exception.ErrNilInstance, "transaction")
	}
	tx.Message.RecentBlockhash = blockhash
	if err := s.sign(tx); err != nil {
		return solana.Signature{}, err
	}
	return s.send(ctx, tx)
}

func (s *Local) SignAndSendWithTip(ctx context.Context, ixs []solana.Instruction, tipLamports uint64, blockhash solana.Hash) (solana.Signature, error) {
	tx, err := BuildWithTip(ixs, tipLamports, s.pub, blockhash)
	if err != nil {
		return solana.Signature{}, err
	}
	if err := s.sign(tx); err != nil {
		return solana.Signature{}, err
	}
	return s.send(ctx, tx)
}

func (s *Local) sign(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.pub) {
			return &s.key
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(exception.ErrTransactionSign, err.Error())
	}
	return nil
}

func (s *Local) send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := s.sender.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, errors.Wrap(exception.ErrTransactionSubmit, err.Error())
	}
	return sig, nil
}
