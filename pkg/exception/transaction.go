package exception

import "errors"

var (
	ErrTransactionSign   = errors.New("transaction: sign failed")
	ErrTransactionSubmit = errors.New("transaction: submit failed")
	ErrTransactionBuild  = errors.New("transaction: build failed")
	ErrInvalidPrivateKey = errors.New("transaction: invalid private key")
)
