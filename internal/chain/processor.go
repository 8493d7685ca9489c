package chain

import (
	"context"
	"time"

	"github.com/yanun0323/errors"

	"orchestrator/pkg/exception"
)

// Processor consumes decoded accounts. It must return within the budget
// handed to it through ctx.
type Processor interface {
	Process(ctx context.Context, account DecodedAccount) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, account DecodedAccount) error

func (f ProcessorFunc) Process(ctx context.Context, account DecodedAccount) error {
	return f(ctx, account)
}

// processWithBudget runs p with a deadline of budget. A processor that
// ignores its context still blocks, the deadline only surfaces as an error.
func processWithBudget(ctx context.Context, p Processor, account DecodedAccount, budget time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	err := p.Process(ctx, account)
	if ctx.Err() == context.DeadlineExceeded {
		return errors.Wrapf(exception.ErrProcessorBudget, "pubkey: %s, budget: %s", account.Update.Pubkey, budget)
	}
	return err
}
