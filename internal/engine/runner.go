package engine

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"orchestrator/internal/pipeline"
	"orchestrator/pkg/exception"
)

// StepRunner performs the action of one step and returns the transaction
// signature, empty for actions that submit nothing.
type StepRunner interface {
	Run(ctx context.Context, p pipeline.Pipeline, step pipeline.Step) (string, error)
}

// StepRunnerFunc adapts a function to StepRunner.
type StepRunnerFunc func(ctx context.Context, p pipeline.Pipeline, step pipeline.Step) (string, error)

func (f StepRunnerFunc) Run(ctx context.Context, p pipeline.Pipeline, step pipeline.Step) (string, error) {
	return f(ctx, p, step)
}

// TransactionExecutor is the part of the executor runners submit through.
type TransactionExecutor interface {
	PublicKey() solana.PublicKey
	SignAndSendWithTip(ctx context.Context, ixs []solana.Instruction, tipLamports uint64) (solana.Signature, error)
}

// Router picks a runner by action kind.
type Router map[pipeline.ActionKind]StepRunner

func (r Router) Run(ctx context.Context, p pipeline.Pipeline, step pipeline.Step) (string, error) {
	runner, ok := r[step.Action.Kind]
	if !ok || runner == nil {
		return "", errors.Wrapf(exception.ErrStepUnsupported, "action: %s", step.Action.Kind)
	}
	return runner.Run(ctx, p, step)
}

// NewRouter wires the runners available in process. Orders are routed by an
// external strategy and stay unsupported here.
func NewRouter(exec TransactionExecutor) Router {
	return Router{
		pipeline.ActionNotification: NotificationRunner{},
		pipeline.ActionTransfer:     NewTransferRunner(exec),
	}
}

// NotificationRunner only logs, it submits nothing.
type NotificationRunner struct{}

func (NotificationRunner) Run(_ context.Context, p pipeline.Pipeline, step pipeline.Step) (string, error) {
	logs.Infof("pipeline %s step %s notification: %s", p.Key(), step.ID, step.Action.Message)
	return "", nil
}

// TransferRunner sends native lamports from the signer wallet.
type TransferRunner struct {
	exec TransactionExecutor
}

func NewTransferRunner(exec TransactionExecutor) *TransferRunner {
	return &TransferRunner{exec: exec}
}

func (r *TransferRunner) Run(ctx context.Context, p pipeline.Pipeline, step pipeline.Step) (string, error) {
	if r.exec == nil {
		return "", errors.Wrap(exception.ErrNilInstance, "executor")
	}

	from := r.exec.PublicKey()
	if p.WalletAddress != from.String() {
		return "", errors.Wrap(exception.ErrStepUnsupported, "wallet is not held by the signer").With("wallet", p.WalletAddress)
	}

	to, err := solana.PublicKeyFromBase58(step.Action.Recipient)
	if err != nil {
		return "", errors.Wrap(exception.ErrTransactionBuild, err.Error()).With("recipient", step.Action.Recipient)
	}

	ix := system.NewTransferInstruction(step.Action.Amount, from, to).Build()
	sig, err := r.exec.SignAndSendWithTip(ctx, []solana.Instruction{ix}, step.Action.TipLamports)
	if err != nil {
		return "", err
	}
	return sig.String(), nil
}
