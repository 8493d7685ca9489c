package pipeline

import (
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"

	"orchestrator/pkg/exception"
)

// Validate checks a pipeline before it is accepted. Every failure wraps
// exception.ErrPipelineInvalid.
func Validate(p Pipeline) error {
	if p.UserID == "" {
		return invalid("empty user id")
	}
	if p.ID == uuid.Nil {
		return invalid("empty pipeline id")
	}

	wallet, err := solana.PublicKeyFromBase58(p.WalletAddress)
	if err != nil {
		return invalid("wallet address is not a public key")
	}
	if p.PubKey != "" && p.PubKey != wallet.String() {
		return invalid("pubkey does not match wallet address")
	}

	if p.Status != StatusPending {
		return invalid("new pipeline must be pending")
	}
	if len(p.Steps) == 0 {
		return invalid("pipeline has no steps")
	}

	seen := make(map[uuid.UUID]struct{}, len(p.Steps))
	for i, s := range p.Steps {
		if s.ID == uuid.Nil {
			return invalidf("step %d: empty id", i)
		}
		if _, ok := seen[s.ID]; ok {
			return invalidf("step %d: duplicate id %s", i, s.ID)
		}
		seen[s.ID] = struct{}{}

		if s.Status != StepPending {
			return invalidf("step %d: new step must be pending", i)
		}
		if err := validateAction(s.Action); err != nil {
			return errors.Wrapf(err, "step %d", i)
		}
		for j, c := range s.Conditions {
			if err := validateCondition(c); err != nil {
				return errors.Wrapf(err, "step %d condition %d", i, j)
			}
		}
	}

	return nil
}

func validateAction(a Action) error {
	switch a.Kind {
	case ActionOrder:
		if a.InputToken == "" || a.OutputToken == "" {
			return invalid("order needs input and output token")
		}
		if a.InputToken == a.OutputToken {
			return invalid("order input and output token are equal")
		}
		if a.Amount == 0 {
			return invalid("order amount must be > 0")
		}
	case ActionTransfer:
		if _, err := solana.PublicKeyFromBase58(a.Recipient); err != nil {
			return invalid("transfer recipient is not a public key")
		}
		if a.Amount == 0 {
			return invalid("transfer amount must be > 0")
		}
	case ActionNotification:
	default:
		return invalidf("unknown action %q", a.Kind)
	}
	return nil
}

func validateCondition(c Condition) error {
	switch c.Kind {
	case ConditionNow:
	case ConditionPriceAbove, ConditionPriceBelow:
		v, err := decimal.New(string(c.Value))
		if err != nil {
			return invalidf("price condition value %q is not a number", string(c.Value))
		}
		if v.Sign() <= 0 {
			return invalid("price condition value must be > 0")
		}
	case ConditionAccountChanged:
		if _, err := solana.PublicKeyFromBase58(c.Account); err != nil {
			return invalid("account condition needs a public key")
		}
	default:
		return invalidf("unknown condition %q", c.Kind)
	}
	return nil
}

func invalid(reason string) error {
	return errors.Wrap(exception.ErrPipelineInvalid, reason)
}

func invalidf(format string, args ...any) error {
	return errors.Wrapf(exception.ErrPipelineInvalid, format, args...)
}
