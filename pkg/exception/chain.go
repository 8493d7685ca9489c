package exception

import "errors"

var (
	ErrSubscriptionRejected = errors.New("chain: subscription rejected")
	ErrAccountDecode        = errors.New("chain: account decode failed")
	ErrProcessorBudget      = errors.New("chain: processor exceeded budget")
)
