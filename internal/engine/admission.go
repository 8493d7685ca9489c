package engine

import (
	"time"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"

	"orchestrator/internal/pipeline"
	"orchestrator/pkg/exception"
)

var bpsDenominator = decimal.NewFromInt(10000)

// Limits bounds what a new pipeline may ask for. Zero disables a check.
type Limits struct {
	KillSwitch           bool          `env:"KILL_SWITCH, default=false"`
	MaxSteps             int           `env:"MAX_STEPS, default=16"`
	MaxPipelinesPerOwner int           `env:"MAX_PIPELINES_PER_OWNER, default=64"`
	MaxOrderAmount       uint64        `env:"MAX_ORDER_AMOUNT, default=0"`
	MaxPriceDeviationBps int64         `env:"MAX_PRICE_DEVIATION_BPS, default=0"`
	RateLimit            int           `env:"RATE_LIMIT, default=0"`
	RateWindow           time.Duration `env:"RATE_WINDOW, default=1m"`
}

// AdmissionState is what the loop knows when a pipeline arrives.
type AdmissionState struct {
	OwnerPipelines int
	ReferencePrice decimal.Decimal
	PriceOK        bool
	Now            time.Time
}

type rateWindow struct {
	start time.Time
	count int
}

// Admission applies Limits to new pipelines. It belongs to the loop and is
// not safe for concurrent use.
type Admission struct {
	limits  Limits
	windows map[string]*rateWindow
}

// NewAdmission creates an admission check with static limits.
func NewAdmission(limits Limits) *Admission {
	return &Admission{
		limits:  limits,
		windows: make(map[string]*rateWindow),
	}
}

// Check returns nil or an error wrapping exception.ErrPipelineRejected.
func (a *Admission) Check(p pipeline.Pipeline, state AdmissionState) error {
	now := state.Now
	if now.IsZero() {
		now = time.Now()
	}

	if a.limits.KillSwitch {
		return reject("kill switch enabled")
	}

	if a.limits.RateLimit > 0 && a.limits.RateWindow > 0 {
		w := a.windows[p.UserID]
		if w == nil || now.Sub(w.start) >= a.limits.RateWindow {
			w = &rateWindow{start: now}
			a.windows[p.UserID] = w
		}
		w.count++
		if w.count > a.limits.RateLimit {
			return reject("rate limit exceeded")
		}
	}

	if a.limits.MaxSteps > 0 && len(p.Steps) > a.limits.MaxSteps {
		return rejectf("%d steps exceed limit %d", len(p.Steps), a.limits.MaxSteps)
	}

	if a.limits.MaxPipelinesPerOwner > 0 && state.OwnerPipelines >= a.limits.MaxPipelinesPerOwner {
		return rejectf("owner already holds %d pipelines", state.OwnerPipelines)
	}

	for _, s := range p.Steps {
		if a.limits.MaxOrderAmount > 0 && s.Action.Amount > a.limits.MaxOrderAmount {
			return rejectf("step %s amount %d exceeds limit %d", s.ID, s.Action.Amount, a.limits.MaxOrderAmount)
		}
		if a.limits.MaxPriceDeviationBps <= 0 || !state.PriceOK || state.ReferencePrice.Sign() <= 0 {
			continue
		}
		for _, c := range s.Conditions {
			if c.Kind != pipeline.ConditionPriceAbove && c.Kind != pipeline.ConditionPriceBelow {
				continue
			}
			if exceedsDeviation(c.Value, state.ReferencePrice, a.limits.MaxPriceDeviationBps) {
				return rejectf("step %s %s %s is outside the price band", s.ID, c.Kind, c.Value.String())
			}
		}
	}

	return nil
}

// Forget drops rate state of owners whose window ended before now.
func (a *Admission) Forget(now time.Time) {
	for owner, w := range a.windows {
		if now.Sub(w.start) >= a.limits.RateWindow {
			delete(a.windows, owner)
		}
	}
}

// exceedsDeviation reports |value-ref|/ref > bps/10000.
func exceedsDeviation(value, ref decimal.Decimal, bps int64) bool {
	diff := value.Sub(ref).Abs()
	return diff.Mul(bpsDenominator).Cmp(ref.Mul(decimal.NewFromInt(bps))) > 0
}

func reject(reason string) error {
	return errors.Wrap(exception.ErrPipelineRejected, reason)
}

func rejectf(format string, args ...any) error {
	return errors.Wrapf(exception.ErrPipelineRejected, format, args...)
}
