package engine

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/internal/pipeline"
	"orchestrator/pkg/exception"
)

func admissionPipeline(t *testing.T, userID string, steps ...pipeline.WireStep) pipeline.Pipeline {
	t.Helper()
	wallet := solana.NewWallet().PublicKey().String()
	return pipeline.FromWire(pipeline.WirePipeline{Steps: steps},
		pipeline.Params{UserID: userID, WalletAddress: wallet, PubKey: wallet}, time.Now())
}

func priceStep(t *testing.T, kind pipeline.ConditionKind, value string) pipeline.WireStep {
	return pipeline.WireStep{
		Action:     pipeline.Action{Kind: pipeline.ActionOrder, InputToken: "SOL", OutputToken: "USDC", Amount: 10},
		Conditions: []pipeline.Condition{{Kind: kind, Value: dec(t, value)}},
	}
}

func TestAdmissionCheck(t *testing.T) {
	now := time.Now()
	ref := dec(t, "100")

	testCases := []struct {
		desc     string
		limits   Limits
		steps    []pipeline.WireStep
		state    AdmissionState
		rejected bool
	}{
		{
			desc:   "no limits",
			steps:  []pipeline.WireStep{nowStep("x")},
			limits: Limits{},
		},
		{
			desc:     "kill switch",
			limits:   Limits{KillSwitch: true},
			steps:    []pipeline.WireStep{nowStep("x")},
			rejected: true,
		},
		{
			desc:     "too many steps",
			limits:   Limits{MaxSteps: 1},
			steps:    []pipeline.WireStep{nowStep("x"), nowStep("y")},
			rejected: true,
		},
		{
			desc:     "owner holds too many pipelines",
			limits:   Limits{MaxPipelinesPerOwner: 2},
			steps:    []pipeline.WireStep{nowStep("x")},
			state:    AdmissionState{OwnerPipelines: 2},
			rejected: true,
		},
		{
			desc:     "order amount over limit",
			limits:   Limits{MaxOrderAmount: 5},
			steps:    []pipeline.WireStep{priceStep(t, pipeline.ConditionPriceAbove, "101")},
			rejected: true,
		},
		{
			desc:   "price inside band",
			limits: Limits{MaxPriceDeviationBps: 1000},
			steps:  []pipeline.WireStep{priceStep(t, pipeline.ConditionPriceBelow, "95")},
			state:  AdmissionState{ReferencePrice: ref, PriceOK: true},
		},
		{
			desc:     "price outside band",
			limits:   Limits{MaxPriceDeviationBps: 1000},
			steps:    []pipeline.WireStep{priceStep(t, pipeline.ConditionPriceAbove, "120")},
			state:    AdmissionState{ReferencePrice: ref, PriceOK: true},
			rejected: true,
		},
		{
			desc:   "band skipped without reference price",
			limits: Limits{MaxPriceDeviationBps: 1000},
			steps:  []pipeline.WireStep{priceStep(t, pipeline.ConditionPriceAbove, "120")},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			tc.state.Now = now
			err := NewAdmission(tc.limits).Check(admissionPipeline(t, "u1", tc.steps...), tc.state)
			if tc.rejected {
				assert.ErrorIs(t, err, exception.ErrPipelineRejected)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAdmissionRateLimit(t *testing.T) {
	a := NewAdmission(Limits{RateLimit: 2, RateWindow: time.Minute})
	now := time.Now()
	p := admissionPipeline(t, "u1", nowStep("x"))

	require.NoError(t, a.Check(p, AdmissionState{Now: now}))
	require.NoError(t, a.Check(p, AdmissionState{Now: now.Add(time.Second)}))
	assert.ErrorIs(t, a.Check(p, AdmissionState{Now: now.Add(2 * time.Second)}), exception.ErrPipelineRejected)

	other := admissionPipeline(t, "u2", nowStep("x"))
	assert.NoError(t, a.Check(other, AdmissionState{Now: now.Add(2 * time.Second)}))

	assert.NoError(t, a.Check(p, AdmissionState{Now: now.Add(time.Minute)}))

	a.Forget(now.Add(3 * time.Minute))
	assert.Empty(t, a.windows)
}
