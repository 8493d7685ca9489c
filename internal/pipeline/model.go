package pipeline

import (
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/decimal"
)

// Status is the lifecycle of a pipeline.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// StepStatus is the lifecycle of a single step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepExecuting StepStatus = "executing"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// ActionKind names what a step does once its conditions hold.
type ActionKind string

const (
	ActionOrder        ActionKind = "order"
	ActionTransfer     ActionKind = "transfer"
	ActionNotification ActionKind = "notification"
)

// Action is opaque to the engine beyond its kind, a runner interprets it.
type Action struct {
	Kind        ActionKind `json:"type"`
	InputToken  string     `json:"input_token,omitempty"`
	OutputToken string     `json:"output_token,omitempty"`
	Recipient   string     `json:"recipient,omitempty"`
	Amount      uint64     `json:"amount,omitempty"`
	TipLamports uint64     `json:"tip_lamports,omitempty"`
	Message     string     `json:"message,omitempty"`
}

// ConditionKind is the trigger type of a step.
type ConditionKind string

const (
	ConditionNow            ConditionKind = "now"
	ConditionPriceAbove     ConditionKind = "price_above"
	ConditionPriceBelow     ConditionKind = "price_below"
	ConditionAccountChanged ConditionKind = "account_changed"
)

// Condition gates a step.
type Condition struct {
	Kind    ConditionKind   `json:"type"`
	Value   decimal.Decimal `json:"value,omitempty"`
	Account string          `json:"account,omitempty"`
}

// Step is one unit of work in a pipeline.
type Step struct {
	ID         uuid.UUID   `json:"id"`
	Action     Action      `json:"action"`
	Conditions []Condition `json:"conditions"`
	Status     StepStatus  `json:"status"`
	Signature  string      `json:"signature,omitempty"`
	Error      string      `json:"error,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Key identifies a pipeline. Ids are unique per owner.
type Key struct {
	UserID string
	ID     uuid.UUID
}

func (k Key) String() string {
	return k.UserID + "/" + k.ID.String()
}

// Pipeline is an owner-scoped, ordered list of steps tied to a wallet.
type Pipeline struct {
	ID            uuid.UUID `json:"id"`
	UserID        string    `json:"user_id"`
	WalletAddress string    `json:"wallet_address"`
	PubKey        string    `json:"pubkey"`
	Steps         []Step    `json:"steps"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// Key returns the identity of the pipeline.
func (p Pipeline) Key() Key {
	return Key{UserID: p.UserID, ID: p.ID}
}

// Clone returns a copy sharing no slices with p.
func (p Pipeline) Clone() Pipeline {
	out := p
	if p.Steps != nil {
		out.Steps = make([]Step, len(p.Steps))
		for i, s := range p.Steps {
			s.Conditions = append([]Condition(nil), s.Conditions...)
			out.Steps[i] = s
		}
	}
	return out
}

// NextStep returns the index of the first step that is not completed.
// ok is false when the pipeline is finished or has nothing left to run.
func (p Pipeline) NextStep() (int, bool) {
	if p.Status != StatusPending {
		return 0, false
	}
	for i, s := range p.Steps {
		if s.Status != StepCompleted {
			return i, true
		}
	}
	return 0, false
}

// Step returns the index of the step with the given id.
func (p Pipeline) Step(id uuid.UUID) (int, bool) {
	for i, s := range p.Steps {
		if s.ID == id {
			return i, true
		}
	}
	return 0, false
}

// MarkExecuting flags step i as running.
func (p *Pipeline) MarkExecuting(i int, now time.Time) {
	p.Steps[i].Status = StepExecuting
	p.Steps[i].UpdatedAt = now
}

// Complete records a successful step and finishes the pipeline after its last step.
func (p *Pipeline) Complete(i int, signature string, now time.Time) {
	p.Steps[i].Status = StepCompleted
	p.Steps[i].Signature = signature
	p.Steps[i].Error = ""
	p.Steps[i].UpdatedAt = now
	if _, ok := p.NextStep(); !ok && p.Status == StatusPending {
		p.Status = StatusCompleted
	}
}

// Fail records a failed step. Later steps stay pending and the pipeline is kept.
func (p *Pipeline) Fail(i int, reason string, now time.Time) {
	p.Steps[i].Status = StepFailed
	p.Steps[i].Error = reason
	p.Steps[i].UpdatedAt = now
	p.Status = StatusFailed
}

// Requeue puts an executing step back to pending, used when nothing was submitted.
func (p *Pipeline) Requeue(i int, now time.Time) {
	if p.Steps[i].Status == StepExecuting {
		p.Steps[i].Status = StepPending
		p.Steps[i].UpdatedAt = now
	}
}

// Executing reports whether any step is currently running.
func (p Pipeline) Executing() bool {
	for _, s := range p.Steps {
		if s.Status == StepExecuting {
			return true
		}
	}
	return false
}
