package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// WireStep is a step as submitted by a client.
type WireStep struct {
	ID         uuid.UUID   `json:"id"`
	Action     Action      `json:"action"`
	Conditions []Condition `json:"conditions"`
}

// WirePipeline is a pipeline as submitted by a client. Ownership comes from Params.
type WirePipeline struct {
	ID    uuid.UUID  `json:"id"`
	Steps []WireStep `json:"steps"`
}

// Params carries the authenticated identity owning a new pipeline.
type Params struct {
	UserID        string
	WalletAddress string
	PubKey        string
}

// FromWire builds a pending pipeline. Missing ids are generated.
func FromWire(w WirePipeline, params Params, now time.Time) Pipeline {
	id := w.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	steps := make([]Step, 0, len(w.Steps))
	for _, ws := range w.Steps {
		stepID := ws.ID
		if stepID == uuid.Nil {
			stepID = uuid.New()
		}
		steps = append(steps, Step{
			ID:         stepID,
			Action:     ws.Action,
			Conditions: append([]Condition(nil), ws.Conditions...),
			Status:     StepPending,
			UpdatedAt:  now,
		})
	}

	return Pipeline{
		ID:            id,
		UserID:        params.UserID,
		WalletAddress: params.WalletAddress,
		PubKey:        params.PubKey,
		Steps:         steps,
		Status:        StatusPending,
		CreatedAt:     now,
	}
}
