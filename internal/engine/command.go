package engine

import (
	"orchestrator/internal/pipeline"
)

// Reply is the single answer to a command.
type Reply[T any] struct {
	Value T
	Err   error
}

// Command is a request to the engine loop. Each command carries a reply
// channel with room for exactly one reply, so the loop never blocks on a
// caller that stopped waiting.
type Command interface {
	name() string
	// drop closes the reply channel without an answer.
	drop()
}

// AddPipeline stores a new pipeline after validation and admission.
type AddPipeline struct {
	Pipeline pipeline.Pipeline
	Reply    chan Reply[pipeline.Pipeline]
}

// GetPipeline returns a snapshot of an owned pipeline.
type GetPipeline struct {
	Key   pipeline.Key
	Reply chan Reply[pipeline.Pipeline]
}

// DeletePipeline removes an owned pipeline.
type DeletePipeline struct {
	Key   pipeline.Key
	Reply chan Reply[struct{}]
}

func (AddPipeline) name() string    { return "add_pipeline" }
func (GetPipeline) name() string    { return "get_pipeline" }
func (DeletePipeline) name() string { return "delete_pipeline" }

func (c AddPipeline) drop()    { close(c.Reply) }
func (c GetPipeline) drop()    { close(c.Reply) }
func (c DeletePipeline) drop() { close(c.Reply) }

// NewAddPipeline builds an AddPipeline with a fresh reply slot.
func NewAddPipeline(p pipeline.Pipeline) AddPipeline {
	return AddPipeline{Pipeline: p, Reply: make(chan Reply[pipeline.Pipeline], 1)}
}

// NewGetPipeline builds a GetPipeline with a fresh reply slot.
func NewGetPipeline(key pipeline.Key) GetPipeline {
	return GetPipeline{Key: key, Reply: make(chan Reply[pipeline.Pipeline], 1)}
}

// NewDeletePipeline builds a DeletePipeline with a fresh reply slot.
func NewDeletePipeline(key pipeline.Key) DeletePipeline {
	return DeletePipeline{Key: key, Reply: make(chan Reply[struct{}], 1)}
}

// respond hands r to ch. The slot holds one value, a second reply is dropped.
func respond[T any](ch chan Reply[T], r Reply[T]) {
	select {
	case ch <- r:
	default:
	}
}
