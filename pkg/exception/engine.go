package exception

import "errors"

var (
	ErrEngineUnavailable  = errors.New("engine: unavailable")
	ErrEngineTimeout      = errors.New("engine: reply timed out")
	ErrEngineReplyDropped = errors.New("engine: reply channel closed")
	ErrEngineRunning      = errors.New("engine: already running")
	ErrQueueClosed        = errors.New("engine: queue closed")
	ErrDispatchQueueFull  = errors.New("engine: dispatch queue full")
)
