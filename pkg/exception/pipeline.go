package exception

import "errors"

// Pipeline errors are domain errors, they are reported to the caller and never stop the engine.
var (
	ErrPipelineInvalid   = errors.New("pipeline: invalid")
	ErrPipelineDuplicate = errors.New("pipeline: already exists")
	ErrPipelineNotFound  = errors.New("pipeline: not found")
	ErrPipelineRejected  = errors.New("pipeline: rejected by admission")
	ErrStepNotFound      = errors.New("pipeline: step not found")
	ErrStepUnsupported   = errors.New("pipeline: unsupported step action")
)
