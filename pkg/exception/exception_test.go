package exception

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yanun0323/errors"
)

func TestSentinelsSurviveWrap(t *testing.T) {
	sentinels := []error{
		ErrPipelineInvalid, ErrPipelineDuplicate, ErrPipelineNotFound, ErrPipelineRejected,
		ErrEngineUnavailable, ErrEngineTimeout, ErrEngineReplyDropped, ErrQueueClosed,
		ErrStreamTransport, ErrCacheFetch, ErrSubscriptionRejected, ErrTransactionSubmit,
	}
	for _, target := range sentinels {
		once := errors.Wrap(target, "once")
		twice := errors.Wrapf(once, "twice %d", 2)
		assert.True(t, stderrors.Is(once, target), target.Error())
		assert.True(t, stderrors.Is(twice, target), target.Error())
		assert.False(t, stderrors.Is(once, ErrInternal), target.Error())
	}
}
