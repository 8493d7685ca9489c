package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"orchestrator/internal/pipeline"
	"orchestrator/pkg/exception"
)

// Execution is the outcome of one step run, as written to the journal.
type Execution struct {
	PipelineID uuid.UUID
	UserID     string
	StepID     uuid.UUID
	Action     pipeline.ActionKind
	Signature  string
	Err        error
	StartedAt  time.Time
	Duration   time.Duration
}

// Recorder keeps executions outside the engine.
type Recorder interface {
	Record(ctx context.Context, e Execution) error
}

type job struct {
	pipeline pipeline.Pipeline
	step     pipeline.Step
}

type stepResult struct {
	key       pipeline.Key
	stepID    uuid.UUID
	signature string
	err       error
	// started is false for jobs that never reached a worker.
	started bool
}

// Dispatcher runs steps on a fixed set of workers and reports every result
// back through a channel, so pipeline state stays with the loop.
type Dispatcher struct {
	runner   StepRunner
	recorder Recorder
	timeout  time.Duration

	running atomic.Bool
	worker  int
	queue   chan job
	results chan stepResult
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher with workerCount workers and room for
// workerCap waiting jobs.
func NewDispatcher(workerCount, workerCap int, runner StepRunner, recorder Recorder, timeout time.Duration) *Dispatcher {
	if workerCount <= 0 {
		workerCount = 1
	}
	if workerCap <= 0 {
		workerCap = workerCount
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		runner:   runner,
		recorder: recorder,
		timeout:  timeout,
		worker:   workerCount,
		queue:    make(chan job, workerCap),
		results:  make(chan stepResult, workerCount+workerCap),
		stop:     make(chan struct{}),
	}
}

// Handle queues a job without blocking.
func (d *Dispatcher) Handle(j job) error {
	select {
	case d.queue <- j:
		return nil
	default:
		return exception.ErrDispatchQueueFull
	}
}

// Results delivers finished and abandoned jobs.
func (d *Dispatcher) Results() <-chan stepResult {
	return d.results
}

// Run starts the workers. Steps run detached from ctx cancellation so a
// submission in flight is never cut short by shutdown.
func (d *Dispatcher) Run(ctx context.Context) {
	if d.running.Swap(true) {
		return
	}

	for range d.worker {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.work(context.WithoutCancel(ctx))
		}()
	}
}

// Stop makes the workers exit after their current job. The returned channel
// closes once they did, then Leftover returns the jobs nobody started.
func (d *Dispatcher) Stop() <-chan struct{} {
	done := make(chan struct{})
	close(d.stop)
	go func() {
		d.wg.Wait()
		close(done)
	}()
	return done
}

// Leftover drains jobs that were queued but never started.
func (d *Dispatcher) Leftover() []job {
	var out []job
	for {
		select {
		case j := <-d.queue:
			out = append(out, j)
		default:
			return out
		}
	}
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-d.stop:
			return
		case j := <-d.queue:
			d.results <- d.execute(ctx, j)
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, j job) (res stepResult) {
	key := j.pipeline.Key()
	res = stepResult{key: key, stepID: j.step.ID, started: true}
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			res.err = errors.Errorf("step runner panic: %v", r)
			logs.Errorf("pipeline %s step %s, runner panic: %v", key, j.step.ID, r)
		}
		d.record(ctx, j, res, started)
	}()

	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	res.signature, res.err = d.runner.Run(runCtx, j.pipeline, j.step)
	if res.err != nil {
		logs.Warnf("pipeline %s step %s failed, err: %+v", key, j.step.ID, res.err)
	}
	return res
}

func (d *Dispatcher) record(ctx context.Context, j job, res stepResult, started time.Time) {
	if d.recorder == nil {
		return
	}
	err := d.recorder.Record(ctx, Execution{
		PipelineID: j.pipeline.ID,
		UserID:     j.pipeline.UserID,
		StepID:     j.step.ID,
		Action:     j.step.Action.Kind,
		Signature:  res.signature,
		Err:        res.err,
		StartedAt:  started,
		Duration:   time.Since(started),
	})
	if err != nil {
		logs.Errorf("record execution of pipeline %s step %s, err: %+v", j.pipeline.Key(), j.step.ID, err)
	}
}
