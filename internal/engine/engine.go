package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"orchestrator/internal/bus"
	"orchestrator/internal/chain"
	"orchestrator/internal/pipeline"
	"orchestrator/pkg/exception"
)

// PriceSource is a non-blocking view of the latest price.
type PriceSource interface {
	Load() (decimal.Decimal, bool)
}

// AccountEvent tells the loop an account changed on chain.
type AccountEvent struct {
	Account string
	Slot    uint64
	At      time.Time
}

// Config sizes the engine.
type Config struct {
	QueueSize    int           `env:"QUEUE_SIZE, default=1000"`
	TickInterval time.Duration `env:"TICK_INTERVAL, default=1s"`
	Workers      int           `env:"WORKERS, default=4"`
	DispatchSize int           `env:"DISPATCH_SIZE, default=64"`
	AccountSize  int           `env:"ACCOUNT_EVENT_SIZE, default=1024"`
	StepTimeout  time.Duration `env:"STEP_TIMEOUT, default=30s"`
}

// Engine is the single owner of the pipeline store. Commands, step results,
// account events and ticks are all handled on one goroutine.
type Engine struct {
	cfg        Config
	store      pipeline.Store
	queue      *bus.Queue[Command]
	price      PriceSource
	admission  *Admission
	dispatcher *Dispatcher
	accounts   chan AccountEvent
	now        func() time.Time

	// accountSeen and watched are owned by the loop. Only accounts a pending
	// pipeline waits on are recorded.
	accountSeen map[string]time.Time
	watched     map[string]struct{}

	running atomic.Bool
	done    chan struct{}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithRecorder journals every step execution.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.dispatcher.recorder = r
	}
}

// New creates an engine. runner executes steps, price gates price conditions.
func New(cfg Config, store pipeline.Store, price PriceSource, limits Limits, runner StepRunner, opts ...Option) *Engine {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.AccountSize <= 0 {
		cfg.AccountSize = 1024
	}

	e := &Engine{
		cfg:         cfg,
		store:       store,
		queue:       bus.NewQueue[Command](cfg.QueueSize),
		price:       price,
		admission:   NewAdmission(limits),
		dispatcher:  NewDispatcher(cfg.Workers, cfg.DispatchSize, runner, nil, cfg.StepTimeout),
		accounts:    make(chan AccountEvent, cfg.AccountSize),
		now:         time.Now,
		accountSeen: make(map[string]time.Time),
		watched:     make(map[string]struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit enqueues a command, waiting for room until ctx is done.
func (e *Engine) Submit(ctx context.Context, cmd Command) error {
	return e.queue.Publish(ctx, cmd)
}

// QueueLen returns the number of commands waiting.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Shutdown stops accepting commands. Run replies to everything accepted
// before and returns.
func (e *Engine) Shutdown() {
	e.queue.Close()
}

// Done is closed when Run returned.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Process implements chain.Processor, it forwards account changes to the loop.
func (e *Engine) Process(ctx context.Context, account chain.DecodedAccount) error {
	ev := AccountEvent{
		Account: account.Update.Pubkey,
		Slot:    account.Update.Slot,
		At:      e.now(),
	}
	select {
	case e.accounts <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes commands until ctx is done or Shutdown is called.
func (e *Engine) Run(ctx context.Context) error {
	if e.running.Swap(true) {
		return exception.ErrEngineRunning
	}
	defer close(e.done)

	e.dispatcher.Run(ctx)
	e.resume(ctx)
	e.evaluate(ctx)

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	logs.Infof("engine started, queue size: %d, workers: %d", e.cfg.QueueSize, e.dispatcher.worker)
	for {
		select {
		case <-ctx.Done():
			e.shutdown(context.WithoutCancel(ctx))
			return nil
		case <-e.queue.Sealed():
			e.shutdown(ctx)
			return nil
		case cmd := <-e.queue.C():
			e.handle(ctx, cmd)
		case res := <-e.dispatcher.Results():
			e.apply(ctx, res)
		case ev := <-e.accounts:
			if e.observeBatch(ev) {
				e.evaluate(ctx)
			}
		case <-ticker.C:
			e.evaluate(ctx)
			e.admission.Forget(e.now())
		}
	}
}

func (e *Engine) shutdown(ctx context.Context) {
	e.queue.Close()
	n := e.queue.Drain(func(cmd Command) {
		e.handle(ctx, cmd)
	})

	stopped := e.dispatcher.Stop()
	for waiting := true; waiting; {
		select {
		case res := <-e.dispatcher.Results():
			e.apply(ctx, res)
		case <-stopped:
			waiting = false
		}
	}
	for drained := false; !drained; {
		select {
		case res := <-e.dispatcher.Results():
			e.apply(ctx, res)
		default:
			drained = true
		}
	}

	left := e.dispatcher.Leftover()
	for _, j := range left {
		e.apply(ctx, stepResult{key: j.pipeline.Key(), stepID: j.step.ID})
	}
	logs.Infof("engine stopped, drained commands: %d, unstarted steps: %d", n, len(left))
}

// resume fails steps a previous process left executing. Whether they were
// submitted is unknown, so they are never run twice.
func (e *Engine) resume(ctx context.Context) {
	pending, err := e.store.Pending(ctx)
	if err != nil {
		logs.Errorf("load pending pipelines, err: %+v", err)
		return
	}
	now := e.now()
	for _, p := range pending {
		changed := false
		for i := range p.Steps {
			if p.Steps[i].Status == pipeline.StepExecuting {
				p.Fail(i, "interrupted by restart", now)
				changed = true
			}
		}
		if !changed {
			continue
		}
		if err := e.store.Update(ctx, p); err != nil {
			logs.Errorf("update interrupted pipeline %s, err: %+v", p.Key(), err)
		}
	}
}

func (e *Engine) handle(ctx context.Context, cmd Command) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("engine command %s panic: %v", cmd.name(), r)
			cmd.drop()
		}
	}()

	switch c := cmd.(type) {
	case AddPipeline:
		p, err := e.add(ctx, c.Pipeline)
		respond(c.Reply, Reply[pipeline.Pipeline]{Value: p, Err: err})
	case GetPipeline:
		p, err := e.store.Get(ctx, c.Key)
		respond(c.Reply, Reply[pipeline.Pipeline]{Value: p, Err: err})
	case DeletePipeline:
		err := e.store.Delete(ctx, c.Key)
		respond(c.Reply, Reply[struct{}]{Err: err})
	default:
		logs.Errorf("engine: unknown command %T", cmd)
		cmd.drop()
	}
}

func (e *Engine) add(ctx context.Context, p pipeline.Pipeline) (pipeline.Pipeline, error) {
	if err := pipeline.Validate(p); err != nil {
		return pipeline.Pipeline{}, err
	}

	count, err := e.store.CountByOwner(ctx, p.UserID)
	if err != nil {
		return pipeline.Pipeline{}, errors.Wrap(exception.ErrInternal, err.Error())
	}

	price, ok := e.price.Load()
	if err := e.admission.Check(p, AdmissionState{
		OwnerPipelines: count,
		ReferencePrice: price,
		PriceOK:        ok,
		Now:            e.now(),
	}); err != nil {
		return pipeline.Pipeline{}, err
	}

	if err := e.store.Insert(ctx, p); err != nil {
		return pipeline.Pipeline{}, err
	}

	e.watch(p)
	stored := p.Clone()
	e.advance(ctx, &p, e.view())
	return stored, nil
}

// observeBatch records ev and the events already buffered behind it. It
// reports whether any of them is watched by a pending pipeline.
func (e *Engine) observeBatch(ev AccountEvent) bool {
	hit := e.observe(ev)
	for n := len(e.accounts); n > 0; n-- {
		hit = e.observe(<-e.accounts) || hit
	}
	return hit
}

func (e *Engine) observe(ev AccountEvent) bool {
	if _, ok := e.watched[ev.Account]; !ok {
		return false
	}
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	if seen, ok := e.accountSeen[ev.Account]; !ok || ev.At.After(seen) {
		e.accountSeen[ev.Account] = ev.At
	}
	return true
}

func (e *Engine) watch(p pipeline.Pipeline) {
	for _, s := range p.Steps {
		for _, c := range s.Conditions {
			if c.Kind == pipeline.ConditionAccountChanged {
				e.watched[c.Account] = struct{}{}
			}
		}
	}
}

func (e *Engine) view() pipeline.MarketView {
	price, ok := e.price.Load()
	return pipeline.MarketView{
		Price:          price,
		PriceOK:        ok,
		AccountUpdates: e.accountSeen,
	}
}

// evaluate dispatches every pending step whose conditions hold.
func (e *Engine) evaluate(ctx context.Context) {
	pending, err := e.store.Pending(ctx)
	if err != nil {
		logs.Errorf("load pending pipelines, err: %+v", err)
		return
	}

	clear(e.watched)
	for i := range pending {
		e.watch(pending[i])
	}
	for account := range e.accountSeen {
		if _, ok := e.watched[account]; !ok {
			delete(e.accountSeen, account)
		}
	}

	view := e.view()
	for i := range pending {
		if !e.advance(ctx, &pending[i], view) {
			break
		}
	}
}

// advance dispatches the next step of p if it is ready. It returns false when
// the dispatcher is full.
func (e *Engine) advance(ctx context.Context, p *pipeline.Pipeline, view pipeline.MarketView) bool {
	if p.Executing() {
		return true
	}
	i, ok := p.NextStep()
	if !ok || p.Steps[i].Status != pipeline.StepPending {
		return true
	}

	since := p.CreatedAt
	if i > 0 {
		since = p.Steps[i-1].UpdatedAt
	}
	if !p.Steps[i].Ready(view, since) {
		return true
	}

	now := e.now()
	p.MarkExecuting(i, now)
	if err := e.store.Update(ctx, *p); err != nil {
		logs.Errorf("mark pipeline %s step %s executing, err: %+v", p.Key(), p.Steps[i].ID, err)
		return true
	}

	if err := e.dispatcher.Handle(job{pipeline: p.Clone(), step: p.Steps[i]}); err != nil {
		logs.Warnf("dispatch pipeline %s step %s, err: %+v", p.Key(), p.Steps[i].ID, err)
		p.Requeue(i, now)
		if err := e.store.Update(ctx, *p); err != nil {
			logs.Errorf("requeue pipeline %s, err: %+v", p.Key(), err)
		}
		return false
	}
	return true
}

// apply writes a step result back. Results of deleted pipelines are dropped.
func (e *Engine) apply(ctx context.Context, res stepResult) {
	p, err := e.store.Get(ctx, res.key)
	if err != nil {
		logs.Warnf("apply result of pipeline %s step %s, err: %+v", res.key, res.stepID, err)
		return
	}
	i, ok := p.Step(res.stepID)
	if !ok {
		logs.Errorf("apply result of pipeline %s, err: %+v", res.key, exception.ErrStepNotFound)
		return
	}

	now := e.now()
	switch {
	case !res.started:
		p.Requeue(i, now)
	case res.err != nil:
		p.Fail(i, res.err.Error(), now)
	default:
		p.Complete(i, res.signature, now)
	}

	if err := e.store.Update(ctx, p); err != nil {
		logs.Errorf("update pipeline %s, err: %+v", res.key, err)
	}
}
