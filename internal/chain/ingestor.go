package chain

import (
	"context"
	"time"

	"github.com/yanun0323/logs"
)

// Ingestor wires a subscription through a decoder into a processor.
// Delivery is at least once, ordered per account only.
type Ingestor struct {
	sub       *Subscription
	decoder   Decoder
	processor Processor
	budget    time.Duration
}

// NewIngestor creates an ingestor. budget bounds each processor call.
func NewIngestor(sub *Subscription, decoder Decoder, processor Processor, budget time.Duration) *Ingestor {
	if decoder == nil {
		decoder = RawDecoder{}
	}
	if budget <= 0 {
		budget = 100 * time.Millisecond
	}
	return &Ingestor{
		sub:       sub,
		decoder:   decoder,
		processor: processor,
		budget:    budget,
	}
}

// Run streams until the subscription ends, see Subscription.Run.
func (i *Ingestor) Run(ctx context.Context) error {
	return i.sub.Run(ctx, func(update AccountUpdate) {
		i.handle(ctx, update)
	})
}

func (i *Ingestor) handle(ctx context.Context, update AccountUpdate) {
	decoded, ok, err := i.decoder.Decode(update)
	if err != nil {
		logs.Errorf("decode account %s, err: %+v", update.Pubkey, err)
		return
	}
	if !ok {
		return
	}
	if err := processWithBudget(ctx, i.processor, decoded, i.budget); err != nil {
		logs.Warnf("process account %s, err: %+v", update.Pubkey, err)
	}
}
