package market

import (
	"context"

	"golang.org/x/sync/errgroup"

	"orchestrator/internal/stream"
)

// Feed owns the background market data tasks and their restart policy.
type Feed struct {
	price     *PriceFeed
	blockhash *BlockhashPoller
	backoff   stream.Backoff
}

// NewFeed groups the price stream and the block reference poller. Either may be nil.
func NewFeed(price *PriceFeed, blockhash *BlockhashPoller, backoff stream.Backoff) *Feed {
	return &Feed{
		price:     price,
		blockhash: blockhash,
		backoff:   backoff,
	}
}

// Run blocks until ctx is done. The price stream is reconnected with backoff.
func (f *Feed) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	if f.price != nil {
		eg.Go(func() error {
			return stream.Supervise(ctx, "price", f.backoff, f.price.Run)
		})
	}
	if f.blockhash != nil {
		eg.Go(func() error {
			return f.blockhash.Run(ctx)
		})
	}

	return eg.Wait()
}
