package market

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"orchestrator/internal/cache"
	"orchestrator/pkg/exception"
)

// BlockhashFetcher returns the latest block reference of the chain.
type BlockhashFetcher interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
}

// RPCBlockhash reads the block reference from a JSON-RPC node.
type RPCBlockhash struct {
	client     *rpc.Client
	commitment rpc.CommitmentType
}

// NewRPCBlockhash creates a fetcher at the finalized commitment.
func NewRPCBlockhash(client *rpc.Client) *RPCBlockhash {
	return &RPCBlockhash{
		client:     client,
		commitment: rpc.CommitmentFinalized,
	}
}

func (r *RPCBlockhash) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := r.client.GetLatestBlockhash(ctx, r.commitment)
	if err != nil {
		return solana.Hash{}, errors.Wrap(err, "get latest blockhash")
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, exception.ErrBlockhashUnavailable
	}
	return out.Value.Blockhash, nil
}

// Fetch adapts a fetcher to a cache fallback.
func Fetch(f BlockhashFetcher) cache.FetchFunc[solana.Hash] {
	return f.LatestBlockhash
}

// BlockhashPoller refreshes the block reference cache on a fixed interval.
type BlockhashPoller struct {
	fetcher  BlockhashFetcher
	cache    *cache.Value[solana.Hash]
	interval time.Duration
}

// NewBlockhashPoller creates a poller. Block references expire after roughly a
// minute, intervals of a few seconds keep the cache well inside that window.
func NewBlockhashPoller(fetcher BlockhashFetcher, c *cache.Value[solana.Hash], interval time.Duration) *BlockhashPoller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &BlockhashPoller{
		fetcher:  fetcher,
		cache:    c,
		interval: interval,
	}
}

// Run polls until ctx is done. Failed polls are logged and the previous value stays.
func (p *BlockhashPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *BlockhashPoller) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	hash, err := p.fetcher.LatestBlockhash(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logs.Warnf("refresh blockhash, err: %+v", err)
		}
		return
	}
	if hash.IsZero() {
		return
	}
	p.cache.Set(hash)
}
