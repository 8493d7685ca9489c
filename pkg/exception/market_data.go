package exception

import "errors"

var (
	ErrStreamTransport      = errors.New("market data: stream transport error")
	ErrStreamAlreadyRunning = errors.New("market data: stream already running")
	ErrPriceUnavailable     = errors.New("market data: price unavailable")
	ErrBlockhashUnavailable = errors.New("market data: blockhash unavailable")
	ErrCacheFetch           = errors.New("market data: cache fallback fetch failed")
	ErrCacheNoFetcher       = errors.New("market data: cache has no fallback fetcher")
)
