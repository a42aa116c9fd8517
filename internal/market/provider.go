package market

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeromicro/go-zero/core/logx"

	"odte-agent/internal/broker"
	"odte-agent/internal/cache"
)

// Provider serves market reads for the prefetch stage. The gateway supplies
// underlying prices when a market-data subscription exists; everything else
// (and VIX, always) comes from the delayed fallback source. Reads are cached
// in redis with short TTLs so reanalysis bursts do not hammer either source.
type Provider struct {
	quotes    *QuoteClient
	gateway   *broker.Client
	useBroker bool
	rdb       redis.UniversalClient
}

// ProviderOption customises the provider.
type ProviderOption func(*Provider)

// WithGateway enables gateway-sourced underlying prices.
func WithGateway(client *broker.Client) ProviderOption {
	return func(p *Provider) {
		p.gateway = client
		p.useBroker = client != nil
	}
}

// WithCache enables the redis read cache.
func WithCache(rdb redis.UniversalClient) ProviderOption {
	return func(p *Provider) {
		p.rdb = rdb
	}
}

// NewProvider constructs the market data provider.
func NewProvider(quotes *QuoteClient, opts ...ProviderOption) *Provider {
	p := &Provider{quotes: quotes}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// VIX reads the current volatility level with its band.
func (p *Provider) VIX(ctx context.Context) (*VIXReading, error) {
	var reading VIXReading
	if p.cacheGet(ctx, cache.VIXKey(), &reading) {
		return &reading, nil
	}

	value, err := p.quotes.VIX(ctx)
	if err != nil {
		return nil, err
	}
	reading = VIXReading{
		Value:     value,
		Band:      ClassifyVIX(value),
		Timestamp: time.Now().UTC(),
	}
	p.cacheSet(ctx, cache.VIXKey(), &reading, cache.VIXTTL())
	return &reading, nil
}

// UnderlyingPrice reads the last price for a symbol.
func (p *Provider) UnderlyingPrice(ctx context.Context, symbol string) (float64, error) {
	var price float64
	if p.cacheGet(ctx, cache.UnderlyingPriceKey(symbol), &price) {
		return price, nil
	}

	var err error
	if p.useBroker {
		price, err = p.gatewayPrice(ctx, symbol)
		if err != nil {
			logx.WithContext(ctx).Slowf("market: gateway price for %s failed, using fallback: %v", symbol, err)
			price, err = p.quotes.LastPrice(ctx, symbol)
		}
	} else {
		price, err = p.quotes.LastPrice(ctx, symbol)
	}
	if err != nil {
		return 0, err
	}

	p.cacheSet(ctx, cache.UnderlyingPriceKey(symbol), &price, cache.UnderlyingPriceTTL())
	return price, nil
}

func (p *Provider) gatewayPrice(ctx context.Context, symbol string) (float64, error) {
	conid, err := p.gateway.SearchContract(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return p.gateway.SnapshotPrice(ctx, conid)
}

// OptionChain reads one expiry's option chain. Chains always come from the
// fallback source; the gateway's secdef walk is too slow for the prefetch
// budget.
func (p *Provider) OptionChain(ctx context.Context, symbol, expiry string) (*OptionChain, error) {
	key := cache.OptionChainKey(symbol, expiry)
	var chain OptionChain
	if p.cacheGet(ctx, key, &chain) {
		return &chain, nil
	}

	fresh, err := p.quotes.OptionChain(ctx, symbol, expiry)
	if err != nil {
		return nil, err
	}
	p.cacheSet(ctx, key, fresh, cache.OptionChainTTL())
	return fresh, nil
}

func (p *Provider) cacheGet(ctx context.Context, key string, v any) bool {
	if p.rdb == nil {
		return false
	}
	data, err := p.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logx.WithContext(ctx).Slowf("market: cache get %s: %v", key, err)
		}
		return false
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		logx.WithContext(ctx).Slowf("market: cache decode %s: %v", key, err)
		return false
	}
	return true
}

func (p *Provider) cacheSet(ctx context.Context, key string, v any, ttl time.Duration) {
	if p.rdb == nil || ttl <= 0 {
		return
	}
	data, err := msgpack.Marshal(v)
	if err != nil {
		logx.WithContext(ctx).Slowf("market: cache encode %s: %v", key, err)
		return
	}
	if err := p.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		logx.WithContext(ctx).Slowf("market: cache set %s: %v", key, err)
	}
}

// NearStrikes trims a chain to the rows closest to the target strike, keeping
// the prompt slice small.
func NearStrikes(quotes []OptionQuote, target float64, count int) []OptionQuote {
	if count <= 0 || len(quotes) <= count {
		return quotes
	}

	best := 0
	for i := range quotes {
		if diff(quotes[i].Strike, target) < diff(quotes[best].Strike, target) {
			best = i
		}
	}

	lo, hi := best, best+1
	for hi-lo < count {
		switch {
		case lo == 0:
			hi++
		case hi == len(quotes):
			lo--
		case diff(quotes[lo-1].Strike, target) <= diff(quotes[hi].Strike, target):
			lo--
		default:
			hi++
		}
	}
	return quotes[lo:hi]
}

func diff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
