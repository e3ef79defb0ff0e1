package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"chainpay/internal/domain"
	"chainpay/pkg/cache"
	"chainpay/pkg/logger"
)

// BalanceSource fetches the live spendable balance of an address.
type BalanceSource interface {
	FetchBalance(ctx context.Context, chain domain.Chain, network domain.Network, address string) (decimal.Decimal, error)
}

// SimulatedBalanceSource reports a fixed balance for every address. Suitable
// for testnets and local development where no node connection exists.
type SimulatedBalanceSource struct {
	balance decimal.Decimal
}

func NewSimulatedBalanceSource(balance decimal.Decimal) *SimulatedBalanceSource {
	return &SimulatedBalanceSource{balance: balance}
}

func (s *SimulatedBalanceSource) FetchBalance(ctx context.Context, chain domain.Chain, network domain.Network, address string) (decimal.Decimal, error) {
	if address == "" {
		return decimal.Zero, fmt.Errorf("address is required")
	}
	return s.balance, nil
}

// CachedBalanceProvider fronts a BalanceSource with a short-lived Redis
// cache so repeated sends within the TTL do not re-query the chain.
type CachedBalanceProvider struct {
	source BalanceSource
	cache  *cache.RedisCache
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedBalanceProvider(source BalanceSource, c *cache.RedisCache, ttl time.Duration, log logger.Logger) *CachedBalanceProvider {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &CachedBalanceProvider{
		source: source,
		cache:  c,
		ttl:    ttl,
		logger: log,
	}
}

func (p *CachedBalanceProvider) Balance(ctx context.Context, chain domain.Chain, network domain.Network, address string) (decimal.Decimal, error) {
	key := balanceKey(chain, network, address)

	if p.cache != nil {
		var cached string
		err := p.cache.Get(ctx, key, &cached)
		if err == nil {
			if bal, perr := decimal.NewFromString(cached); perr == nil {
				return bal, nil
			}
		} else if err != redis.Nil {
			p.logger.Warn("balance cache read failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}

	bal, err := p.source.FetchBalance(ctx, chain, network, address)
	if err != nil {
		return decimal.Zero, err
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, key, bal.String(), p.ttl); err != nil {
			p.logger.Warn("balance cache write failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}
	return bal, nil
}

// Invalidate drops the cached balance for an address, called after a send
// so the next read reflects the spend.
func (p *CachedBalanceProvider) Invalidate(ctx context.Context, chain domain.Chain, network domain.Network, address string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Delete(ctx, balanceKey(chain, network, address)); err != nil {
		p.logger.Warn("balance cache invalidation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func balanceKey(chain domain.Chain, network domain.Network, address string) string {
	return fmt.Sprintf("balance:%s:%s:%s", chain, network, address)
}
