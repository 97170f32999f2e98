// Package cache holds the read-side cache for branch price lists. The POS
// terminals poll prices aggressively, so price reads go through here while
// every price write invalidates the product's entry.
package cache

import (
	"context"
	"fmt"
	"time"

	"servivent/backend/internal/domain"
)

// DefaultPriceTTL bounds staleness when an invalidation is lost.
const DefaultPriceTTL = 5 * time.Minute

type PriceCache interface {
	Get(ctx context.Context, productID int64) ([]domain.BranchPrice, bool, error)
	Set(ctx context.Context, productID int64, prices []domain.BranchPrice, ttl time.Duration) error
	Invalidate(ctx context.Context, productID int64) error
}

func priceKey(productID int64) string {
	return fmt.Sprintf("precios:producto:%d", productID)
}

type NoopPriceCache struct{}

func (NoopPriceCache) Get(_ context.Context, _ int64) ([]domain.BranchPrice, bool, error) {
	return nil, false, nil
}

func (NoopPriceCache) Set(_ context.Context, _ int64, _ []domain.BranchPrice, _ time.Duration) error {
	return nil
}

func (NoopPriceCache) Invalidate(_ context.Context, _ int64) error {
	return nil
}
