package choices

import (
	"context"
	"strconv"
	"time"

	"github.com/karlseguin/ccache/v2"

	"github.com/kirillkom/phase-edms/internal/core/domain"
	"github.com/kirillkom/phase-edms/internal/core/ports"
)

const defaultTTL = 10 * time.Minute

// Cache serves choice list values from an LRU in front of the repository.
// Saving an entry drops the cached list it belongs to.
type Cache struct {
	repo ports.ChoiceRepository
	lru  *ccache.Cache
	ttl  time.Duration
}

func NewCache(repo ports.ChoiceRepository, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{
		repo: repo,
		lru:  ccache.New(ccache.Configure().MaxSize(1000).ItemsToPrune(50)),
		ttl:  ttl,
	}
}

// Values returns the stored indexes of a list, in repository order.
func (c *Cache) Values(ctx context.Context, listIndex int) ([]string, error) {
	entries, err := c.Entries(ctx, listIndex)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Index)
	}
	return out, nil
}

func (c *Cache) Entries(ctx context.Context, listIndex int) ([]domain.ChoiceEntry, error) {
	key := cacheKey(listIndex)
	if item := c.lru.Get(key); item != nil && !item.Expired() {
		return item.Value().([]domain.ChoiceEntry), nil
	}

	entries, err := c.repo.ListByIndex(ctx, listIndex)
	if err != nil {
		return nil, err
	}
	c.lru.Set(key, entries, c.ttl)
	return entries, nil
}

func (c *Cache) Save(ctx context.Context, entry *domain.ChoiceEntry) error {
	if err := c.repo.Save(ctx, entry); err != nil {
		return err
	}
	c.lru.Delete(cacheKey(entry.ListIndex))
	return nil
}

func cacheKey(listIndex int) string {
	return "choices:" + strconv.Itoa(listIndex)
}

var _ ports.ChoiceSource = (*Cache)(nil)
