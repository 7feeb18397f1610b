package prompts

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultCacheSize = 64
	defaultCacheTTL  = 5 * time.Minute
)

// CachedSource memoizes successful lookups for ttl. Failures are not cached.
type CachedSource struct {
	inner Source
	cache *expirable.LRU[string, *Template]
}

// NewCachedSource wraps inner with an expiring LRU cache.
func NewCachedSource(inner Source, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedSource{
		inner: inner,
		cache: expirable.NewLRU[string, *Template](defaultCacheSize, nil, ttl),
	}
}

func (s *CachedSource) GetTemplate(ctx context.Context, name, label string) (*Template, error) {
	key := name + "@" + normalizeLabel(label)
	if tmpl, ok := s.cache.Get(key); ok {
		return tmpl, nil
	}
	tmpl, err := s.inner.GetTemplate(ctx, name, label)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, tmpl)
	return tmpl, nil
}
