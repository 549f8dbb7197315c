package http

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"wastewater/internal/cache"
	"wastewater/internal/core"
	"wastewater/internal/storage"
)

const datasetKey = "dataset"

// datasetLoader serves the persisted dataset through a short-lived cache.
// Concurrent misses share a single store read.
type datasetLoader struct {
	store storage.Loader
	cache *cache.LRUCache[core.Dataset]
	group singleflight.Group
}

func newDatasetLoader(store storage.Loader, ttl time.Duration) *datasetLoader {
	return &datasetLoader{
		store: store,
		cache: cache.NewLRUCache[core.Dataset](1, ttl),
	}
}

func (l *datasetLoader) Get(ctx context.Context) (core.Dataset, error) {
	if ds, ok := l.cache.Get(datasetKey); ok {
		return ds, nil
	}

	v, err, _ := l.group.Do(datasetKey, func() (any, error) {
		ds, err := l.store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load dataset: %w", err)
		}
		l.cache.Set(datasetKey, ds)
		return ds, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(core.Dataset), nil
}

// Invalidate drops the cached dataset so the next read hits the store.
func (l *datasetLoader) Invalidate() {
	l.cache.Purge()
}
