package storage

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// BatchFetcher coordinates parallel reads from object storage. A table that
// spans many segment objects fetches them concurrently instead of one by
// one.
type BatchFetcher struct {
	storage     ObjectStorage
	concurrency int64
}

// FetchResult contains the outcome of a batch fetch.
type FetchResult struct {
	// Objects maps key to the object's bytes, for successful fetches.
	Objects map[string][]byte
	// ETags maps key to the etag seen at fetch time.
	ETags map[string]string
	// Errors maps key to the fetch error, for failed fetches.
	Errors map[string]error
}

// NewBatchFetcher creates a fetcher with the given parallelism.
func NewBatchFetcher(storage ObjectStorage, concurrency int) *BatchFetcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchFetcher{storage: storage, concurrency: int64(concurrency)}
}

// Fetch reads every key in parallel, bounded by the fetcher's concurrency.
// Individual failures land in the result's Errors map; only a cancelled
// context fails the whole call.
func (f *BatchFetcher) Fetch(ctx context.Context, keys []string) (*FetchResult, error) {
	result := &FetchResult{
		Objects: make(map[string][]byte, len(keys)),
		ETags:   make(map[string]string, len(keys)),
		Errors:  make(map[string]error),
	}
	if len(keys) == 0 {
		return result, nil
	}

	sem := semaphore.NewWeighted(f.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, key := range keys {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, err
		}

		wg.Add(1)
		go func(key string) {
			defer sem.Release(1)
			defer wg.Done()

			data, etag, err := f.storage.Get(ctx, key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[key] = err
				return
			}
			result.Objects[key] = data
			result.ETags[key] = etag
		}(key)
	}

	wg.Wait()
	return result, nil
}
