package perfload

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/elastic/go-freelru"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize is the number of results a Loader keeps by default.
const DefaultCacheSize = 64

// Loader loads capture files and caches their results. A file is loaded
// again once its size or modification time changes. Concurrent loads of the
// same unchanged file share one decode.
type Loader struct {
	g     singleflight.Group
	opts  Options
	cache *freelru.SyncedLRU[string, *Result]
	load  func(ctx context.Context, path string, opts Options) (*Result, error)
}

// NewLoader returns a Loader caching up to capacity results. A capacity of
// zero selects DefaultCacheSize.
func NewLoader(capacity uint32, opts Options) (*Loader, error) {
	if capacity == 0 {
		capacity = DefaultCacheSize
	}
	cache, err := freelru.NewSynced[string, *Result](capacity, hashKeyString)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}
	return &Loader{
		opts:  opts,
		cache: cache,
		load:  Load,
	}, nil
}

func hashKeyString(s string) uint32 {
	return uint32(xxh3.HashString(s))
}

func cacheKey(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat capture file at %s: %w", path, err)
	}
	return fmt.Sprintf("%s\x00%d\x00%d", path, fi.Size(), fi.ModTime().UnixNano()), nil
}

// Load returns the result for the capture file at path.
func (l *Loader) Load(ctx context.Context, path string) (*Result, error) {
	key, err := cacheKey(path)
	if err != nil {
		return nil, err
	}
	if res, ok := l.cache.Get(key); ok {
		return res, nil
	}
	for {
		var called bool
		ri, err, _ := l.g.Do(key, func() (interface{}, error) {
			called = true
			if res, ok := l.cache.Get(key); ok {
				return res, nil
			}
			res, err := l.load(ctx, path, l.opts)
			if err != nil {
				return nil, err
			}
			l.cache.Add(key, res)
			return res, nil
		})
		// A load cancelled by another caller's context is retried with ours.
		retry := err != nil &&
			!called &&
			ctx.Err() == nil &&
			(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
		if retry {
			continue
		}
		if err != nil {
			return nil, err
		}
		return ri.(*Result), nil
	}
}

// Len returns the number of cached results.
func (l *Loader) Len() int {
	return l.cache.Len()
}
