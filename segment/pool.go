package segment

import (
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/go-forensics/ewfgo/errkind"
)

// DefaultOpenFDCapacity bounds how many segment files a reader keeps open
// at once, per spec §5's "bounded LRU of open segment file descriptors".
const DefaultOpenFDCapacity = 128

// Pool is a bounded, concurrency-safe cache of open *os.File handles,
// keyed by segment path. Eviction closes the handle being dropped.
type Pool struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *os.File]
}

// NewPool returns a Pool holding at most capacity open files. capacity <=
// 0 falls back to DefaultOpenFDCapacity.
func NewPool(capacity int) (*Pool, error) {
	if capacity <= 0 {
		capacity = DefaultOpenFDCapacity
	}
	p := &Pool{}
	c, err := lru.NewWithEvict[string, *os.File](capacity, func(_ string, f *os.File) {
		f.Close()
	})
	if err != nil {
		return nil, errkind.New(errkind.Resource, "segment.NewPool", err)
	}
	p.cache = c
	return p, nil
}

// Open returns the handle for path, opening it read-only if not already
// cached. The returned *os.File must not be closed by the caller; it
// remains owned by the pool until evicted or Close is called.
func (p *Pool) Open(path string) (*os.File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.cache.Get(path); ok {
		return f, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errkind.New(errkind.IO, "segment.Pool.Open", err)
	}
	p.cache.Add(path, f)
	return f, nil
}

// Remove evicts and closes path's handle, if open.
func (p *Pool) Remove(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Remove(path)
}

// Close evicts and closes every cached handle.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Purge()
	return nil
}
