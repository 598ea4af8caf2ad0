package local

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"
)

// ErrNotFound is returned when a key or member does not exist.
var ErrNotFound = errors.New("cache: key not found")

// Config holds LocalCache settings.
type Config struct {
	GCInterval time.Duration
}

type value struct {
	data     string
	expireAt time.Time // zero means no expiry
}

func (v value) expired(now time.Time) bool {
	return !v.expireAt.IsZero() && now.After(v.expireAt)
}

// LocalCache is an in-process stand-in for Redis, used when no Redis
// address is configured. All structures share one lock.
type LocalCache struct {
	mu     sync.Mutex
	kv     map[string]value
	hashes map[string]map[string]string
	zsets  map[string]map[string]float64
	lists  map[string][]string

	stop     chan struct{}
	stopOnce sync.Once
}

// NewCache creates a LocalCache and starts expiring keys in the background.
func NewCache(cfg Config) (*LocalCache, error) {
	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c := &LocalCache{
		kv:     map[string]value{},
		hashes: map[string]map[string]string{},
		zsets:  map[string]map[string]float64{},
		lists:  map[string][]string{},
		stop:   make(chan struct{}),
	}
	go c.gc(interval)
	return c, nil
}

// Close stops the expiry goroutine.
func (c *LocalCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *LocalCache) gc(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case now := <-t.C:
			c.mu.Lock()
			for k, v := range c.kv {
				if v.expired(now) {
					delete(c.kv, k)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

func (c *LocalCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.kv[key]
	if !ok || v.expired(time.Now()) {
		delete(c.kv, key)
		return "", ErrNotFound
	}
	return v.data, nil
}

func (c *LocalCache) Set(_ context.Context, key, data string, ttl time.Duration) error {
	c.mu.Lock()
	c.kv[key] = value{data: data, expireAt: expiry(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) SetNX(_ context.Context, key, data string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.kv[key]; ok && !v.expired(time.Now()) {
		return false, nil
	}
	c.kv[key] = value{data: data, expireAt: expiry(ttl)}
	return true, nil
}

func (c *LocalCache) HIncrBy(_ context.Context, key, field string, incr int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.hashes[key]
	if !ok {
		h = map[string]string{}
		c.hashes[key] = h
	}
	var n int64
	if cur, ok := h[field]; ok {
		var err error
		if n, err = strconv.ParseInt(cur, 10, 64); err != nil {
			return 0, err
		}
	}
	n += incr
	h[field] = strconv.FormatInt(n, 10)
	return n, nil
}

func (c *LocalCache) HGetAll(_ context.Context, key string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.hashes[key]))
	for f, v := range c.hashes[key] {
		out[f] = v
	}
	return out, nil
}

func (c *LocalCache) ZAdd(_ context.Context, key string, score float64, member string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	z, ok := c.zsets[key]
	if !ok {
		z = map[string]float64{}
		c.zsets[key] = z
	}
	z[member] = score
	return nil
}

// ZRevRange orders by score descending, ties by member descending like Redis.
func (c *LocalCache) ZRevRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	c.mu.Lock()
	z := c.zsets[key]
	members := make([]string, 0, len(z))
	for m := range z {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		if z[members[i]] != z[members[j]] {
			return z[members[i]] > z[members[j]]
		}
		return members[i] > members[j]
	})
	c.mu.Unlock()
	return window(members, start, stop), nil
}

func (c *LocalCache) ZScore(_ context.Context, key, member string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.zsets[key][member]
	if !ok {
		return 0, ErrNotFound
	}
	return s, nil
}

// LPush prepends values one by one, so the last value ends up first.
func (c *LocalCache) LPush(_ context.Context, key string, values ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.lists[key]
	head := make([]string, 0, len(values)+len(l))
	for i := len(values) - 1; i >= 0; i-- {
		head = append(head, values[i])
	}
	c.lists[key] = append(head, l...)
	return nil
}

func (c *LocalCache) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return window(c.lists[key], start, stop), nil
}

func (c *LocalCache) LTrim(_ context.Context, key string, start, stop int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[key] = window(c.lists[key], start, stop)
	return nil
}

// window copies s[start..stop] with Redis index rules; negative stop
// counts from the end.
func window(s []string, start, stop int64) []string {
	n := int64(len(s))
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return nil
	}
	out := make([]string, stop-start+1)
	copy(out, s[start:stop+1])
	return out
}
