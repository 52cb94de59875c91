package block

import (
	"github.com/jacobsa/syncutil"
)

// cacheSize is the number of blocks pinned in memory at once. Small on
// purpose — this is a teaching cache, not a production page cache.
const cacheSize = 16

// slot is one cached block. Reads and modifications of a slot are
// serialized by its own InvariantMutex, so one block's I/O never blocks
// another's.
type slot struct {
	mu syncutil.InvariantMutex

	id       ID   // GUARDED_BY(mu)
	valid    bool // GUARDED_BY(mu)
	dirty    bool // GUARDED_BY(mu)
	data     Bytes
	lastUsed uint64 // GUARDED_BY(mu); logical clock for LRU eviction
}

func (s *slot) checkInvariants() {
	if !s.valid && s.dirty {
		panic("block.slot: dirty but not valid")
	}
}

// Cache pins a small LRU-style set of fixed-size disk blocks in memory,
// serializing access to each slot; slots are reused rather than reallocated
// per request.
type Cache struct {
	dev Device

	mu    syncutil.InvariantMutex // guards slots/tick only
	slots []*slot                 // GUARDED_BY(mu)
	tick  uint64                  // GUARDED_BY(mu)
}

// NewCache wraps dev with a block cache.
func NewCache(dev Device) *Cache {
	c := &Cache{dev: dev}
	c.mu = syncutil.NewInvariantMutex(c.checkInvariants)

	c.slots = make([]*slot, cacheSize)
	for i := range c.slots {
		s := &slot{}
		s.mu = syncutil.NewInvariantMutex(s.checkInvariants)
		c.slots[i] = s
	}

	return c
}

func (c *Cache) checkInvariants() {
	if len(c.slots) != cacheSize {
		panic("block.Cache: wrong slot count")
	}
}

// acquire returns the slot currently (or about to be) holding id, evicting
// and flushing the least-recently-used slot if id isn't already resident.
// The returned slot is returned unlocked; callers lock it themselves so that
// read vs. modify access can hold the lock for exactly as long as needed.
func (c *Cache) acquire(id ID) (*slot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick++
	now := c.tick

	var free *slot
	var lru *slot
	for _, s := range c.slots {
		s.mu.Lock()
		if s.valid && s.id == id {
			s.lastUsed = now
			s.mu.Unlock()
			return s, nil
		}
		if !s.valid && free == nil {
			free = s
		}
		if lru == nil || s.lastUsed < lru.lastUsed {
			lru = s
		}
		s.mu.Unlock()
	}

	target := free
	if target == nil {
		target = lru
	}

	target.mu.Lock()
	defer target.mu.Unlock()

	if target.valid && target.dirty {
		if err := c.dev.WriteBlock(target.id, &target.data); err != nil {
			return nil, err
		}
	}

	var data Bytes
	if err := c.dev.ReadBlock(id, &data); err != nil {
		return nil, err
	}

	target.id = id
	target.data = data
	target.valid = true
	target.dirty = false
	target.lastUsed = now

	return target, nil
}

// Read calls f with the current contents of block id. f must not retain buf
// past the call.
func (c *Cache) Read(id ID, f func(buf *Bytes)) error {
	s, err := c.acquire(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f(&s.data)
	return nil
}

// Modify calls f with a mutable view of block id's contents, marking the
// slot dirty so it's flushed back on eviction or SyncAll.
func (c *Cache) Modify(id ID, f func(buf *Bytes)) error {
	s, err := c.acquire(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f(&s.data)
	s.dirty = true
	return nil
}

// SyncAll flushes every dirty slot to the device.
func (c *Cache) SyncAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.slots {
		s.mu.Lock()
		if s.valid && s.dirty {
			if err := c.dev.WriteBlock(s.id, &s.data); err != nil {
				s.mu.Unlock()
				return err
			}
			s.dirty = false
		}
		s.mu.Unlock()
	}
	return nil
}
