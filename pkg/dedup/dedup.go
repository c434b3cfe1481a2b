package dedup

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	id       string
	expireAt time.Time
}

// Cache remembers ids that have already been processed. With zero capacity
// and zero ttl it grows for the life of the process; otherwise it evicts the
// least recently marked id past capacity and forgets ids older than ttl.
type Cache struct {
	mu   sync.Mutex
	data map[string]*list.Element
	ll   *list.List
	cap  int
	ttl  time.Duration
	now  func() time.Time
}

func New(capacity int, ttl time.Duration) *Cache {
	return &Cache{
		data: make(map[string]*list.Element),
		ll:   list.New(),
		cap:  capacity,
		ttl:  ttl,
		now:  time.Now,
	}
}

// Mark records id and reports whether it was not already present.
func (c *Cache) Mark(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.data[id]; ok {
		if !c.expired(el.Value.(*entry)) {
			return false
		}
		c.removeElement(el)
	}

	e := &entry{id: id}
	if c.ttl > 0 {
		e.expireAt = c.now().Add(c.ttl)
	}
	c.data[id] = c.ll.PushFront(e)
	c.evictIfNeeded()
	return true
}

// Seen reports whether id is present without recording it.
func (c *Cache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.data[id]
	if !ok {
		return false
	}
	if c.expired(el.Value.(*entry)) {
		c.removeElement(el)
		return false
	}
	return true
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

func (c *Cache) expired(e *entry) bool {
	return !e.expireAt.IsZero() && c.now().After(e.expireAt)
}

func (c *Cache) evictIfNeeded() {
	for c.cap > 0 && c.ll.Len() > c.cap {
		c.removeElement(c.ll.Back())
	}
}

func (c *Cache) removeElement(el *list.Element) {
	e := el.Value.(*entry)
	delete(c.data, e.id)
	c.ll.Remove(el)
}
