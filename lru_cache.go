package ldclient

import (
	"container/list"
)

// lruCache is a bounded set of strings with least-recently-used eviction,
// used to deduplicate user keys for index events. It is used only from the
// event dispatcher goroutine, so it requires no locking of its own.
type lruCache struct {
	values   map[string]*list.Element
	lruList  *list.List
	capacity int
}

func newLruCache(capacity int) lruCache {
	return lruCache{
		values:   make(map[string]*list.Element),
		lruList:  list.New(),
		capacity: capacity,
	}
}

// clear empties the cache, so all values become new again.
func (c *lruCache) clear() {
	c.values = make(map[string]*list.Element)
	c.lruList.Init()
}

// add attempts to add a value to the cache. It returns true if the value was
// already there, or false if it was newly added, in which case the
// least-recently-used value may have been discarded to stay within capacity.
func (c *lruCache) add(value string) bool {
	if c.capacity == 0 {
		return false
	}
	if element, ok := c.values[value]; ok {
		c.lruList.MoveToFront(element)
		return true
	}
	for c.lruList.Len() >= c.capacity {
		oldest := c.lruList.Back()
		delete(c.values, oldest.Value.(string))
		c.lruList.Remove(oldest)
	}
	c.values[value] = c.lruList.PushFront(value)
	return false
}
