package vault

import (
	"fmt"
	"sync"
)

// keyMutex hands out one mutex per holder. Entries are dropped once the
// last waiter releases them so the map stays bounded by in-flight holders.
type keyMutex struct {
	mutexes map[string]*cntMutex
	mapMtx  sync.Mutex
}

type cntMutex struct {
	cnt int
	sync.Mutex
}

func newKeyMutex() *keyMutex {
	return &keyMutex{mutexes: make(map[string]*cntMutex)}
}

// Lock blocks until the mutex for key is available
func (c *keyMutex) Lock(key string) {
	c.mapMtx.Lock()
	mtx, ok := c.mutexes[key]
	if ok {
		mtx.cnt++
	} else {
		mtx = &cntMutex{cnt: 1}
		c.mutexes[key] = mtx
	}
	c.mapMtx.Unlock()

	mtx.Lock()
}

// Unlock releases the mutex for key. Unlocking a key that is not locked
// panics.
func (c *keyMutex) Unlock(key string) {
	c.mapMtx.Lock()
	mtx, ok := c.mutexes[key]
	if !ok {
		c.mapMtx.Unlock()
		panic(fmt.Sprintf("double unlock for holder %q", key))
	}
	mtx.cnt--
	if mtx.cnt == 0 {
		delete(c.mutexes, key)
	}
	c.mapMtx.Unlock()

	mtx.Unlock()
}
