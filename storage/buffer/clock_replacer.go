// this code is adapted from https://github.com/ryogrid/SamehadaDB lib/storage/buffer/clock_replacer.go
// there is license and copyright notice in licenses/go-bustub dir

package buffer

import "sync"

// FrameID indexes a frame slot in the buffer pool.
type FrameID uint32

// clockReplacer implements the clock (second-chance) replacement policy.
type clockReplacer struct {
	mutex     sync.Mutex
	inClock   map[FrameID]bool // frame -> reference bit
	order     []FrameID        // insertion order, doubles as the clock ring
	hand      int
}

func newClockReplacer(poolSize uint32) *clockReplacer {
	return &clockReplacer{
		inClock: make(map[FrameID]bool, poolSize),
		order:   make([]FrameID, 0, poolSize),
	}
}

// Unpin marks a frame victimizable once its pin count drops to zero.
func (c *clockReplacer) Unpin(id FrameID) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if _, ok := c.inClock[id]; ok {
		return
	}
	c.inClock[id] = true
	c.order = append(c.order, id)
}

// Pin removes a frame from victim consideration.
func (c *clockReplacer) Pin(id FrameID) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if _, ok := c.inClock[id]; !ok {
		return
	}
	delete(c.inClock, id)
	for i, f := range c.order {
		if f == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			if c.hand > i {
				c.hand--
			}
			break
		}
	}
}

// Victim sweeps the clock hand, giving every frame with a set reference bit
// a second chance, and evicts the first frame whose bit is already clear.
func (c *clockReplacer) Victim() (FrameID, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if len(c.order) == 0 {
		return 0, false
	}
	for {
		if c.hand >= len(c.order) {
			c.hand = 0
		}
		id := c.order[c.hand]
		if c.inClock[id] {
			c.inClock[id] = false
			c.hand++
			continue
		}
		c.order = append(c.order[:c.hand], c.order[c.hand+1:]...)
		delete(c.inClock, id)
		if c.hand >= len(c.order) {
			c.hand = 0
		}
		return id, true
	}
}

func (c *clockReplacer) Size() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.order)
}
