package events

import "sync"

// Cell holds a single value. Every Set is pushed to all subscribers; a slow
// subscriber only ever sees the newest value, never a backlog.
type Cell[T any] struct {
	mu    sync.RWMutex
	value T
	subs  map[uint64]chan T
	next  uint64
}

func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{value: initial, subs: make(map[uint64]chan T)}
}

func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.notify()
}

// Update replaces the value with fn(current) under the cell lock and returns it.
func (c *Cell[T]) Update(fn func(T) T) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = fn(c.value)
	c.notify()
	return c.value
}

// Subscribe returns a channel receiving every later value and a cancel func
// that closes it.
func (c *Cell[T]) Subscribe() (<-chan T, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.next
	c.next++
	ch := make(chan T, 1)
	c.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// notify must be called with c.mu held.
func (c *Cell[T]) notify() {
	for _, ch := range c.subs {
		select {
		case ch <- c.value:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- c.value:
			default:
			}
		}
	}
}
