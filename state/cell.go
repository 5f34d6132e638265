package state

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Publisher forwards cell snapshots to an external stream.
type Publisher interface {
	Publish(cell string, data []byte) error
}

// Cell holds one published value. Writers replace the value wholesale so
// readers never see a partial update. Subscribers always receive the latest
// value, intermediate ones may be skipped.
type Cell[T any] struct {
	name string
	pub  Publisher

	mu    sync.RWMutex
	value T
	subs  map[int]chan T
	next  int
}

func NewCell[T any](name string, initial T, pub Publisher) *Cell[T] {
	return &Cell[T]{
		name:  name,
		pub:   pub,
		value: initial,
		subs:  make(map[int]chan T),
	}
}

func (c *Cell[T]) Name() string {
	return c.name
}

func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	c.value = v
	for _, ch := range c.subs {
		// drop the stale value if the subscriber has not read it yet
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
	c.mu.Unlock()

	c.publish(v)
}

// Update replaces the value with fn applied to the current one, atomically
// with respect to other writers.
func (c *Cell[T]) Update(fn func(T) T) T {
	c.mu.Lock()
	v := fn(c.value)
	c.value = v
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
	c.mu.Unlock()

	c.publish(v)
	return v
}

// Subscribe returns a channel primed with the current value and a function
// that cancels the subscription.
func (c *Cell[T]) Subscribe() (<-chan T, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan T, 1)
	ch <- c.value
	id := c.next
	c.next++
	c.subs[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
}

func (c *Cell[T]) publish(v T) {
	if c.pub == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		zap.L().Error("failed to marshal state cell", zap.String("cell", c.name), zap.Error(err))
		return
	}
	if err = c.pub.Publish(c.name, data); err != nil {
		zap.L().Warn("failed to publish state cell", zap.String("cell", c.name), zap.Error(err))
	}
}
