package events

import "sync"

// Feed delivers every published value to each subscriber, in publish order.
// Publish never blocks: a subscriber that is not reading accumulates a
// backlog that is handed over as it catches up.
type Feed[T any] struct {
	mu   sync.Mutex
	subs map[uint64]*feedSub[T]
	next uint64
}

type feedSub[T any] struct {
	mu      sync.Mutex
	pending []T
	wake    chan struct{}
	out     chan T
	done    chan struct{}
}

func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[uint64]*feedSub[T])}
}

func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		sub.push(v)
	}
}

// Subscribe returns a channel receiving every later value and a cancel func.
// The channel is closed after cancel; undelivered values are dropped.
func (f *Feed[T]) Subscribe() (<-chan T, func()) {
	sub := &feedSub[T]{
		wake: make(chan struct{}, 1),
		out:  make(chan T),
		done: make(chan struct{}),
	}

	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = sub
	f.mu.Unlock()

	go sub.run()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(sub.done)
		})
	}
	return sub.out, cancel
}

func (s *feedSub[T]) push(v T) {
	s.mu.Lock()
	s.pending = append(s.pending, v)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *feedSub[T]) run() {
	defer close(s.out)

	var zero T
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		v := s.pending[0]
		s.pending[0] = zero
		s.pending = s.pending[1:]
		s.mu.Unlock()

		select {
		case s.out <- v:
		case <-s.done:
			return
		}
	}
}
