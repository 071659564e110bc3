package pclod

import "sync"

// defaultQueueCapacity is the channel size of each event queue. Posts that
// do not fit spill into an ordered overflow list.
const defaultQueueCapacity = 1024

// eventQueue carries work from one goroutine to the goroutine that pumps it.
// Post never blocks and Pump runs events in posting order.
type eventQueue struct {
	name string
	ch   chan func()

	mu       sync.Mutex
	overflow []func()
}

func newEventQueue(name string, capacity int) *eventQueue {
	return &eventQueue{
		name: name,
		ch:   make(chan func(), capacity),
	}
}

// Post queues fn for the consumer goroutine.
func (q *eventQueue) Post(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Once something spilled, later events must queue behind it.
	if len(q.overflow) > 0 {
		q.overflow = append(q.overflow, fn)
		return
	}
	select {
	case q.ch <- fn:
	default:
		q.overflow = append(q.overflow, fn)
	}
}

// Pump runs every event queued so far and returns how many ran. Events
// posted by the handlers themselves run on the next call.
func (q *eventQueue) Pump() int {
	q.mu.Lock()
	var batch []func()
	for {
		select {
		case fn := <-q.ch:
			batch = append(batch, fn)
			continue
		default:
		}
		break
	}
	batch = append(batch, q.overflow...)
	q.overflow = nil
	q.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
	return len(batch)
}

// Len returns the number of pending events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ch) + len(q.overflow)
}

// eventBus holds the two queues of the two-goroutine model.
type eventBus struct {
	toMain    *eventQueue
	toRefresh *eventQueue
}

func newEventBus() *eventBus {
	return &eventBus{
		toMain:    newEventQueue("main", defaultQueueCapacity),
		toRefresh: newEventQueue("refresh", defaultQueueCapacity),
	}
}

// drain pumps both queues until neither produces new work.
func (b *eventBus) drain() {
	for {
		n := b.toRefresh.Pump()
		n += b.toMain.Pump()
		if n == 0 && b.toRefresh.Len() == 0 && b.toMain.Len() == 0 {
			return
		}
	}
}
