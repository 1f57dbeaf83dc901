package aprsis

import (
	"sync"
	"time"

	"github.com/chrissnell/wxrelay/pkg/aprs"
)

// State is the connection state of a Client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateLoggedIn
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateLoggedIn:
		return "logged-in"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// EventType identifies a lifecycle event.
type EventType int

const (
	EventConnect EventType = iota
	EventError
	EventEnd
	EventClose
	EventReconnect
	EventData
)

func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "connect"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	case EventClose:
		return "close"
	case EventReconnect:
		return "reconnect"
	case EventData:
		return "data"
	default:
		return "unknown"
	}
}

// Event is emitted by a Client on its event stream.
type Event struct {
	Type    EventType
	Session string
	Time    time.Time
	Packet  aprs.Packet // EventData only
	Err     error       // EventError only
}

// eventQueue is an unbounded FIFO feeding a channel, so emitting never
// blocks the socket reader or a caller holding the client lock.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Event
	closed bool
	out    chan Event
	done   chan struct{}
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		out:  make(chan Event),
		done: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.pump()
	return q
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.items = append(q.items, ev)
	q.cond.Signal()
}

func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
	q.cond.Broadcast()
}

func (q *eventQueue) pump() {
	defer close(q.out)

	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.items = nil
			q.mu.Unlock()
			return
		}
		ev := q.items[0]
		q.items[0] = Event{}
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- ev:
		case <-q.done:
			return
		}
	}
}
