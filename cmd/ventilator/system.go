package main

import (
	"go.uber.org/zap"

	"github.com/sweeney/ventilator/internal/mqtt"
)

// systemQueue publishes system events from its own goroutine so a slow
// broker never holds up a tick. Events offered while it is full are
// dropped and counted.
type systemQueue struct {
	pub     systemPublisher
	logger  *zap.Logger
	events  chan mqtt.SystemEvent
	done    chan struct{}
	dropped int // offering goroutine only
}

func startSystemQueue(pub systemPublisher, capacity int, logger *zap.Logger) *systemQueue {
	if capacity < 1 {
		capacity = 1
	}
	q := &systemQueue{
		pub:    pub,
		logger: logger,
		events: make(chan mqtt.SystemEvent, capacity),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *systemQueue) run() {
	defer close(q.done)
	for e := range q.events {
		if err := q.pub.PublishSystem(e); err != nil {
			q.logger.Warn("system event publish error", zap.String("event", e.Event), zap.Error(err))
		}
	}
}

// offer queues e without blocking and reports whether it was accepted.
func (q *systemQueue) offer(e mqtt.SystemEvent) bool {
	select {
	case q.events <- e:
		return true
	default:
		q.dropped++
		return false
	}
}

// close stops accepting events and waits for the queued ones to go out.
func (q *systemQueue) close() {
	close(q.events)
	<-q.done
}
