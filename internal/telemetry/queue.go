package telemetry

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sweeney/ventilator/internal/alarm"
	"github.com/sweeney/ventilator/internal/core"
)

type itemKind int

const (
	snapshotItem itemKind = iota
	stateItem
	alarmItem
)

type item struct {
	kind  itemKind
	snap  core.Snapshot
	state core.MachineState
	event alarm.Event
}

// Queue decouples the control loop from slow sinks. Publishing never
// blocks: when the queue is full the item is dropped and counted.
// Machine states and alarms are queued apart from snapshots and always
// delivered first.
type Queue struct {
	sink      Sink
	logger    *zap.Logger
	events    chan item
	snapshots chan item

	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewQueue creates a queue holding up to capacity snapshots and capacity
// events in front of sink. Call Run to start delivery.
func NewQueue(sink Sink, capacity int, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		sink:      sink,
		logger:    logger,
		events:    make(chan item, capacity),
		snapshots: make(chan item, capacity),
	}
}

func (q *Queue) PublishSnapshot(s core.Snapshot) error {
	q.offer(q.snapshots, item{kind: snapshotItem, snap: s})
	return nil
}

func (q *Queue) PublishMachineState(m core.MachineState) error {
	q.offer(q.events, item{kind: stateItem, state: m})
	return nil
}

func (q *Queue) PublishAlarm(e alarm.Event) error {
	q.offer(q.events, item{kind: alarmItem, event: e})
	return nil
}

func (q *Queue) offer(ch chan item, it item) {
	select {
	case ch <- it:
	default:
		if q.dropped.Add(1) == 1 {
			q.logger.Warn("telemetry queue full, dropping")
		}
	}
}

// Dropped returns the number of items discarded because the queue was full.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Failed returns the number of items the sink rejected.
func (q *Queue) Failed() uint64 { return q.failed.Load() }

// Run delivers queued items until ctx is done, then flushes what is
// already queued.
func (q *Queue) Run(ctx context.Context) {
	failing := false
	deliver := func(it item) {
		var err error
		switch it.kind {
		case snapshotItem:
			err = q.sink.PublishSnapshot(it.snap)
		case stateItem:
			err = q.sink.PublishMachineState(it.state)
		case alarmItem:
			err = q.sink.PublishAlarm(it.event)
		}
		if err != nil {
			q.failed.Add(1)
			if !failing {
				q.logger.Warn("telemetry publish failed", zap.Error(err))
				failing = true
			}
			return
		}
		if failing {
			q.logger.Info("telemetry publish recovered")
			failing = false
		}
	}

	for {
		select {
		case it := <-q.events:
			deliver(it)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			q.flush(deliver)
			return
		case it := <-q.events:
			deliver(it)
		case it := <-q.snapshots:
			deliver(it)
		}
	}
}

func (q *Queue) flush(deliver func(item)) {
	for {
		select {
		case it := <-q.events:
			deliver(it)
		case it := <-q.snapshots:
			deliver(it)
		default:
			return
		}
	}
}
