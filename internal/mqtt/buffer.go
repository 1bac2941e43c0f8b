package mqtt

// class ranks buffered messages for eviction. Lower classes go first.
type class int

const (
	classSystem class = iota // lifecycle and heartbeat events
	classState               // per-cycle machine states
	classAlarm               // alarm transitions

	numClasses
)

func (c class) String() string {
	switch c {
	case classSystem:
		return "system"
	case classState:
		return "state"
	case classAlarm:
		return "alarm"
	}
	return "unknown"
}

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
	class    class
}

// backlog holds the QoS 1 messages published while the broker is
// unreachable, in publish order. When full, the oldest message of the
// lowest class present is evicted, so alarm transitions are the last to go.
// Not safe for concurrent use; caller must synchronize.
type backlog struct {
	msgs     []bufferedMsg
	limit    int
	overflow bool // true if any message was dropped since last drain
	dropped  [numClasses]int
}

func newBacklog(limit int) *backlog {
	if limit < 1 {
		limit = 1
	}
	return &backlog{msgs: make([]bufferedMsg, 0, limit), limit: limit}
}

// push queues msg. When the backlog is full it returns the message that was
// dropped to make room, which may be msg itself when everything queued
// outranks it, and whether this push started an overflow since the last
// drain.
func (b *backlog) push(msg bufferedMsg) (dropped *bufferedMsg, started bool) {
	if len(b.msgs) < b.limit {
		b.msgs = append(b.msgs, msg)
		return nil, false
	}

	started = !b.overflow
	b.overflow = true

	victim := -1
	for i, m := range b.msgs {
		if m.class > msg.class {
			continue
		}
		if victim < 0 || m.class < b.msgs[victim].class {
			victim = i
		}
	}
	if victim < 0 {
		b.dropped[msg.class]++
		return &msg, started
	}

	out := b.msgs[victim]
	b.dropped[out.class]++
	copy(b.msgs[victim:], b.msgs[victim+1:])
	b.msgs[len(b.msgs)-1] = msg
	return &out, started
}

// drain returns the queued messages oldest first and empties the backlog.
func (b *backlog) drain() []bufferedMsg {
	if len(b.msgs) == 0 {
		return nil
	}
	out := b.msgs
	b.msgs = make([]bufferedMsg, 0, b.limit)
	b.overflow = false
	return out
}

func (b *backlog) len() int {
	return len(b.msgs)
}
