package queue

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tsaubergine/goby3/pkg/modem"
)

// ErrFull is returned by Push when the queue is at capacity.
var ErrFull = errors.New("queue: at capacity")

// QueuedMessage is one pending outbound message: the caller's structured
// message (shared, so the caller may still log or display it) alongside its
// pre-encoded wire bytes and enqueue timestamp.
type QueuedMessage struct {
	Encoded    modem.Message
	Source     any
	EnqueuedAt time.Time
}

// Queue is the FIFO store of pending messages for one (class, id). It never
// reorders internally; selection across queues happens in the Manager.
type Queue struct {
	cfg Config
	log *zap.Logger
	now func() time.Time

	lastSend time.Time
	messages []*QueuedMessage
	// frame number -> messages sent in that frame, awaiting acknowledgment.
	// Entries still count toward Size; they are skipped by nextMessage.
	waitingForAck map[uint32][]*QueuedMessage
}

// NewQueue applies configuration defaults and returns an empty queue.
func NewQueue(cfg Config, log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Weight == 0 {
		cfg.Weight = DefaultWeight
	}
	return &Queue{
		cfg:           cfg,
		log:           log,
		now:           time.Now,
		waitingForAck: make(map[uint32][]*QueuedMessage),
	}
}

// Cfg returns the queue's configuration.
func (q *Queue) Cfg() Config { return q.cfg }

// Size returns the count of messages currently owned, ack-pending included.
func (q *Queue) Size() int { return len(q.messages) }

// LastSendTime returns when this queue last contributed data to a frame.
func (q *Queue) LastSendTime() time.Time { return q.lastSend }

// NewestMessageTime returns the enqueue time of the most recent message, or
// the zero time if the queue is empty.
func (q *Queue) NewestMessageTime() time.Time {
	if len(q.messages) == 0 {
		return time.Time{}
	}
	return q.messages[len(q.messages)-1].EnqueuedAt
}

// Push appends an encoded message (optionally with its structured source) at
// the tail with the current time as the enqueue timestamp.
func (q *Queue) Push(encoded modem.Message, source any) error {
	if q.cfg.MaxQueue > 0 && len(q.messages) >= q.cfg.MaxQueue {
		return ErrFull
	}
	if q.cfg.Ack {
		encoded.Ack = true
	}
	qm := &QueuedMessage{Encoded: encoded, Source: source, EnqueuedAt: q.now()}
	q.messages = append(q.messages, qm)
	q.log.Debug("push",
		zap.String("queue", q.cfg.displayName()),
		zap.Int("size", len(q.messages)))
	return nil
}

// nextMessage returns the head of the queue, skipping messages already sent
// and awaiting acknowledgment.
func (q *Queue) nextMessage() *QueuedMessage {
	for _, m := range q.messages {
		if !q.ackPending(m) {
			return m
		}
	}
	return nil
}

func (q *Queue) ackPending(m *QueuedMessage) bool {
	for _, pending := range q.waitingForAck {
		for _, p := range pending {
			if p == m {
				return true
			}
		}
	}
	return false
}

// PriorityValue runs this queue's side of the priority contest. It reports
// no contest (ok false) when the queue has nothing sendable, is inside its
// blackout interval, or its next message does not fit the remaining frame
// capacity. Otherwise the score grows with message age and the configured
// weight, normalized by TTL.
func (q *Queue) PriorityValue(req modem.TransmitRequest) (priority float64, lastSend time.Time, ok bool) {
	next := q.nextMessage()
	if next == nil {
		return 0, q.lastSend, false
	}
	now := q.now()
	if !q.lastSend.IsZero() && now.Before(q.lastSend.Add(q.cfg.Blackout)) {
		return 0, q.lastSend, false
	}
	if next.Encoded.Size() > req.MaxBytes {
		return 0, q.lastSend, false
	}
	// a frame addressed to one node carries only pieces for that node or
	// for everyone
	if req.Dest != modem.BroadcastID && next.Encoded.Dest != modem.BroadcastID &&
		next.Encoded.Dest != req.Dest {
		return 0, q.lastSend, false
	}
	since := q.lastSend
	if since.IsZero() {
		since = next.EnqueuedAt
	}
	age := now.Sub(since).Seconds()
	priority = q.cfg.Weight * age / q.cfg.TTL.Seconds()
	return priority, q.lastSend, true
}

// GiveData returns the next message's wire form for inclusion in the named
// frame. It does not mutate the queue; the manager commits the placement
// with Pop or MarkAckPending once the piece is actually used.
func (q *Queue) GiveData(frame uint32) (modem.Message, bool) {
	next := q.nextMessage()
	if next == nil {
		return modem.Message{}, false
	}
	out := next.Encoded
	out.Frame = frame
	return out, true
}

// NextDest returns the destination of the next sendable message.
func (q *Queue) NextDest() (int, bool) {
	next := q.nextMessage()
	if next == nil {
		return 0, false
	}
	return next.Encoded.Dest, true
}

// Pop removes the head message once it has been placed on the wire with no
// acknowledgment required.
func (q *Queue) Pop(frame uint32) bool {
	next := q.nextMessage()
	if next == nil {
		return false
	}
	q.remove(next)
	q.lastSend = q.now()
	q.log.Debug("pop",
		zap.String("queue", q.cfg.displayName()),
		zap.Uint32("frame", frame),
		zap.Int("size", len(q.messages)))
	return true
}

// MarkAckPending records that the head message was placed in the named frame
// and must be retained until acknowledged.
func (q *Queue) MarkAckPending(frame uint32) bool {
	next := q.nextMessage()
	if next == nil {
		return false
	}
	q.waitingForAck[frame] = append(q.waitingForAck[frame], next)
	q.lastSend = q.now()
	return true
}

// PopAck removes and returns a message sent in the named frame because its
// acknowledgment arrived. Removal from the pending set and from the queue is
// atomic: there is no state where one structure holds the message and the
// other does not.
func (q *Queue) PopAck(frame uint32) (*QueuedMessage, bool) {
	pending := q.waitingForAck[frame]
	if len(pending) == 0 {
		return nil, false
	}
	m := pending[0]
	if len(pending) == 1 {
		delete(q.waitingForAck, frame)
	} else {
		q.waitingForAck[frame] = pending[1:]
	}
	q.remove(m)
	return m, true
}

// Expire removes and returns every pending message whose TTL has elapsed
// without a send. Ack-pending entries for expired messages are dropped too.
func (q *Queue) Expire() []*QueuedMessage {
	now := q.now()
	var expired []*QueuedMessage
	kept := q.messages[:0]
	for _, m := range q.messages {
		if now.After(m.EnqueuedAt.Add(q.cfg.TTL)) {
			expired = append(expired, m)
			q.dropAckEntries(m)
		} else {
			kept = append(kept, m)
		}
	}
	q.messages = kept
	if len(expired) > 0 {
		q.log.Debug("expired messages",
			zap.String("queue", q.cfg.displayName()),
			zap.Int("count", len(expired)))
	}
	return expired
}

// ClearAckState drops all in-flight acknowledgment bookkeeping, used when a
// packet is discarded or restarted.
func (q *Queue) ClearAckState() {
	q.waitingForAck = make(map[uint32][]*QueuedMessage)
}

// Flush discards every pending message.
func (q *Queue) Flush() {
	q.messages = nil
	q.ClearAckState()
}

func (q *Queue) remove(target *QueuedMessage) {
	for i, m := range q.messages {
		if m == target {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return
		}
	}
}

func (q *Queue) dropAckEntries(target *QueuedMessage) {
	for frame, pending := range q.waitingForAck {
		kept := pending[:0]
		for _, p := range pending {
			if p != target {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			delete(q.waitingForAck, frame)
		} else {
			q.waitingForAck[frame] = kept
		}
	}
}
