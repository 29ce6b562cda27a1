package queue

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tsaubergine/goby3/pkg/modem"
)

// NoDestination is returned by RequestNextDestination when no queue can
// contribute data.
const NoDestination = -1

// onDemandSkew is how stale an on-demand queue's newest message may be
// before fresh data is requested at contest time.
const onDemandSkew = time.Second

// Callbacks are the typed observer hooks a Manager invokes. All are
// optional; nil callbacks are skipped.
type Callbacks struct {
	// Receive delivers a decoded incoming piece for a registered queue.
	Receive func(Key, modem.Message)
	// ReceiveCCL delivers a whole legacy-class frame.
	ReceiveCCL func(Key, modem.Message)
	// Ack delivers a message confirmed by acknowledgment.
	Ack func(Key, *QueuedMessage)
	// Expire delivers a message dropped after exceeding its TTL.
	Expire func(Key, *QueuedMessage)
	// OnDemand is asked to produce fresh data for an on-demand queue at
	// contest time.
	OnDemand func(Key, modem.TransmitRequest) (modem.Message, any, error)
	// QueueSize observes queue size changes after push/pop.
	QueueSize func(Key, int)
}

// Manager owns every queue on one acoustic link: it runs the priority
// contest on each transmission opportunity, stitches winners into outgoing
// frames, unstitches and routes incoming frames, and tracks which queues
// await acknowledgment per frame number.
//
// A Manager is single-threaded by contract: all entry points must be called
// from one goroutine (normally the modem driver's poll loop).
type Manager struct {
	modemID   int
	log       *zap.Logger
	callbacks Callbacks
	now       func() time.Time

	queues map[Key]*Queue
	order  []Key // deterministic contest iteration

	// frame number -> queues with a message in that frame awaiting ack
	waitingForAck map[uint32][]*Queue
	packetAck     bool
}

// NewManager returns a Manager for the node with the given modem id.
func NewManager(modemID int, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		modemID:       modemID,
		log:           log,
		now:           time.Now,
		queues:        make(map[Key]*Queue),
		waitingForAck: make(map[uint32][]*Queue),
	}
}

// SetCallbacks installs the observer hooks. Call before the driver starts.
func (m *Manager) SetCallbacks(cb Callbacks) { m.callbacks = cb }

// ModemID returns this node's link-layer address.
func (m *Manager) ModemID() int { return m.modemID }

// AddQueue registers a queue. Duplicate keys and out-of-range DCCL ids are
// configuration errors; the manager must not start with them.
func (m *Manager) AddQueue(cfg Config) error {
	k := cfg.Key()
	if _, dup := m.queues[k]; dup {
		return fmt.Errorf("queue: duplicate key %v", k)
	}
	if cfg.Class != ClassCCL && cfg.ID > MaxMessageID {
		return fmt.Errorf("queue: id %d too large; use an id of at most %d", cfg.ID, MaxMessageID)
	}
	q := NewQueue(cfg, m.log)
	m.queues[k] = q
	m.order = append(m.order, k)
	sort.Slice(m.order, func(i, j int) bool {
		if m.order[i].Class != m.order[j].Class {
			return m.order[i].Class < m.order[j].Class
		}
		return m.order[i].ID < m.order[j].ID
	})
	m.log.Info("added queue",
		zap.Stringer("key", k),
		zap.String("name", cfg.displayName()))
	return nil
}

// Queue returns the registered queue for k, or nil.
func (m *Manager) Queue(k Key) *Queue { return m.queues[k] }

// Push enqueues an encoded message for sending. A message addressed to this
// node loops back through the receive path without touching the link.
func (m *Manager) Push(k Key, encoded modem.Message, source any) error {
	if encoded.Dest == m.modemID {
		m.log.Debug("outgoing message is for us: using loopback, not physical interface")
		m.ReceiveIncomingData(encoded)
		return nil
	}
	q, ok := m.queues[k]
	if !ok {
		return fmt.Errorf("queue: no queue for key %v", k)
	}
	if err := q.Push(encoded, source); err != nil {
		return fmt.Errorf("queue %v: %w", k, err)
	}
	m.notifySize(k, q)
	return nil
}

// DoWork runs one scheduling tick: every queue expires messages whose TTL
// elapsed without a send.
func (m *Manager) DoWork() {
	for _, k := range m.order {
		for _, expired := range m.queues[k].Expire() {
			if m.callbacks.Expire != nil {
				m.callbacks.Expire(k, expired)
			}
		}
	}
}

// clearPacket resets all ack-wait bookkeeping; runs on the first frame of
// every outgoing packet, which is the only reset point.
func (m *Manager) clearPacket() {
	for _, queues := range m.waitingForAck {
		for _, q := range queues {
			q.ClearAckState()
		}
	}
	m.waitingForAck = make(map[uint32][]*Queue)
	m.packetAck = false
}

// ProvideOutgoingData fills one outgoing frame for the transmission
// opportunity described by req: it runs the priority contest repeatedly,
// collecting winning pieces until the frame is full, no queue has data, or a
// CCL-class piece terminates the frame, then stitches the pieces together.
// Zero collected pieces yield an explicitly empty frame, not an error.
func (m *Manager) ProvideOutgoingData(req modem.TransmitRequest) (modem.Message, error) {
	if req.Frame == 0 || req.Frame == 1 {
		m.clearPacket()
	} else {
		// all frames of one packet share the disposition chosen on frame 0/1
		req.Ack = m.packetAck
	}

	winner := m.findNextSender(req, 0)
	if winner == nil {
		m.log.Debug("no data found, sending empty frame")
		return modem.Message{Src: req.Src, Dest: req.Dest, Frame: req.Frame, Ack: m.packetAck}, nil
	}

	var pieces []modem.Message
	cclFrame := false
	remaining := req.MaxBytes
	for winner != nil {
		next, ok := winner.GiveData(req.Frame)
		if !ok {
			break
		}
		pieces = append(pieces, next)

		// once any piece requests an ack, the whole packet does
		if !m.packetAck {
			m.packetAck = next.Ack
		}

		m.log.Debug("sending data to firmware",
			zap.String("queue", winner.Cfg().displayName()),
			zap.Int("bytes", next.Size()))

		if !m.packetAck {
			winner.Pop(req.Frame)
		} else {
			winner.MarkAckPending(req.Frame)
			m.waitingForAck[req.Frame] = append(m.waitingForAck[req.Frame], winner)
		}
		m.notifySize(winner.Cfg().Key(), winner)

		remaining -= next.Size()
		req.MaxBytes = remaining

		// no room for another piece, or a CCL piece always ends the frame
		if winner.Cfg().Class == ClassCCL {
			cclFrame = true
			break
		}
		if remaining <= pieceHeaderBytes {
			break
		}
		winner = m.findNextSender(req, len(pieces))
	}

	// legacy CCL messages travel whole, without the stitched framing; their
	// leading byte is their own type id
	var data []byte
	if cclFrame {
		data = pieces[0].Data
	} else {
		var err error
		data, err = stitch(pieces, 0)
		if err != nil {
			return modem.Message{}, err
		}
	}
	out := modem.Message{
		Src:   req.Src,
		Dest:  req.Dest,
		Frame: req.Frame,
		Ack:   m.packetAck,
		Data:  data,
	}
	return out, nil
}

// findNextSender runs one round of the priority contest. On-demand queues
// that are empty or stale are first offered the chance to generate fresh
// data. The highest priority wins; ties go to the queue that has waited
// longest since its last send. CCL-class queues may only win the lead
// (zeroth) position of a frame.
func (m *Manager) findNextSender(req modem.TransmitRequest, userFrame int) *Queue {
	var (
		winner          *Queue
		winningPriority float64
		winningLastSend time.Time
	)
	for _, k := range m.order {
		q := m.queues[k]

		if q.Cfg().OnDemand && m.callbacks.OnDemand != nil &&
			(q.Size() == 0 || q.NewestMessageTime().Add(onDemandSkew).Before(m.now())) {
			encoded, source, err := m.callbacks.OnDemand(k, req)
			if err != nil {
				m.log.Warn("on-demand data request failed", zap.Stringer("key", k), zap.Error(err))
			} else if err := m.Push(k, encoded, source); err != nil {
				m.log.Warn("on-demand push failed", zap.Stringer("key", k), zap.Error(err))
			}
		}

		priority, lastSend, ok := q.PriorityValue(req)
		if !ok {
			continue
		}
		if q.Cfg().Class == ClassCCL && userFrame > 0 {
			continue
		}
		m.log.Debug("priority contest entry",
			zap.String("queue", q.Cfg().displayName()),
			zap.Float64("priority", priority))
		if winner == nil || priority > winningPriority ||
			(priority == winningPriority && lastSend.Before(winningLastSend)) {
			winner = q
			winningPriority = priority
			winningLastSend = lastSend
		}
	}
	if winner != nil {
		m.log.Debug("priority contest winner",
			zap.String("queue", winner.Cfg().displayName()),
			zap.Float64("priority", winningPriority))
	}
	return winner
}

// HandleAck processes an acknowledgment from the link: every queue with a
// message registered against the acknowledged frame has that message
// ack-popped and delivered to the ack callback. Unsolicited or misaddressed
// acks are logged and dropped.
func (m *Manager) HandleAck(ack modem.Ack) {
	if ack.Dest != m.modemID {
		m.log.Warn("ignoring ack for other modem", zap.Int("dest", ack.Dest))
		return
	}
	queues := m.waitingForAck[ack.Frame]
	if len(queues) == 0 {
		m.log.Debug("got ack but we were not expecting one", zap.Uint32("frame", ack.Frame))
		return
	}
	delete(m.waitingForAck, ack.Frame)
	for _, q := range queues {
		k := q.Cfg().Key()
		removed, ok := q.PopAck(ack.Frame)
		if !ok {
			m.log.Warn("failed to pop acknowledged message", zap.Stringer("key", k))
			continue
		}
		m.notifySize(k, q)
		if m.callbacks.Ack != nil {
			m.callbacks.Ack(k, removed)
		}
	}
}

// ReceiveIncomingData routes one received frame. A stitched frame is split
// into pieces and each routed individually; any other frame is legacy CCL,
// delivered whole to the queue registered under its leading type byte. A
// malformed frame is reported and dropped without affecting the link.
func (m *Manager) ReceiveIncomingData(msg modem.Message) error {
	m.log.Debug("received message", zap.Int("bytes", msg.Size()))
	if msg.Size() < pieceHeaderBytes {
		return fmt.Errorf("queue: frame too short (%d bytes)", msg.Size())
	}
	if msg.Data[0] != StitchMarker {
		k := Key{Class: ClassCCL, ID: int(msg.Data[0])}
		if _, ok := m.queues[k]; !ok {
			m.log.Warn("incoming frame is not for us (not DCCL or known CCL)",
				zap.Int("ccl_id", k.ID))
			return nil
		}
		if m.callbacks.ReceiveCCL != nil {
			m.callbacks.ReceiveCCL(k, msg)
		}
		return nil
	}

	pieces, err := unstitch(msg.Data)
	if err != nil {
		m.log.Warn("failed to unstitch frame", zap.Error(err))
		return err
	}
	for _, p := range pieces {
		piece := msg
		piece.Data = p.data
		if p.broadcast {
			// the piece was addressed to everyone even if the outer
			// frame was unicast
			piece.Dest = modem.BroadcastID
		}
		m.publishIncomingPiece(piece, p.id)
		// the outer destination is restored implicitly: piece is a copy
	}
	return nil
}

// publishIncomingPiece routes one decoded piece to its queue's receive
// callback, dropping pieces that are not for this node or have no
// registered queue.
func (m *Manager) publishIncomingPiece(piece modem.Message, id int) bool {
	if piece.Dest != modem.BroadcastID && piece.Dest != m.modemID {
		m.log.Warn("ignoring piece for other modem", zap.Int("dest", piece.Dest))
		return false
	}
	k := Key{Class: ClassDCCL, ID: id}
	if _, ok := m.queues[k]; !ok {
		m.log.Warn("no queue mapping for incoming message id", zap.Int("id", id))
		return false
	}
	if m.callbacks.Receive != nil {
		m.callbacks.Receive(k, piece)
	}
	return true
}

// RequestNextDestination runs the priority contest without consuming data,
// to learn which node a future transmission opportunity of the given size
// would address. Returns NoDestination when no queue can contribute.
func (m *Manager) RequestNextDestination(maxBytes int) int {
	m.clearPacket()
	winner := m.findNextSender(modem.TransmitRequest{MaxBytes: maxBytes}, 0)
	if winner == nil {
		return NoDestination
	}
	dest, ok := winner.NextDest()
	if !ok {
		return NoDestination
	}
	m.log.Debug("destination request", zap.Int("dest", dest), zap.Int("max_bytes", maxBytes))
	return dest
}

func (m *Manager) notifySize(k Key, q *Queue) {
	if m.callbacks.QueueSize != nil {
		m.callbacks.QueueSize(k, q.Size())
	}
}
