// Package mem implements an in-process modem driver. A Bus connects the
// drivers of several logical modems and routes frames between them without a
// network, preserving the same delivery and acknowledgment behavior as the
// real drivers. Useful for tests and single-host simulation.
package mem

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tsaubergine/goby3/pkg/modem"
)

// Bus is the shared medium. Every frame a driver transmits reaches every
// other driver on the bus, matching a broadcast acoustic channel.
type Bus struct {
	mu      sync.Mutex
	drivers map[int]*Driver
}

func NewBus() *Bus {
	return &Bus{drivers: make(map[int]*Driver)}
}

// Driver attaches a new driver with the given modem ID to the bus.
func (b *Bus) Driver(modemID int, log *zap.Logger) (*Driver, error) {
	if log == nil {
		log = zap.NewNop()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.drivers[modemID]; ok {
		return nil, fmt.Errorf("modem id %d already on bus", modemID)
	}
	d := &Driver{
		bus:     b,
		modemID: modemID,
		log:     log.Named("modem.mem"),
		rx:      make(chan event, 64),
	}
	b.drivers[modemID] = d
	return d, nil
}

// broadcast delivers an event to every driver except the sender.
func (b *Bus) broadcast(from int, ev event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, d := range b.drivers {
		if id == from {
			continue
		}
		select {
		case d.rx <- ev:
		default:
			d.log.Warn("inbound queue full, dropping frame", zap.Int("src", from))
		}
	}
}

// event is one delivery on the bus. Frame numbers restart at zero for every
// packet, so seq carries a per-sender sequence that acks echo back.
type event struct {
	ack     bool
	seq     uint32
	msg     modem.Message
	ackInfo modem.Ack
}

// Driver is one modem on the bus.
type Driver struct {
	bus     *Bus
	modemID int
	log     *zap.Logger

	onData    modem.DataRequestHandler
	onReceive modem.ReceiveHandler
	onAck     modem.AckHandler

	started bool

	rx  chan event
	seq uint32
	// sequence of the most recent ack-requested transmission; acks for
	// anything older belong to an already-cleared packet and are dropped
	awaitSeq   uint32
	awaitValid bool
}

func (d *Driver) SetDataRequestHandler(h modem.DataRequestHandler) { d.onData = h }
func (d *Driver) SetReceiveHandler(h modem.ReceiveHandler)         { d.onReceive = h }
func (d *Driver) SetAckHandler(h modem.AckHandler)                 { d.onAck = h }

func (d *Driver) Startup(_ context.Context) error {
	d.started = true
	return nil
}

func (d *Driver) Shutdown() error {
	d.started = false
	return nil
}

// DoWork dispatches frames delivered since the last tick. Handlers run on
// the caller's goroutine.
func (d *Driver) DoWork() error {
	for {
		select {
		case ev := <-d.rx:
			d.dispatch(ev)
		default:
			return nil
		}
	}
}

func (d *Driver) dispatch(ev event) {
	if ev.ack {
		if !d.awaitValid || ev.seq != d.awaitSeq {
			d.log.Debug("dropping stale ack", zap.Uint32("seq", ev.seq))
			return
		}
		d.awaitValid = false
		if d.onAck != nil {
			d.onAck(ev.ackInfo)
		}
		return
	}
	msg := ev.msg
	if msg.Ack && msg.Dest == d.modemID {
		d.bus.broadcast(d.modemID, event{
			ack:     true,
			seq:     ev.seq,
			ackInfo: modem.Ack{Src: d.modemID, Dest: msg.Src, Frame: msg.Frame},
		})
	}
	if d.onReceive != nil {
		d.onReceive(msg)
	}
}

// StartTransmission opens a transmission opportunity. Every transmission is
// a fresh packet, so the data request always names frame zero and the data
// source's per-packet state resets with it.
func (d *Driver) StartTransmission(req modem.TransmitRequest) error {
	if !d.started {
		return errors.New("driver not started")
	}
	if d.onData == nil {
		return errors.New("no data request handler bound")
	}
	if req.Src == 0 {
		req.Src = d.modemID
	}
	if req.MaxBytes <= 0 {
		req.MaxBytes = 64
	}
	req.Frame = 0

	msg, err := d.onData(req)
	if err != nil {
		return fmt.Errorf("data request: %w", err)
	}
	if msg.Empty() {
		return nil
	}
	seq := d.seq
	d.seq++
	if msg.Ack {
		d.awaitSeq = seq
		d.awaitValid = true
	}
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	d.bus.broadcast(d.modemID, event{seq: seq, msg: msg})
	return nil
}
