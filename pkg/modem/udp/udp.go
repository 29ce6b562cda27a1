// Package udp implements a modem driver carrying frames as UDP multicast
// datagrams. Every node in the group sees every frame; the driver rejects its
// own transmissions on receive and acknowledges ack-requested frames
// addressed to it.
package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/tsaubergine/goby3/pkg/modem"
)

// Config configures the multicast driver.
type Config struct {
	// ModemID is the local link-layer address.
	ModemID int
	// Group is the multicast group and port, e.g. "239.142.0.10:50001".
	Group string
	// MaxFrameBytes caps the payload of one frame when the transmit request
	// does not name a size.
	MaxFrameBytes int
}

const (
	packetData = 1
	packetAck  = 2
)

// packet is the wire envelope, CBOR-encoded. Frame numbers restart at zero
// for every packet, so Seq carries a per-sender datagram sequence that acks
// echo back for matching.
type packet struct {
	Type  uint8  `cbor:"1,keyasint"`
	Src   int    `cbor:"2,keyasint"`
	Dest  int    `cbor:"3,keyasint"`
	Frame uint32 `cbor:"4,keyasint"`
	Ack   bool   `cbor:"5,keyasint,omitempty"`
	Data  []byte `cbor:"6,keyasint,omitempty"`
	Seq   uint32 `cbor:"7,keyasint,omitempty"`
}

// Driver is a UDP multicast modem driver.
type Driver struct {
	cfg Config
	log *zap.Logger

	onData    modem.DataRequestHandler
	onReceive modem.ReceiveHandler
	onAck     modem.AckHandler

	conn  *net.UDPConn
	group *net.UDPAddr

	rx        chan packet
	closeOnce sync.Once
	closed    chan struct{}

	seq uint32
	// sequence of the most recent ack-requested transmission; acks for
	// anything older belong to an already-cleared packet and are dropped
	awaitSeq   uint32
	awaitValid bool
}

// New returns an unstarted driver. A nil logger disables logging.
func New(cfg Config, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = 64
	}
	return &Driver{
		cfg:    cfg,
		log:    log.Named("modem.udp"),
		rx:     make(chan packet, 64),
		closed: make(chan struct{}),
	}
}

func (d *Driver) SetDataRequestHandler(h modem.DataRequestHandler) { d.onData = h }
func (d *Driver) SetReceiveHandler(h modem.ReceiveHandler)         { d.onReceive = h }
func (d *Driver) SetAckHandler(h modem.AckHandler)                 { d.onAck = h }

// Startup joins the multicast group and starts the socket reader. Inbound
// frames are held until the next DoWork tick.
func (d *Driver) Startup(ctx context.Context) error {
	gaddr, err := net.ResolveUDPAddr("udp", d.cfg.Group)
	if err != nil {
		return fmt.Errorf("resolve multicast group: %w", err)
	}
	conn, err := net.ListenMulticastUDP("udp", nil, gaddr)
	if err != nil {
		return fmt.Errorf("join multicast group: %w", err)
	}
	_ = conn.SetReadBuffer(1 << 20)

	d.conn = conn
	d.group = gaddr
	go d.readLoop()
	go func() { <-ctx.Done(); _ = d.Shutdown() }()

	d.log.Info("multicast driver up",
		zap.Int("modem_id", d.cfg.ModemID),
		zap.String("group", gaddr.String()))
	return nil
}

func (d *Driver) Shutdown() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.closed)
		if d.conn != nil {
			err = d.conn.Close()
		}
	})
	return err
}

func (d *Driver) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, raddr, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-d.closed:
			default:
				d.log.Warn("receive error", zap.Error(err))
			}
			return
		}
		var pkt packet
		if err := cbor.Unmarshal(buf[:n], &pkt); err != nil {
			d.log.Debug("dropping undecodable datagram",
				zap.String("from", raddr.String()), zap.Error(err))
			continue
		}
		// reject messages to ourselves
		if pkt.Src == d.cfg.ModemID {
			continue
		}
		select {
		case d.rx <- pkt:
		default:
			d.log.Warn("inbound queue full, dropping frame",
				zap.Int("src", pkt.Src), zap.Uint32("frame", pkt.Frame))
		}
	}
}

// DoWork dispatches the frames the reader has buffered since the last tick.
// All handler callbacks run here, on the caller's goroutine.
func (d *Driver) DoWork() error {
	for {
		select {
		case pkt := <-d.rx:
			d.dispatch(pkt)
		default:
			return nil
		}
	}
}

func (d *Driver) dispatch(pkt packet) {
	switch pkt.Type {
	case packetAck:
		if !d.awaitValid || pkt.Seq != d.awaitSeq {
			d.log.Debug("dropping stale ack", zap.Uint32("seq", pkt.Seq))
			return
		}
		d.awaitValid = false
		if d.onAck != nil {
			d.onAck(modem.Ack{Src: pkt.Src, Dest: pkt.Dest, Frame: pkt.Frame})
		}
	case packetData:
		if pkt.Ack && pkt.Dest == d.cfg.ModemID {
			ack := packet{
				Type:  packetAck,
				Src:   d.cfg.ModemID,
				Dest:  pkt.Src,
				Frame: pkt.Frame,
				Seq:   pkt.Seq,
			}
			if err := d.send(ack); err != nil {
				d.log.Warn("ack send failed", zap.Error(err))
			}
		}
		if d.onReceive != nil {
			d.onReceive(modem.Message{
				Src:   pkt.Src,
				Dest:  pkt.Dest,
				Time:  time.Now(),
				Frame: pkt.Frame,
				Ack:   pkt.Ack,
				Data:  pkt.Data,
			})
		}
	default:
		d.log.Debug("unknown packet type", zap.Uint8("type", pkt.Type))
	}
}

// StartTransmission opens a transmission opportunity: the data request
// handler fills the frame and the result goes out on the group. Every
// transmission is a fresh packet, so the data request always names frame
// zero and the data source's per-packet state resets with it.
func (d *Driver) StartTransmission(req modem.TransmitRequest) error {
	if d.conn == nil {
		return errors.New("driver not started")
	}
	if d.onData == nil {
		return errors.New("no data request handler bound")
	}
	if req.Src == 0 {
		req.Src = d.cfg.ModemID
	}
	if req.MaxBytes <= 0 {
		req.MaxBytes = d.cfg.MaxFrameBytes
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

	out := packet{
		Type:  packetData,
		Src:   msg.Src,
		Dest:  msg.Dest,
		Frame: msg.Frame,
		Ack:   msg.Ack,
		Data:  msg.Data,
		Seq:   seq,
	}
	if err := d.send(out); err != nil {
		return err
	}
	d.log.Debug("transmitted frame",
		zap.Int("dest", msg.Dest),
		zap.Uint32("frame", msg.Frame),
		zap.Int("bytes", msg.Size()))
	return nil
}

func (d *Driver) send(pkt packet) error {
	b, err := cbor.Marshal(pkt)
	if err != nil {
		return err
	}
	_, err = d.conn.WriteToUDP(b, d.group)
	return err
}
