// Package modem defines the link-layer contract between the queue manager
// and a physical modem driver. Drivers are polled, callback-driven and own no
// threads of their own: the caller ticks DoWork and the driver invokes the
// bound handlers synchronously.
package modem

import (
	"context"
	"time"
)

// BroadcastID is the destination addressing every node in the network.
const BroadcastID = 0

// Message is one frame (or one logical piece of a frame) crossing the link
// layer boundary.
type Message struct {
	Src   int
	Dest  int
	Time  time.Time
	Frame uint32
	Ack   bool // acknowledgment requested for this frame
	Data  []byte
}

// Size returns the payload length in bytes.
func (m Message) Size() int { return len(m.Data) }

// Empty reports whether the message carries no payload.
func (m Message) Empty() bool { return len(m.Data) == 0 }

// TransmitRequest announces a transmission opportunity: the driver names the
// addressing, the frame number and how many bytes the frame may carry, and
// the data source fills it.
type TransmitRequest struct {
	Src      int
	Dest     int
	Frame    uint32
	MaxBytes int
	Ack      bool
}

// Ack reports a received acknowledgment for an earlier frame.
type Ack struct {
	Src   int
	Dest  int
	Frame uint32
}

// Handler funcs bound to a driver before Startup.
type (
	// DataRequestHandler fills a frame for the given opportunity.
	DataRequestHandler func(TransmitRequest) (Message, error)
	// ReceiveHandler delivers a received frame.
	ReceiveHandler func(Message)
	// AckHandler delivers a received acknowledgment.
	AckHandler func(Ack)
)

// Driver is a physical modem driver. Implementations deliver inbound events
// only from within DoWork, keeping the whole stack single-threaded.
type Driver interface {
	Startup(ctx context.Context) error
	Shutdown() error
	// DoWork polls the link and dispatches pending inbound events.
	DoWork() error

	// StartTransmission opens a transmission opportunity: the driver calls
	// the bound data request handler to populate the frame and places the
	// result on the link. Each transmission is one packet, so drivers issue
	// the data request with frame number zero; the data source treats that
	// as the packet boundary where per-packet state (ack waits included)
	// resets.
	StartTransmission(req TransmitRequest) error

	SetDataRequestHandler(DataRequestHandler)
	SetReceiveHandler(ReceiveHandler)
	SetAckHandler(AckHandler)
}
