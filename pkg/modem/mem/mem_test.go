package mem

import (
	"context"
	"testing"

	"github.com/tsaubergine/goby3/pkg/modem"
)

func TestBusDeliversBetweenDrivers(t *testing.T) {
	bus := NewBus()
	d1, err := bus.Driver(1, nil)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := bus.Driver(2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bus.Driver(1, nil); err == nil {
		t.Fatal("duplicate modem id accepted")
	}

	payload := []byte{0xde, 0xad}
	d1.SetDataRequestHandler(func(req modem.TransmitRequest) (modem.Message, error) {
		return modem.Message{
			Src:   req.Src,
			Dest:  2,
			Frame: req.Frame,
			Data:  payload,
		}, nil
	})

	var got []modem.Message
	d2.SetReceiveHandler(func(m modem.Message) { got = append(got, m) })

	ctx := context.Background()
	if err := d1.Startup(ctx); err != nil {
		t.Fatal(err)
	}
	if err := d2.Startup(ctx); err != nil {
		t.Fatal(err)
	}

	if err := d1.StartTransmission(modem.TransmitRequest{Dest: 2}); err != nil {
		t.Fatal(err)
	}
	if err := d2.DoWork(); err != nil {
		t.Fatal(err)
	}

	if len(got) != 1 {
		t.Fatalf("received %d messages, want 1", len(got))
	}
	if got[0].Src != 1 || got[0].Dest != 2 || string(got[0].Data) != string(payload) {
		t.Fatalf("unexpected message: %+v", got[0])
	}
	if got[0].Frame != 0 {
		t.Fatalf("first frame number = %d, want 0", got[0].Frame)
	}
}

func TestBusAutoAck(t *testing.T) {
	bus := NewBus()
	d1, _ := bus.Driver(1, nil)
	d2, _ := bus.Driver(2, nil)

	d1.SetDataRequestHandler(func(req modem.TransmitRequest) (modem.Message, error) {
		return modem.Message{Src: req.Src, Dest: 2, Frame: req.Frame, Ack: true, Data: []byte{1}}, nil
	})
	d2.SetReceiveHandler(func(modem.Message) {})

	var acks []modem.Ack
	d1.SetAckHandler(func(a modem.Ack) { acks = append(acks, a) })

	ctx := context.Background()
	_ = d1.Startup(ctx)
	_ = d2.Startup(ctx)

	if err := d1.StartTransmission(modem.TransmitRequest{Dest: 2}); err != nil {
		t.Fatal(err)
	}
	_ = d2.DoWork() // deliver, generate ack
	_ = d1.DoWork() // receive ack

	if len(acks) != 1 {
		t.Fatalf("got %d acks, want 1", len(acks))
	}
	if acks[0].Src != 2 || acks[0].Dest != 1 || acks[0].Frame != 0 {
		t.Fatalf("unexpected ack: %+v", acks[0])
	}
}

func TestEmptyFrameNotTransmitted(t *testing.T) {
	bus := NewBus()
	d1, _ := bus.Driver(1, nil)
	d2, _ := bus.Driver(2, nil)

	d1.SetDataRequestHandler(func(req modem.TransmitRequest) (modem.Message, error) {
		return modem.Message{Src: req.Src, Dest: 2, Frame: req.Frame}, nil
	})
	var count int
	d2.SetReceiveHandler(func(modem.Message) { count++ })

	ctx := context.Background()
	_ = d1.Startup(ctx)
	_ = d2.Startup(ctx)

	if err := d1.StartTransmission(modem.TransmitRequest{Dest: 2}); err != nil {
		t.Fatal(err)
	}
	_ = d2.DoWork()
	if count != 0 {
		t.Fatalf("empty frame was delivered %d times", count)
	}

	// every packet restarts at frame zero
	d1.SetDataRequestHandler(func(req modem.TransmitRequest) (modem.Message, error) {
		return modem.Message{Src: req.Src, Dest: 2, Frame: req.Frame, Data: []byte{2}}, nil
	})
	var frame uint32 = 99
	d2.SetReceiveHandler(func(m modem.Message) { frame = m.Frame })
	if err := d1.StartTransmission(modem.TransmitRequest{Dest: 2}); err != nil {
		t.Fatal(err)
	}
	_ = d2.DoWork()
	if frame != 0 {
		t.Fatalf("frame number = %d, want 0", frame)
	}
}

// Acks for an earlier transmission must not be mistaken for acks of the
// latest one: only the ack matching the newest sequence is delivered.
func TestStaleAckDropped(t *testing.T) {
	bus := NewBus()
	d1, _ := bus.Driver(1, nil)
	d2, _ := bus.Driver(2, nil)

	d1.SetDataRequestHandler(func(req modem.TransmitRequest) (modem.Message, error) {
		return modem.Message{Src: req.Src, Dest: 2, Frame: req.Frame, Ack: true, Data: []byte{1}}, nil
	})
	d2.SetReceiveHandler(func(modem.Message) {})

	var acks []modem.Ack
	d1.SetAckHandler(func(a modem.Ack) { acks = append(acks, a) })

	ctx := context.Background()
	_ = d1.Startup(ctx)
	_ = d2.Startup(ctx)

	// two transmissions before the receiver gets to run: both data events
	// queue at node 2, which then acks both
	if err := d1.StartTransmission(modem.TransmitRequest{Dest: 2}); err != nil {
		t.Fatal(err)
	}
	if err := d1.StartTransmission(modem.TransmitRequest{Dest: 2}); err != nil {
		t.Fatal(err)
	}
	_ = d2.DoWork()
	_ = d1.DoWork()

	if len(acks) != 1 {
		t.Fatalf("got %d acks, want 1 (stale ack must be dropped)", len(acks))
	}
	if acks[0].Frame != 0 {
		t.Fatalf("ack frame = %d, want 0", acks[0].Frame)
	}
}
