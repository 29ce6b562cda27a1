package acomms

import (
	"context"
	"testing"

	"github.com/tsaubergine/goby3/pkg/modem"
	"github.com/tsaubergine/goby3/pkg/modem/mem"
	"github.com/tsaubergine/goby3/pkg/queue"
)

// Two nodes on an in-process bus: a message pushed at node 1 must arrive at
// node 2's receive callback, and the requested ack must come back and empty
// node 1's queue.
func TestBindDeliversAndAcks(t *testing.T) {
	bus := mem.NewBus()

	d1, err := bus.Driver(1, nil)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := bus.Driver(2, nil)
	if err != nil {
		t.Fatal(err)
	}

	m1 := queue.NewManager(1, nil)
	m2 := queue.NewManager(2, nil)

	cfg := queue.Config{ID: 3, Class: queue.ClassDCCL, Name: "status", Ack: true}
	if err := m1.AddQueue(cfg); err != nil {
		t.Fatal(err)
	}
	if err := m2.AddQueue(cfg); err != nil {
		t.Fatal(err)
	}

	var got []modem.Message
	m2.SetCallbacks(queue.Callbacks{
		Receive: func(_ queue.Key, msg modem.Message) { got = append(got, msg) },
	})
	var acked int
	m1.SetCallbacks(queue.Callbacks{
		Ack: func(queue.Key, *queue.QueuedMessage) { acked++ },
	})

	Bind(d1, m1)
	Bind(d2, m2)

	ctx := context.Background()
	if err := d1.Startup(ctx); err != nil {
		t.Fatal(err)
	}
	if err := d2.Startup(ctx); err != nil {
		t.Fatal(err)
	}

	payload := []byte("depth=42")
	err = m1.Push(cfg.Key(), modem.Message{Dest: 2, Data: queue.Piece(3, payload)}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := d1.StartTransmission(modem.TransmitRequest{Dest: 2, MaxBytes: 32}); err != nil {
		t.Fatal(err)
	}

	// node 2 receives the frame and sends the ack
	if err := d2.DoWork(); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("node 2 received %d pieces, want 1", len(got))
	}
	if string(got[0].Data[2:]) != string(payload) {
		t.Fatalf("payload = %q, want %q", got[0].Data[2:], payload)
	}

	// node 1 receives the ack
	if err := d1.DoWork(); err != nil {
		t.Fatal(err)
	}
	if acked != 1 {
		t.Fatalf("acked = %d, want 1", acked)
	}
	if q := m1.Queue(cfg.Key()); q.Size() != 0 {
		t.Fatalf("queue size after ack = %d, want 0", q.Size())
	}
}

// With acks delayed across several transmissions, the bound manager must
// re-offer the unacked message on every packet and keep its bookkeeping
// bounded, then settle once a matching ack finally arrives.
func TestBindReoffersUnackedAcrossTransmissions(t *testing.T) {
	bus := mem.NewBus()
	d1, _ := bus.Driver(1, nil)
	d2, _ := bus.Driver(2, nil)

	m1 := queue.NewManager(1, nil)
	m2 := queue.NewManager(2, nil)

	cfg := queue.Config{ID: 3, Class: queue.ClassDCCL, Name: "status", Ack: true}
	if err := m1.AddQueue(cfg); err != nil {
		t.Fatal(err)
	}
	if err := m2.AddQueue(cfg); err != nil {
		t.Fatal(err)
	}

	var received int
	m2.SetCallbacks(queue.Callbacks{
		Receive: func(queue.Key, modem.Message) { received++ },
	})
	var acked int
	m1.SetCallbacks(queue.Callbacks{
		Ack: func(queue.Key, *queue.QueuedMessage) { acked++ },
	})

	Bind(d1, m1)
	Bind(d2, m2)

	ctx := context.Background()
	_ = d1.Startup(ctx)
	_ = d2.Startup(ctx)

	err := m1.Push(cfg.Key(), modem.Message{Dest: 2, Data: queue.Piece(3, []byte("x"))}, nil)
	if err != nil {
		t.Fatal(err)
	}

	// node 2 never runs, so no acks come back; each transmission must
	// still carry the message
	const rounds = 3
	for i := 0; i < rounds; i++ {
		if err := d1.StartTransmission(modem.TransmitRequest{Dest: 2, MaxBytes: 32}); err != nil {
			t.Fatal(err)
		}
		if got := m1.Queue(cfg.Key()).Size(); got != 1 {
			t.Fatalf("round %d: queue size = %d, want 1", i, got)
		}
	}

	// node 2 catches up: it receives every copy and acks each one, but
	// only the ack for the latest transmission may count
	if err := d2.DoWork(); err != nil {
		t.Fatal(err)
	}
	if received != rounds {
		t.Fatalf("received = %d, want %d re-offered copies", received, rounds)
	}
	if err := d1.DoWork(); err != nil {
		t.Fatal(err)
	}
	if acked != 1 {
		t.Fatalf("acked = %d, want 1", acked)
	}
	if got := m1.Queue(cfg.Key()).Size(); got != 0 {
		t.Fatalf("queue size after ack = %d, want 0", got)
	}
}

// A broadcast transmission reaches every other node on the bus without
// requesting an ack.
func TestBindBroadcast(t *testing.T) {
	bus := mem.NewBus()

	d1, _ := bus.Driver(1, nil)
	d2, _ := bus.Driver(2, nil)
	d3, _ := bus.Driver(3, nil)

	m1 := queue.NewManager(1, nil)
	m2 := queue.NewManager(2, nil)
	m3 := queue.NewManager(3, nil)

	cfg := queue.Config{ID: 5, Class: queue.ClassDCCL, Name: "nav"}
	for _, m := range []*queue.Manager{m1, m2, m3} {
		if err := m.AddQueue(cfg); err != nil {
			t.Fatal(err)
		}
	}

	recv := make(map[int]int)
	m2.SetCallbacks(queue.Callbacks{Receive: func(queue.Key, modem.Message) { recv[2]++ }})
	m3.SetCallbacks(queue.Callbacks{Receive: func(queue.Key, modem.Message) { recv[3]++ }})

	Bind(d1, m1)
	Bind(d2, m2)
	Bind(d3, m3)

	ctx := context.Background()
	for _, d := range []*mem.Driver{d1, d2, d3} {
		if err := d.Startup(ctx); err != nil {
			t.Fatal(err)
		}
	}

	err := m1.Push(cfg.Key(), modem.Message{Dest: modem.BroadcastID, Data: queue.Piece(5, []byte("fix"))}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := d1.StartTransmission(modem.TransmitRequest{Dest: modem.BroadcastID, MaxBytes: 32}); err != nil {
		t.Fatal(err)
	}

	_ = d2.DoWork()
	_ = d3.DoWork()

	if recv[2] != 1 || recv[3] != 1 {
		t.Fatalf("broadcast receive counts = %v, want 1 at nodes 2 and 3", recv)
	}
	// no ack was requested, so nothing should come back
	if err := d1.DoWork(); err != nil {
		t.Fatal(err)
	}
}
