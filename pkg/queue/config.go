// Package queue implements priority-based scheduling of outgoing messages
// over a bandwidth-constrained acoustic link: per-type FIFO queues, a
// per-transmission-opportunity priority contest, frame stitching and
// unstitching, and cooperative acknowledgment bookkeeping.
package queue

import (
	"fmt"
	"time"
)

// Class partitions the message id space. DCCL messages use the compact
// stitched wire format; CCL messages are a legacy class carried whole, one
// per frame, identified by their leading byte.
type Class int

const (
	ClassDCCL Class = iota
	ClassCCL
)

func (c Class) String() string {
	switch c {
	case ClassDCCL:
		return "dccl"
	case ClassCCL:
		return "ccl"
	default:
		return "unknown"
	}
}

// Key identifies one queue within a Manager.
type Key struct {
	Class Class
	ID    int
}

func (k Key) String() string { return fmt.Sprintf("%v:%d", k.Class, k.ID) }

// MaxMessageID is the largest id a DCCL-class queue may use; the stitched
// piece header carries the id in six bits. CCL-class ids are exempt since
// they live in the legacy one-byte space.
const MaxMessageID = 63

// Default configuration values applied by NewQueue.
const (
	DefaultTTL    = 30 * time.Minute
	DefaultWeight = 1.0
)

// Config is the immutable per-queue configuration.
type Config struct {
	ID       int
	Class    Class
	Name     string
	TTL      time.Duration // messages unsent after this long are expired
	Blackout time.Duration // minimum interval between sends
	Weight   float64       // priority weighting; higher sends more often
	Ack      bool          // request acknowledgment for this queue's messages
	OnDemand bool          // data is generated just before transmission
	MaxQueue int           // pending message capacity; 0 is unbounded
}

// Key returns the queue's identity.
func (c Config) Key() Key { return Key{Class: c.Class, ID: c.ID} }

func (c Config) displayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Key().String()
}
