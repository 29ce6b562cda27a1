package queue

import (
	"errors"
	"fmt"

	"github.com/tsaubergine/goby3/pkg/modem"
)

// Stitched frame wire format. An encoded DCCL message arrives at the queue
// layer as marker + flags + payload; stitching combines several such pieces
// into one physical frame:
//
//	frame  = marker(0x20) piece...
//	piece  = flags(1) [length(1) when more-follows] payload
//	flags  = bit7 more-follows | bit6 broadcast | bits 0..5 message type id
//
// The last piece carries no length byte; it runs to the end of the frame. A
// frame whose first byte is not the marker is a legacy CCL frame whose
// leading byte is the CCL type id.
const (
	StitchMarker = 0x20

	flagMoreFollows = 0x80
	flagBroadcast   = 0x40
	idMask          = 0x3f

	pieceHeaderBytes = 2 // marker + flags on a standalone encoded message
)

// ErrEmptyPiece is returned when an empty message is passed to stitch.
var ErrEmptyPiece = errors.New("queue: empty message passed to stitch")

// Piece wraps an encoded message body in the piece framing for the given
// message type id.
func Piece(id int, payload []byte) []byte {
	out := make([]byte, 0, pieceHeaderBytes+len(payload))
	out = append(out, StitchMarker, byte(id)&idMask)
	return append(out, payload...)
}

// PieceID reads the message type id from an encoded piece.
func PieceID(data []byte) (int, bool) {
	if len(data) < pieceHeaderBytes || data[0] != StitchMarker {
		return 0, false
	}
	return int(data[1] & idMask), true
}

// stitch packs the pieces into a single frame no larger than maxBytes. Every
// piece except the last gains a one-byte payload length after its flags; the
// broadcast flag records per-piece broadcast destinations so unstitching can
// restore them.
func stitch(pieces []modem.Message, maxBytes int) ([]byte, error) {
	if len(pieces) == 0 {
		return nil, errors.New("queue: no pieces to stitch")
	}
	out := []byte{StitchMarker}
	for i, p := range pieces {
		if p.Size() < pieceHeaderBytes || p.Data[0] != StitchMarker {
			return nil, ErrEmptyPiece
		}
		last := i == len(pieces)-1
		flags := p.Data[1] &^ (flagMoreFollows | flagBroadcast)
		if !last {
			flags |= flagMoreFollows
		}
		if p.Dest == modem.BroadcastID {
			flags |= flagBroadcast
		}
		payload := p.Data[pieceHeaderBytes:]
		out = append(out, flags)
		if !last {
			if len(payload) > 0xff {
				return nil, fmt.Errorf("queue: piece payload %d bytes exceeds length field", len(payload))
			}
			out = append(out, byte(len(payload)))
		}
		out = append(out, payload...)
	}
	if maxBytes > 0 && len(out) > maxBytes {
		return nil, fmt.Errorf("queue: stitched frame %d bytes exceeds maximum %d", len(out), maxBytes)
	}
	return out, nil
}

// unstitchedPiece is one piece recovered from a stitched frame.
type unstitchedPiece struct {
	id        int
	broadcast bool
	data      []byte // piece restored to standalone marker+flags+payload form
}

// unstitch splits a stitched frame back into its pieces, walking the buffer
// with an explicit cursor. The flag bits are cleared in the restored pieces
// so downstream routing sees them in their standalone form.
func unstitch(frame []byte) ([]unstitchedPiece, error) {
	if len(frame) < pieceHeaderBytes || frame[0] != StitchMarker {
		return nil, errors.New("queue: not a stitched frame")
	}
	var pieces []unstitchedPiece
	buf := frame[1:]
	for {
		if len(buf) == 0 {
			return nil, errors.New("queue: truncated piece header")
		}
		flags := buf[0]
		more := flags&flagMoreFollows != 0
		broadcast := flags&flagBroadcast != 0
		var payload []byte
		if more {
			if len(buf) < 2 {
				return nil, errors.New("queue: missing piece length")
			}
			n := int(buf[1])
			if len(buf) < 2+n {
				return nil, fmt.Errorf("queue: piece length %d exceeds remaining %d bytes", n, len(buf)-2)
			}
			payload = buf[2 : 2+n]
			buf = buf[2+n:]
		} else {
			payload = buf[1:]
		}
		data := make([]byte, 0, pieceHeaderBytes+len(payload))
		data = append(data, StitchMarker, flags&^(flagMoreFollows|flagBroadcast))
		data = append(data, payload...)
		pieces = append(pieces, unstitchedPiece{
			id:        int(flags & idMask),
			broadcast: broadcast,
			data:      data,
		})
		if !more {
			return pieces, nil
		}
	}
}
