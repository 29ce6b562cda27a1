// Package codec marshals the structured source representation that rides
// alongside a queued message's wire form: pushed with the message, then
// handed back through the ack and expire callbacks for operator-facing
// logging. Implementations must be deterministic so two nodes rendering the
// same report produce the same bytes.
package codec

import (
	"fmt"
	"strings"
)

// Content types of the built-in codecs.
const (
	TypeJSON  = "application/json"
	TypeCBOR  = "application/cbor"
	TypeProto = "application/x-protobuf"
)

// Codec marshals one application payload representation.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Registry maps content types to codecs.
type Registry struct{ byType map[string]Codec }

// NewRegistry constructs a registry with every built-in codec loaded.
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[string]Codec)}
	r.Register(JSON())
	r.Register(CBOR())
	r.Register(Proto())
	return r
}

// Register adds a codec, replacing any prior one for the same content type.
func (r *Registry) Register(c Codec) { r.byType[c.ContentType()] = c }

// Get returns a codec by content type, or nil.
func (r *Registry) Get(contentType string) Codec { return r.byType[contentType] }

// ForName resolves a configuration-friendly encoding name to a registered
// codec: "json", "cbor", or "proto"/"protobuf". An empty name means JSON.
func (r *Registry) ForName(name string) (Codec, error) {
	var ct string
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		ct = TypeJSON
	case "cbor":
		ct = TypeCBOR
	case "proto", "protobuf":
		ct = TypeProto
	default:
		return nil, fmt.Errorf("codec: unknown encoding %q", name)
	}
	c := r.Get(ct)
	if c == nil {
		return nil, fmt.Errorf("codec: no codec registered for %s", ct)
	}
	return c, nil
}
