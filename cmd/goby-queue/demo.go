package main

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/tsaubergine/goby3/pkg/codec"
	"github.com/tsaubergine/goby3/pkg/dccl"
	"github.com/tsaubergine/goby3/pkg/modem"
	"github.com/tsaubergine/goby3/pkg/queue"
)

// statusReport is the synthetic vehicle status pushed in demo mode.
type statusReport struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	DepthM  float64 `json:"depth_m"`
	Battery float64 `json:"battery_pct"`
}

var statusFields = []dccl.FieldSpec{
	{Name: "lat", Min: dccl.Float64(-90), Max: dccl.Float64(90), Precision: 4},
	{Name: "lon", Min: dccl.Float64(-180), Max: dccl.Float64(180), Precision: 4},
	{Name: "depth_m", Min: dccl.Float64(0), Max: dccl.Float64(6000), Precision: 1},
	{Name: "battery_pct", Min: dccl.Float64(0), Max: dccl.Float64(100)},
}

func statusCodecs() ([]*dccl.Arithmetic, error) {
	out := make([]*dccl.Arithmetic, len(statusFields))
	for i, spec := range statusFields {
		c, err := dccl.NewArithmetic(spec)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", spec.Name, err)
		}
		out[i] = c
	}
	return out, nil
}

// encodeStatus packs a report into a queue piece for the given message id.
func encodeStatus(id int, r statusReport) ([]byte, error) {
	codecs, err := statusCodecs()
	if err != nil {
		return nil, err
	}
	var bits dccl.Bits
	for i, v := range []float64{r.Lat, r.Lon, r.DepthM, r.Battery} {
		bits.Append(codecs[i].Encode(v))
	}
	return queue.Piece(id, bits.Bytes()), nil
}

// decodeStatus unpacks a received piece payload back into a report.
func decodeStatus(payload []byte) (statusReport, error) {
	codecs, err := statusCodecs()
	if err != nil {
		return statusReport{}, err
	}
	total := 0
	for _, c := range codecs {
		total += c.Size()
	}
	bits, err := dccl.BitsFromBytes(payload, total)
	if err != nil {
		return statusReport{}, err
	}
	vals := make([]float64, len(codecs))
	for i, c := range codecs {
		field, err := bits.TakeFront(c.Size())
		if err != nil {
			return statusReport{}, err
		}
		vals[i], err = c.Decode(field)
		if err != nil {
			return statusReport{}, fmt.Errorf("field %s: %w", statusFields[i].Name, err)
		}
	}
	return statusReport{Lat: vals[0], Lon: vals[1], DepthM: vals[2], Battery: vals[3]}, nil
}

// demoReporter pushes a synthetic status report each tick, wandering a
// vehicle in a slow circle.
type demoReporter struct {
	manager *queue.Manager
	key     queue.Key
	dest    int
	enc     codec.Codec
	log     *zap.Logger
	tick    int
}

func newDemoReporter(manager *queue.Manager, key queue.Key, dest int, enc codec.Codec, log *zap.Logger) *demoReporter {
	return &demoReporter{
		manager: manager,
		key:     key,
		dest:    dest,
		enc:     enc,
		log:     log.Named("demo"),
	}
}

func (d *demoReporter) push() {
	t := float64(d.tick)
	d.tick++
	report := statusReport{
		Lat:     42.35 + 0.001*math.Sin(t/10),
		Lon:     -70.95 + 0.001*math.Cos(t/10),
		DepthM:  20 + 5*math.Sin(t/7),
		Battery: math.Max(0, 100-t/10),
	}
	data, err := encodeStatus(d.key.ID, report)
	if err != nil {
		d.log.Error("encode failed", zap.Error(err))
		return
	}
	msg := modem.Message{Dest: d.dest, Time: time.Now(), Data: data}
	if err := d.manager.Push(d.key, msg, report); err != nil {
		d.log.Warn("push failed", zap.Error(err))
		return
	}
	if b, err := d.enc.Marshal(report); err == nil {
		d.log.Info("queued status report",
			zap.String("content_type", d.enc.ContentType()),
			zap.Int("report_bytes", len(b)),
			zap.Int("encoded_bytes", len(data)))
	}
}
