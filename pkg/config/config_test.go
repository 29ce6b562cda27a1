package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tsaubergine/goby3/pkg/queue"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "goby.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "modem_id: 7\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ModemID != 7 {
		t.Fatalf("ModemID = %d, want 7", cfg.ModemID)
	}
	if cfg.Modem.Driver != "udp_multicast" {
		t.Fatalf("Driver = %q, want udp_multicast", cfg.Modem.Driver)
	}
	if cfg.Modem.MaxFrameBytes != 64 {
		t.Fatalf("MaxFrameBytes = %d, want 64", cfg.Modem.MaxFrameBytes)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.SourceEncoding != "json" {
		t.Fatalf("SourceEncoding = %q, want json", cfg.SourceEncoding)
	}
}

func TestLoadQueues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
modem_id: 1
queues:
  - id: 3
    class: dccl
    name: status
    ttl_seconds: 600
    weight: 2.5
    ack: true
  - id: 134
    class: ccl
    name: legacy
`))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Queues) != 2 {
		t.Fatalf("got %d queues, want 2", len(cfg.Queues))
	}

	qc, err := cfg.Queues[0].QueueConfig()
	if err != nil {
		t.Fatal(err)
	}
	if qc.Class != queue.ClassDCCL || qc.ID != 3 || !qc.Ack {
		t.Fatalf("unexpected queue config: %+v", qc)
	}
	if qc.TTL != 600*time.Second {
		t.Fatalf("TTL = %v, want 600s", qc.TTL)
	}
	if qc.Weight != 2.5 {
		t.Fatalf("Weight = %v, want 2.5", qc.Weight)
	}

	qc, err = cfg.Queues[1].QueueConfig()
	if err != nil {
		t.Fatal(err)
	}
	if qc.Class != queue.ClassCCL || qc.ID != 134 {
		t.Fatalf("unexpected legacy queue config: %+v", qc)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad level", "modem_id: 1\nlog:\n  level: loud\n"},
		{"bad modem id", "modem_id: 0\n"},
		{"bad driver", "modem_id: 1\nmodem:\n  driver: carrier_pigeon\n"},
		{"bad queue class", "modem_id: 1\nqueues:\n  - id: 1\n    class: morse\n"},
		{"bad source encoding", "modem_id: 1\nsource_encoding: msgpack\n"},
	}
	for _, tc := range cases {
		if _, err := Load(writeConfig(t, tc.body)); err == nil {
			t.Errorf("%s: Load accepted invalid config", tc.name)
		}
	}
}
