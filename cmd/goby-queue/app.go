package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tsaubergine/goby3/pkg/acomms"
	"github.com/tsaubergine/goby3/pkg/codec"
	"github.com/tsaubergine/goby3/pkg/config"
	"github.com/tsaubergine/goby3/pkg/modem"
	"github.com/tsaubergine/goby3/pkg/modem/mem"
	"github.com/tsaubergine/goby3/pkg/modem/udp"
	"github.com/tsaubergine/goby3/pkg/observability"
	"github.com/tsaubergine/goby3/pkg/queue"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	zap.L().Info("goby-queue started", zap.String("app", cfg.AppName))
	zap.L().Info("effective configuration", zap.Any("config", cfg))

	srcCodec, err := codec.NewRegistry().ForName(cfg.SourceEncoding)
	if err != nil {
		zap.L().Error("invalid source encoding", zap.Error(err))
		return 1
	}

	manager := queue.NewManager(cfg.ModemID, logger)
	for i, spec := range cfg.Queues {
		qcfg, err := spec.QueueConfig()
		if err != nil {
			zap.L().Error("invalid queue config", zap.Int("index", i), zap.Error(err))
			return 1
		}
		if err := manager.AddQueue(qcfg); err != nil {
			zap.L().Error("failed to add queue", zap.Int("index", i), zap.Error(err))
			return 1
		}
	}
	var demoKey queue.Key
	if opts.Demo {
		if len(cfg.Queues) == 0 {
			zap.L().Error("demo mode needs at least one configured queue")
			return 1
		}
		qcfg, _ := cfg.Queues[0].QueueConfig()
		demoKey = qcfg.Key()
	}

	manager.SetCallbacks(queue.Callbacks{
		Receive: func(k queue.Key, msg modem.Message) {
			zap.L().Info("received message",
				zap.Stringer("queue", k),
				zap.Int("src", msg.Src),
				zap.Int("bytes", msg.Size()))
			if opts.Demo && k == demoKey && msg.Size() > 2 {
				if report, err := decodeStatus(msg.Data[2:]); err == nil {
					zap.L().Info("decoded status report", zap.Any("report", report))
				}
			}
		},
		ReceiveCCL: func(k queue.Key, msg modem.Message) {
			zap.L().Info("received legacy message",
				zap.Stringer("queue", k),
				zap.Int("src", msg.Src),
				zap.Int("bytes", msg.Size()))
		},
		Ack: func(k queue.Key, qm *queue.QueuedMessage) {
			zap.L().Info("message acknowledged",
				append([]zap.Field{
					zap.Stringer("queue", k),
					zap.Int("dest", qm.Encoded.Dest),
				}, sourceFields(srcCodec, qm.Source)...)...)
		},
		Expire: func(k queue.Key, qm *queue.QueuedMessage) {
			zap.L().Warn("message expired unsent",
				append([]zap.Field{zap.Stringer("queue", k)},
					sourceFields(srcCodec, qm.Source)...)...)
		},
	})

	driver, err := buildDriver(cfg, logger)
	if err != nil {
		zap.L().Error("failed to build modem driver", zap.Error(err))
		return 1
	}

	acomms.Bind(driver, manager)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := driver.Startup(ctx); err != nil {
		zap.L().Error("failed to start modem driver", zap.Error(err))
		return 1
	}
	defer func() { _ = driver.Shutdown() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	poll := time.NewTicker(time.Duration(cfg.Modem.PollIntervalMS) * time.Millisecond)
	defer poll.Stop()
	transmit := time.NewTicker(time.Duration(cfg.Modem.TransmitIntervalMS) * time.Millisecond)
	defer transmit.Stop()

	var demo *demoReporter
	var demoTick <-chan time.Time // nil unless demo mode; never fires otherwise
	if opts.Demo {
		demo = newDemoReporter(manager, demoKey, opts.DemoDest, srcCodec, logger)
		t := time.NewTicker(time.Duration(cfg.Modem.TransmitIntervalMS) * time.Millisecond)
		defer t.Stop()
		demoTick = t.C
	}

	zap.L().Info("node is running; press Ctrl+C to exit")
	for {
		select {
		case <-sig:
			zap.L().Info("shutting down")
			return 0
		case <-demoTick:
			demo.push()
		case <-poll.C:
			if err := driver.DoWork(); err != nil {
				zap.L().Warn("driver work error", zap.Error(err))
			}
			manager.DoWork()
		case <-transmit.C:
			dest := manager.RequestNextDestination(cfg.Modem.MaxFrameBytes)
			if dest == queue.NoDestination {
				continue
			}
			err := driver.StartTransmission(modem.TransmitRequest{
				Dest:     dest,
				MaxBytes: cfg.Modem.MaxFrameBytes,
			})
			if err != nil {
				zap.L().Warn("transmission failed", zap.Error(err))
			}
		}
	}
}

// sourceFields renders a queued message's structured source with the
// configured codec for logging. A nil source yields no fields; binary
// encodings are logged as such.
func sourceFields(c codec.Codec, source any) []zap.Field {
	if source == nil {
		return nil
	}
	b, err := c.Marshal(source)
	if err != nil {
		return []zap.Field{zap.NamedError("source_encode_error", err)}
	}
	f := zap.Binary("source", b)
	if c.ContentType() == codec.TypeJSON {
		f = zap.ByteString("source", b)
	}
	return []zap.Field{zap.String("content_type", c.ContentType()), f}
}

func buildDriver(cfg *config.Config, logger *zap.Logger) (modem.Driver, error) {
	switch cfg.Modem.Driver {
	case "mem":
		// single-node in-process bus; mostly useful for smoke testing
		return mem.NewBus().Driver(cfg.ModemID, logger)
	default:
		return udp.New(udp.Config{
			ModemID:       cfg.ModemID,
			Group:         cfg.Modem.Group,
			MaxFrameBytes: cfg.Modem.MaxFrameBytes,
		}, logger), nil
	}
}
