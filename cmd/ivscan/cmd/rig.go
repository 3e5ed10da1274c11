package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/arloliu/go-ivscan/config"
	"github.com/arloliu/go-ivscan/device"
	"github.com/arloliu/go-ivscan/gpib"
	"github.com/arloliu/go-ivscan/logger"
	"github.com/arloliu/go-ivscan/messenger"
	"github.com/arloliu/go-ivscan/publish"
	"github.com/arloliu/go-ivscan/scan"
	"github.com/arloliu/go-ivscan/store"
)

// loadConfig reads the configuration file, applies the global flags and
// installs the configured logger as the default one.
func loadConfig() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if simulate {
		cfg.Bus.Backend = config.BackendSim
	}

	l, err := setupLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	return cfg, l, nil
}

// loadBusConfig is loadConfig for the single-instrument commands: with --sim
// no configuration file is needed.
func loadBusConfig() (*config.Config, logger.Logger, error) {
	if !simulate {
		return loadConfig()
	}

	cfg := &config.Config{
		Log:       config.LogConfig{Level: "info", Format: logger.FormatConsole},
		Bus:       config.BusConfig{Backend: config.BackendSim},
		Messenger: config.MessengerConfig{Grammar: "v1"},
	}
	l, err := setupLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	return cfg, l, nil
}

func setupLogger(cfg *config.Config) (logger.Logger, error) {
	l, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	if verbose {
		l.SetLevel(logger.DebugLevel)
	}
	logger.SetDefault(l)

	return l, nil
}

// bus creates the transports of the configured backend. All Prologix
// transports of one bus share a single controller connection.
type bus struct {
	cfg    *config.Config
	logger logger.Logger
	bench  *gpib.Bench
	dial   gpib.Dialer
}

func newBus(cfg *config.Config, l logger.Logger) (*bus, error) {
	b := &bus{cfg: cfg, logger: l}
	if cfg.Bus.Backend == config.BackendSim {
		b.bench = gpib.NewBench()
		return b, nil
	}

	dial, err := cfg.Bus.Dialer()
	if err != nil {
		return nil, err
	}
	b.dial = dial

	return b, nil
}

func (b *bus) transport(role device.Role) (gpib.Transport, error) {
	if b.bench != nil {
		if role == device.RoleSource {
			return gpib.NewSimTransport(b.bench.Source()), nil
		}

		return gpib.NewSimTransport(b.bench.Sensor()), nil
	}

	term, err := b.cfg.Messenger.TerminatorByte()
	if err != nil {
		return nil, err
	}

	tr, err := gpib.NewPrologixTransport(b.dial, b.cfg.Bus.PrologixOptions(term, b.logger)...)
	if err != nil {
		return nil, err
	}

	return tr, nil
}

func (b *bus) messengerOptions() ([]messenger.Option, error) {
	opts, err := b.cfg.Messenger.Options()
	if err != nil {
		return nil, err
	}

	return append(opts, messenger.WithLogger(b.logger)), nil
}

func (b *bus) deviceOptions() ([]device.Option, error) {
	grammar, err := b.cfg.Messenger.ResponseGrammar()
	if err != nil {
		return nil, err
	}
	mopts, err := b.messengerOptions()
	if err != nil {
		return nil, err
	}

	return []device.Option{
		device.WithGrammar(grammar),
		device.WithMessengerOptions(mopts...),
		device.WithLogger(b.logger),
	}, nil
}

// openDevice opens one instrument. Open resets the instrument.
func (b *bus) openDevice(ctx context.Context, role device.Role, addr gpib.Address, commands device.CommandSet) (*device.Device, error) {
	tr, err := b.transport(role)
	if err != nil {
		return nil, err
	}
	opts, err := b.deviceOptions()
	if err != nil {
		return nil, err
	}

	return device.Open(ctx, role, tr, addr, commands, opts...)
}

// openInstruments opens the configured source and sensor.
func (b *bus) openInstruments(ctx context.Context) (source, sensor *device.Device, err error) {
	srcAddr, err := b.cfg.Source.Address.Address()
	if err != nil {
		return nil, nil, fmt.Errorf("source: %w", err)
	}
	senAddr, err := b.cfg.Sensor.Address.Address()
	if err != nil {
		return nil, nil, fmt.Errorf("sensor: %w", err)
	}

	source, err = b.openDevice(ctx, device.RoleSource, srcAddr, b.cfg.Source.Commands())
	if err != nil {
		return nil, nil, err
	}
	sensor, err = b.openDevice(ctx, device.RoleSensor, senAddr, b.cfg.Sensor.Commands())
	if err != nil {
		_ = source.Close(ctx)
		return nil, nil, err
	}

	return source, sensor, nil
}

// openSinks opens the enabled outputs. The returned close function is never
// nil.
func openSinks(ctx context.Context, cfg *config.Config, l logger.Logger) (scan.Sink, func(), error) {
	var (
		sinks   scan.MultiSink
		closers []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				l.Warn("failed to close output", "error", err)
			}
		}
	}

	if cfg.Output.SQLite.Enabled {
		s, err := store.Open(cfg.Output.SQLite.Path, l)
		if err != nil {
			return nil, closeAll, err
		}
		sinks = append(sinks, s)
		closers = append(closers, s.Close)
	}

	if cfg.Output.Redis.Enabled {
		rc := cfg.Output.Redis
		p, err := publish.Dial(ctx,
			&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB},
			publish.WithChannel(rc.Channel),
			publish.WithListLen(rc.ListLen),
			publish.WithLogger(l),
		)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		sinks = append(sinks, p)
		closers = append(closers, p.Close)
	}

	if len(sinks) == 0 {
		return nil, closeAll, nil
	}

	return sinks, closeAll, nil
}

// openStore opens the SQLite output for the read-only commands.
func openStore(cfg *config.Config, l logger.Logger) (*store.SQLiteStore, error) {
	if cfg.Output.SQLite.Path == "" {
		return nil, errors.New("output.sqlite.path is empty")
	}

	return store.Open(cfg.Output.SQLite.Path, l)
}
