package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/go-ivscan/config"
	"github.com/arloliu/go-ivscan/logger"
	"github.com/arloliu/go-ivscan/monitor"
	"github.com/arloliu/go-ivscan/scan"
)

const shutdownTimeout = 5 * time.Second

// session holds everything a measurement command sets up around one
// controller: outputs, metrics and the optional monitor server.
type session struct {
	cfg        *config.Config
	logger     logger.Logger
	controller *scan.Controller
	runs       *monitor.Registry
	server     *monitor.Server
	closeSinks func()

	ctx    context.Context
	cancel context.CancelFunc
}

// newSession opens both instruments and creates the controller for plan.
// Interrupt and termination signals cancel the session context, which makes
// the run abort.
func newSession(parent context.Context, cfg *config.Config, l logger.Logger, plan scan.RampPlan, runID string) (*session, error) {
	b, err := newBus(cfg, l)
	if err != nil {
		return nil, err
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	s := &session{cfg: cfg, logger: l, ctx: ctx, cancel: cancel, closeSinks: func() {}}

	sink, closeSinks, err := openSinks(ctx, cfg, l)
	if err != nil {
		cancel()
		return nil, err
	}
	s.closeSinks = closeSinks

	source, sensor, err := b.openInstruments(ctx)
	if err != nil {
		s.close()
		return nil, err
	}
	fail := func(err error) (*session, error) {
		_ = source.Close(ctx)
		_ = sensor.Close(ctx)
		s.close()

		return nil, err
	}

	metrics := &scan.Metrics{}
	opts := []scan.Option{
		scan.WithSourceIdentity(cfg.Source.Identity.Identity()),
		scan.WithSensorIdentity(cfg.Sensor.Identity.Identity()),
		scan.WithMetrics(metrics),
		scan.WithLogger(l),
	}
	if sink != nil {
		opts = append(opts, scan.WithSink(sink))
	}
	if runID != "" {
		opts = append(opts, scan.WithRunID(runID))
	}

	ctrl, err := scan.NewController(source, sensor, plan, opts...)
	if err != nil {
		return fail(err)
	}
	s.controller = ctrl

	s.runs = monitor.NewRegistry()
	if err := s.runs.Register(ctrl.RunID(), ctrl, cancel); err != nil {
		return fail(err)
	}

	if cfg.Monitor.Enabled {
		reg := monitor.NewPrometheusRegistry()
		err := errors.Join(
			monitor.RegisterScanMetrics(reg, metrics),
			monitor.RegisterMessengerMetrics(reg, source.Role().String(), source.Metrics()),
			monitor.RegisterMessengerMetrics(reg, sensor.Role().String(), sensor.Metrics()),
			monitor.RegisterRegistryMetrics(reg, s.runs),
		)
		if err != nil {
			return fail(err)
		}
		if err := s.startMonitor(reg); err != nil {
			return fail(err)
		}
	}

	return s, nil
}

func (s *session) startMonitor(reg *prometheus.Registry) error {
	s.server = monitor.NewServer(s.cfg.Monitor.Address, s.runs, reg, s.logger)
	addr, err := s.server.Start()
	if err != nil {
		s.server = nil
		return err
	}
	s.logger.Info("monitor listening", "address", addr, "run_id", s.controller.RunID())

	return nil
}

// close stops the monitor server and closes the outputs.
func (s *session) close() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := s.server.Stop(ctx); err != nil {
			s.logger.Warn("failed to stop monitor server", "error", err)
		}
		cancel()
	}
	s.closeSinks()
	s.cancel()
}
