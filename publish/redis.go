package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/arloliu/go-ivscan/logger"
	"github.com/arloliu/go-ivscan/scan"
)

// RedisPublisher is a scan.Sink publishing events through Redis.
type RedisPublisher struct {
	client *redis.Client
	cfg    *config
	logger logger.Logger
}

var _ scan.Sink = (*RedisPublisher)(nil)

// Dial connects to the Redis server described by ropts and checks the
// connection with PING.
func Dial(ctx context.Context, ropts *redis.Options, opts ...Option) (*RedisPublisher, error) {
	client := redis.NewClient(ropts)

	p, err := New(client, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", ropts.Addr, err)
	}
	p.logger.Info("redis connected", "addr", ropts.Addr)

	return p, nil
}

// New wraps an existing client. Close closes the client.
func New(client *redis.Client, opts ...Option) (*RedisPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("publish: client is nil")
	}

	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &RedisPublisher{
		client: client,
		cfg:    cfg,
		logger: cfg.logger.With("component", "publish", "channel", cfg.channel),
	}, nil
}

// ListKey returns the key of the event list of a run.
func (p *RedisPublisher) ListKey(runID string) string {
	return p.cfg.keyPrefix + runID + ":events"
}

// Channel returns the Pub/Sub channel.
func (p *RedisPublisher) Channel() string { return p.cfg.channel }

func (p *RedisPublisher) StartRun(ctx context.Context, run scan.RunInfo) error {
	return p.emit(ctx, EventRunStarted, run.ID, RunStarted{
		Voltages:     run.Plan.Voltages,
		TestVoltage:  run.Plan.TestVoltage,
		Settle:       run.Plan.Settle,
		TestDuration: run.Plan.TestDuration,
		Repetitions:  run.Plan.Repetitions,
		RampDown:     run.Plan.RampDown,
		StartedAt:    run.StartedAt,
	})
}

func (p *RedisPublisher) AddPoint(ctx context.Context, runID string, point scan.ResultPoint) error {
	return p.emit(ctx, EventPoint, runID, point)
}

func (p *RedisPublisher) AddStabilitySample(ctx context.Context, runID string, s scan.StabilitySample) error {
	return p.emit(ctx, EventStabilitySample, runID, s)
}

func (p *RedisPublisher) FinishRun(ctx context.Context, result *scan.Result) error {
	data := RunFinished{
		State:            result.State,
		Points:           len(result.Points),
		StabilitySamples: len(result.Stability),
		FinishedAt:       result.FinishedAt,
	}
	if result.Err != nil {
		data.Error = result.Err.Error()
	}

	return p.emit(ctx, EventRunFinished, result.RunID, data)
}

// emit publishes the event, then appends it to the run list. A failed list
// update is logged; only a failed publish is returned.
func (p *RedisPublisher) emit(ctx context.Context, typ EventType, runID string, data any) error {
	ev, err := newEvent(typ, runID, p.cfg.clock.Now(), data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", typ, err)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", typ, err)
	}

	if err := p.client.Publish(ctx, p.cfg.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", typ, err)
	}

	if p.cfg.listLen == 0 {
		return nil
	}

	key := p.ListKey(runID)
	pipe := p.client.Pipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, p.cfg.listLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		p.logger.Warn("failed to append event to run list", "key", key, "type", typ, "error", err)
	}

	return nil
}

// History returns the stored events of a run, oldest first.
func (p *RedisPublisher) History(ctx context.Context, runID string) ([]Event, error) {
	raw, err := p.client.LRange(ctx, p.ListKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run list: %w", err)
	}

	events := make([]Event, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var ev Event
		if err := json.Unmarshal([]byte(raw[i]), &ev); err != nil {
			p.logger.Warn("skipping malformed event", "run_id", runID, "error", err)
			continue
		}
		events = append(events, ev)
	}

	return events, nil
}

// Close closes the Redis client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
