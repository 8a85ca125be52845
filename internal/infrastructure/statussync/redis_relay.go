package statussync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/alem-hub/engagement-hub/internal/application/escalation"
	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
	redisstore "github.com/alem-hub/engagement-hub/internal/infrastructure/persistence/redis"
)

// ══════════════════════════════════════════════════════════════════════════════
// BROKER
// ══════════════════════════════════════════════════════════════════════════════

// BrokerMessage is a message received from the broker.
type BrokerMessage struct {
	Channel string
	Payload string
	Err     error
}

// Broker is the pub/sub surface the relay needs.
type Broker interface {
	Publish(ctx context.Context, channel string, message any) error
	Subscribe(ctx context.Context, channel string) (<-chan BrokerMessage, func() error, error)
}

// RedisBroker adapts the Redis cache to Broker.
type RedisBroker struct {
	cache *redisstore.Cache
}

// NewRedisBroker creates a broker over cache.
func NewRedisBroker(cache *redisstore.Cache) *RedisBroker {
	return &RedisBroker{cache: cache}
}

// Publish implements Broker.
func (b *RedisBroker) Publish(ctx context.Context, channel string, message any) error {
	return b.cache.Publish(ctx, channel, message)
}

// Subscribe implements Broker. The subscription is confirmed before returning.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (<-chan BrokerMessage, func() error, error) {
	ps := b.cache.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan BrokerMessage)
	in := ps.Channel()
	go func() {
		defer close(out)
		for msg := range in {
			select {
			case out <- BrokerMessage{Channel: msg.Channel, Payload: msg.Payload}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, ps.Close, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RELAY
// ══════════════════════════════════════════════════════════════════════════════

type relayEnvelope struct {
	InstanceID string                  `json:"instance_id"`
	StudentID  string                  `json:"student_id"`
	Update     engagement.StatusUpdate `json:"update"`
}

// RelayConfig configures RedisRelay.
type RelayConfig struct {
	Broker Broker

	// Local receives updates published here and by other instances.
	Local escalation.StatusPublisher

	// Channel defaults to redisstore.ChannelStatus.
	Channel string

	// InstanceID filters self-published messages. Defaults to a random UUID.
	InstanceID string

	Logger *slog.Logger
}

// RedisRelay shares status updates between service instances so a client
// connected to one instance sees transitions applied by another.
type RedisRelay struct {
	broker     Broker
	local      escalation.StatusPublisher
	channel    string
	instanceID string
	logger     *slog.Logger
	metrics    *Metrics

	mu     sync.RWMutex
	closed bool
}

// NewRedisRelay creates a relay. Run must be started to receive remote updates.
func NewRedisRelay(config RelayConfig) (*RedisRelay, error) {
	if config.Broker == nil {
		return nil, errors.New("statussync: broker is required")
	}
	if config.Local == nil {
		config.Local = Nop{}
	}
	if config.Channel == "" {
		config.Channel = redisstore.ChannelStatus
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &RedisRelay{
		broker:     config.Broker,
		local:      config.Local,
		channel:    config.Channel,
		instanceID: config.InstanceID,
		logger:     config.Logger.With("component", "status_relay", "instance_id", config.InstanceID),
		metrics:    &Metrics{},
	}, nil
}

// InstanceID returns the relay's identity on the channel.
func (r *RedisRelay) InstanceID() string { return r.instanceID }

// Metrics returns the relay's counters.
func (r *RedisRelay) Metrics() *Metrics { return r.metrics }

// Publish delivers locally, then broadcasts to other instances. A broker
// failure is returned but never prevents local delivery.
func (r *RedisRelay) Publish(ctx context.Context, studentID string, update engagement.StatusUpdate) error {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	localErr := r.local.Publish(ctx, studentID, update)

	r.metrics.published.Add(1)
	env := relayEnvelope{InstanceID: r.instanceID, StudentID: studentID, Update: update}
	if err := r.broker.Publish(ctx, r.channel, env); err != nil {
		r.logger.Warn("status relay publish failed", "student_id", studentID, "error", err)
		return errors.Join(localErr, fmt.Errorf("relay publish: %w", err))
	}
	return localErr
}

// Run consumes remote updates until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	messages, closeSub, err := r.broker.Subscribe(ctx, r.channel)
	if err != nil {
		return fmt.Errorf("start status relay: %w", err)
	}
	defer func() { _ = closeSub() }()

	r.logger.Info("status relay started", "channel", r.channel)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("status relay stopped")
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if msg.Err != nil {
				r.logger.Error("status relay subscription error", "error", msg.Err)
				continue
			}
			r.handle(ctx, msg)
		}
	}
}

func (r *RedisRelay) handle(ctx context.Context, msg BrokerMessage) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		r.logger.Error("malformed status relay message", "error", err)
		return
	}
	if env.InstanceID == r.instanceID || env.StudentID == "" {
		return
	}

	r.metrics.relayed.Add(1)
	if err := r.local.Publish(ctx, env.StudentID, env.Update); err != nil {
		r.logger.Warn("remote status update not delivered", "student_id", env.StudentID, "error", err)
	}
}

// Close stops accepting publishes. Run exits with its context.
func (r *RedisRelay) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}
