// Package discovery advertises the tool catalog to subscribers over a
// server-initiated stream. Each subscriber gets a full catalog on connect,
// then periodic catalog frames and, independently, keepalive pings.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"calendar-mcp/internal/metrics"
	"calendar-mcp/internal/registry"
)

// Event names written on the stream.
const (
	EventTools = "tools"
	EventPing  = "ping"
)

// Default timings.
const (
	DefaultCatalogInterval   = 30 * time.Second
	DefaultKeepaliveInterval = 10 * time.Second
	DefaultErrorBackoff      = 5 * time.Second
)

// Sink receives encoded events for one subscriber.
type Sink interface {
	Send(event string, data []byte) error
}

// State is the lifecycle position of one subscriber stream.
type State int

const (
	StateOpen State = iota
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config holds the broadcaster timings. Zero values take the defaults.
type Config struct {
	CatalogInterval   time.Duration `mapstructure:"catalog_interval"`
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval"`
	ErrorBackoff      time.Duration `mapstructure:"error_backoff"`
}

func (c Config) withDefaults() Config {
	if c.CatalogInterval <= 0 {
		c.CatalogInterval = DefaultCatalogInterval
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = DefaultErrorBackoff
	}
	return c
}

// Broadcaster serves discovery streams from a registry. One Broadcaster is
// shared by all subscribers; each Stream call runs independently.
type Broadcaster struct {
	registry *registry.Registry
	cfg      Config
	log      *zap.Logger
	now      func() time.Time

	nextID      atomic.Uint64
	subscribers atomic.Int64
}

// NewBroadcaster returns a Broadcaster over reg.
func NewBroadcaster(reg *registry.Registry, cfg Config, log *zap.Logger) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{
		registry: reg,
		cfg:      cfg.withDefaults(),
		log:      log,
		now:      time.Now,
	}
}

// Subscribers returns the number of open streams.
func (b *Broadcaster) Subscribers() int {
	return int(b.subscribers.Load())
}

// Stream feeds sink until ctx is done. Emission faults never end the
// stream: they are logged, then emission pauses for the backoff and resumes
// with a fresh catalog frame.
func (b *Broadcaster) Stream(ctx context.Context, sink Sink) {
	log := b.log.With(zap.Uint64("subscriber", b.nextID.Add(1)))
	state := StateOpen
	log.Debug("discovery stream", zap.Stringer("state", state))

	b.subscribers.Add(1)
	metrics.DiscoverySubscribers.Inc()
	defer func() {
		b.subscribers.Add(-1)
		metrics.DiscoverySubscribers.Dec()
		log.Debug("discovery stream", zap.Stringer("state", StateClosed))
	}()

	catalog := time.NewTicker(b.cfg.CatalogInterval)
	defer catalog.Stop()
	keepalive := time.NewTicker(b.cfg.KeepaliveInterval)
	defer keepalive.Stop()

	catalogDue := true
	for {
		if catalogDue {
			if err := b.sendCatalog(sink); err != nil {
				if !b.backoff(ctx, log, "catalog", err) {
					return
				}
				continue
			}
			catalogDue = false
			if state == StateOpen {
				state = StateStreaming
				log.Debug("discovery stream", zap.Stringer("state", state))
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-catalog.C:
			catalogDue = true
		case <-keepalive.C:
			if err := b.sendPing(sink); err != nil {
				if !b.backoff(ctx, log, "ping", err) {
					return
				}
				catalogDue = true
			}
		}
	}
}

// backoff logs a fault and waits out the backoff. It reports false when ctx
// ended during the wait.
func (b *Broadcaster) backoff(ctx context.Context, log *zap.Logger, stage string, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	metrics.DiscoveryFaultsTotal.WithLabelValues(stage).Inc()
	log.Warn("discovery emission failed; backing off",
		zap.String("stage", stage),
		zap.Duration("backoff", b.cfg.ErrorBackoff),
		zap.Error(err),
	)
	timer := time.NewTimer(b.cfg.ErrorBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (b *Broadcaster) sendCatalog(sink Sink) error {
	data, err := json.Marshal(BuildFrame(b.registry, b.log))
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := sink.Send(EventTools, data); err != nil {
		return fmt.Errorf("send catalog: %w", err)
	}
	metrics.DiscoveryFramesTotal.WithLabelValues(EventTools).Inc()
	return nil
}

func (b *Broadcaster) sendPing(sink Sink) error {
	ts := b.now().UTC().Format(time.RFC3339)
	if err := sink.Send(EventPing, []byte(ts)); err != nil {
		return fmt.Errorf("send ping: %w", err)
	}
	metrics.DiscoveryFramesTotal.WithLabelValues(EventPing).Inc()
	return nil
}
