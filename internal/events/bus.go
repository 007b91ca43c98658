// Portal - Client Portal Real-Time Collaboration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portal

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
)

// DefaultTopic is the subject mutations are published on.
const DefaultTopic = "portal.mutations"

// ErrBusClosed is returned when publishing on a closed bus.
var ErrBusClosed = errors.New("mutation bus is closed")

// Bus publishes and subscribes to mutations on one topic.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	topic      string
	logger     watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
	// closers run in order on Close.
	closers []func() error
}

// NewMemoryBus returns an in-process bus on a watermill gochannel.
func NewMemoryBus(topic string, logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	if topic == "" {
		topic = DefaultTopic
	}

	gc := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, logger)

	return &Bus{
		publisher:  gc,
		subscriber: gc,
		topic:      topic,
		logger:     logger,
		closers:    []func() error{gc.Close},
	}
}

// NATSConfig configures the NATS backend.
type NATSConfig struct {
	URL   string
	Topic string
	// Subscribers is the number of parallel subscriptions. Values above one
	// use a queue group so each message is handled once.
	Subscribers   int
	MaxReconnects int
	ReconnectWait time.Duration
	CloseTimeout  time.Duration
}

// DefaultNATSConfig returns production defaults for url.
func DefaultNATSConfig(url string) NATSConfig {
	return NATSConfig{
		URL:           url,
		Topic:         DefaultTopic,
		Subscribers:   1,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		CloseTimeout:  30 * time.Second,
	}
}

// NewNATSBus connects a publisher and subscriber to NATS in core mode.
func NewNATSBus(cfg NATSConfig, logger watermill.LoggerAdapter) (*Bus, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Subscribers < 1 {
		cfg.Subscribers = 1
	}

	natsOpts := []natsgo.Option{
		natsgo.Name("portal"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create NATS publisher: %w", err)
	}

	subCfg := wmNats.SubscriberConfig{
		URL:              cfg.URL,
		SubscribersCount: cfg.Subscribers,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}
	if cfg.Subscribers > 1 {
		subCfg.QueueGroupPrefix = "portal"
	}

	sub, err := wmNats.NewSubscriber(subCfg, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create NATS subscriber: %w", err)
	}

	return &Bus{
		publisher:  pub,
		subscriber: sub,
		topic:      cfg.Topic,
		logger:     logger,
		closers:    []func() error{pub.Close, sub.Close},
	}, nil
}

// Topic returns the subject mutations travel on.
func (b *Bus) Topic() string { return b.topic }

// Subscriber returns the bus subscriber for the router.
func (b *Bus) Subscriber() message.Subscriber { return b.subscriber }

// Publish sends m with a fresh message id.
func (b *Bus) Publish(ctx context.Context, m Mutation) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode mutation: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("kind", string(m.Kind))
	msg.SetContext(ctx)

	if err := b.publisher.Publish(b.topic, msg); err != nil {
		return fmt.Errorf("publish %s mutation: %w", m.Kind, err)
	}
	return nil
}

// Close shuts down the publisher and subscriber.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	for _, closeFn := range b.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
