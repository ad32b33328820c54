package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/marketingkamdi24/Videoberatung-kamdi24/internal/dispatch"
)

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Options struct {
	Exchange string
	Producer string
	Timeout  time.Duration
	Logger   *slog.Logger
	NewID    func() string
}

// Publisher forwards lifecycle events to a topic exchange. It is a
// dispatch.Observer; run it behind a dispatch.AsyncObserver since every
// publish is a network round trip.
type Publisher struct {
	conn interface{ Close() error }

	mu sync.Mutex
	ch channel

	exchange string
	producer string
	timeout  time.Duration
	log      *slog.Logger
	newID    func() string
}

// Connect dials the broker, declares the durable topic exchange and returns
// a ready publisher.
func Connect(ctx context.Context, conn ConnectionOptions, opts Options) (*Publisher, error) {
	if opts.Exchange == "" {
		return nil, errors.New("events: exchange is required")
	}
	c, err := DialWithRetry(ctx, conn)
	if err != nil {
		return nil, err
	}
	ch, err := c.Channel()
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(opts.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = c.Close()
		return nil, err
	}
	p := newPublisher(ch, opts)
	p.conn = c
	return p, nil
}

func newPublisher(ch channel, opts Options) *Publisher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Producer == "" {
		opts.Producer = "dispatcher"
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Publisher{
		ch:       ch,
		exchange: opts.Exchange,
		producer: opts.Producer,
		timeout:  opts.Timeout,
		log:      opts.Logger,
		newID:    opts.NewID,
	}
}

func (p *Publisher) Publish(ctx context.Context, e dispatch.LifecycleEvent) error {
	env := NewEnvelope(p.newID(), p.producer, e)
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: env.Meta.CorrelationID,
		Timestamp:     env.Meta.Time,
		Type:          env.Meta.Type,
		AppId:         p.producer,
		Body:          body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(e.Type), false, false, msg)
}

func (p *Publisher) Observe(e dispatch.LifecycleEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.Publish(ctx, e); err != nil {
		p.log.Error("publish lifecycle event", slog.String("type", string(e.Type)), slog.Any("error", err))
	}
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.ch.Close()
	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}
	return err
}
