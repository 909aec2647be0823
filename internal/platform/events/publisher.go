// Package events forwards recorded calculations to a RabbitMQ queue.
//
// A Publisher is an actor: one goroutine owns the AMQP connection and reads
// messages from a buffered mailbox, reconnecting whenever the broker drops
// the connection or channel. Publish never blocks the caller on the network.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

var (
	ErrClosed     = errors.New("publisher closed")
	ErrBufferFull = errors.New("publisher buffer full")

	errNotConnected = errors.New("not connected to broker")
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultBufferSize     = 256
)

type Config struct {
	URL            string
	Queue          string
	BufferSize     int
	ReconnectDelay time.Duration
	PublishTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = defaultPublishTimeout
	}
}

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	Close() error
}

type connection interface {
	Channel() (channel, error)
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	Close() error
}

type dialFunc func(url string) (connection, error)

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func dialAMQP(url string) (connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn}, nil
}

type Publisher struct {
	cfg     Config
	dial    dialFunc
	logger  zerolog.Logger
	mailbox chan []byte

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// owned by run
	conn       connection
	ch         channel
	connClosed chan *amqp.Error
	chanClosed chan *amqp.Error
}

// NewPublisher starts the publisher goroutine. The first connection attempt
// happens in the background; messages published before it succeeds wait in
// the mailbox.
func NewPublisher(cfg Config, logger zerolog.Logger) *Publisher {
	return newPublisher(cfg, dialAMQP, logger)
}

func newPublisher(cfg Config, dial dialFunc, logger zerolog.Logger) *Publisher {
	cfg.applyDefaults()
	p := &Publisher{
		cfg:     cfg,
		dial:    dial,
		logger:  logger.With().Str("component", "amqp_publisher").Str("queue", cfg.Queue).Logger(),
		mailbox: make(chan []byte, cfg.BufferSize),
		done:    make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Publish queues body for delivery.
func (p *Publisher) Publish(ctx context.Context, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.mailbox <- body:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops the publisher, delivering what is already queued if the broker
// is reachable, and waits for the goroutine to exit.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() { close(p.done) })
	p.wg.Wait()
}

func (p *Publisher) run() {
	defer p.wg.Done()
	defer p.disconnect()

	for {
		if p.ch == nil {
			if err := p.connect(); err != nil {
				p.logger.Warn().Err(err).Dur("retry_in", p.cfg.ReconnectDelay).Msg("broker connect failed")
				select {
				case <-time.After(p.cfg.ReconnectDelay):
					continue
				case <-p.done:
					p.discard()
					return
				}
			}
			p.logger.Info().Msg("connected to broker")
		}

		select {
		case <-p.done:
			p.drain()
			return
		case body := <-p.mailbox:
			if err := p.push(body); err != nil {
				p.logger.Warn().Err(err).Msg("publish failed, reconnecting")
				p.disconnect()
				p.requeue(body)
			}
		case err := <-p.connClosed:
			p.logger.Warn().Err(err).Msg("broker connection closed")
			p.disconnect()
		case err := <-p.chanClosed:
			p.logger.Warn().Err(err).Msg("broker channel closed")
			p.disconnect()
		}
	}
}

func (p *Publisher) drain() {
	for {
		select {
		case body := <-p.mailbox:
			if err := p.push(body); err != nil {
				p.logger.Warn().Err(err).Int("dropped", len(p.mailbox)+1).Msg("publish failed during shutdown")
				return
			}
		default:
			return
		}
	}
}

// discard reports messages left in the mailbox when the publisher closes
// without a broker connection.
func (p *Publisher) discard() {
	if n := len(p.mailbox); n > 0 {
		p.logger.Warn().Int("dropped", n).Msg("publisher closed while disconnected")
	}
}

func (p *Publisher) requeue(body []byte) {
	select {
	case p.mailbox <- body:
	default:
		p.logger.Error().Msg("mailbox full, message dropped")
	}
}

func (p *Publisher) connect() error {
	conn, err := p.dial(p.cfg.URL)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	if _, err := ch.QueueDeclare(p.cfg.Queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return err
	}
	p.conn = conn
	p.ch = ch
	p.connClosed = conn.NotifyClose(make(chan *amqp.Error, 1))
	p.chanClosed = ch.NotifyClose(make(chan *amqp.Error, 1))
	return nil
}

func (p *Publisher) disconnect() {
	if p.ch != nil {
		if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			p.logger.Debug().Err(err).Msg("close channel")
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			p.logger.Debug().Err(err).Msg("close connection")
		}
	}
	p.ch, p.conn = nil, nil
	p.connClosed, p.chanClosed = nil, nil
}

func (p *Publisher) push(body []byte) error {
	if p.ch == nil {
		return errNotConnected
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PublishTimeout)
	defer cancel()
	return p.ch.PublishWithContext(ctx, "", p.cfg.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}
