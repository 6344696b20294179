package broker

import (
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const reconnectInterval = 3 * time.Second

// Handler receives every decoded envelope matching the subscription. Returned
// errors are logged; delivery is best-effort, at-most-once.
type Handler func(Envelope)

// Subscriber consumes envelopes from the topic exchange on an exclusive
// auto-deleted queue, reconnecting until closed.
type Subscriber struct {
	opts    Options
	queue   string
	pattern string
	handler Handler
	log     *zap.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	quit    chan struct{}
	stopped chan struct{}
}

func NewSubscriber(opts Options, queue, pattern string, handler Handler, log *zap.Logger) *Subscriber {
	return &Subscriber{
		opts:    opts,
		queue:   queue,
		pattern: pattern,
		handler: handler,
		log:     log,
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (s *Subscriber) Start() {
	go func() {
		defer close(s.stopped)
		for {
			select {
			case <-s.quit:
				return
			default:
			}
			if err := s.consume(); err != nil {
				select {
				case <-s.quit:
					return
				default:
					s.log.Warn("broker subscriber disconnected, retrying",
						zap.String("queue", s.queue), zap.Error(err))
					time.Sleep(reconnectInterval)
				}
			}
		}
	}()
}

func (s *Subscriber) consume() error {
	conn, err := amqp.Dial(s.opts.BuildURL())
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("channel: %w", err)
	}
	cleanup := func() {
		_ = ch.Close()
		_ = conn.Close()
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		cleanup()
		return err
	}
	// an empty queue name gets a server-generated one
	q, err := ch.QueueDeclare(s.queue, false, true, true, false, nil)
	if err != nil {
		cleanup()
		return err
	}
	if err := ch.QueueBind(q.Name, s.pattern, Exchange, false, nil); err != nil {
		cleanup()
		return err
	}
	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		cleanup()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	notifyClose := make(chan *amqp.Error, 1)
	ch.NotifyClose(notifyClose)

	for {
		select {
		case <-s.quit:
			cleanup()
			return nil
		case err := <-notifyClose:
			cleanup()
			return err
		case d, ok := <-msgs:
			if !ok {
				cleanup()
				return fmt.Errorf("delivery channel closed")
			}
			env, err := DecodeEnvelope(d.Body)
			if err != nil {
				s.log.Warn("broker envelope dropped", zap.Error(err))
				continue
			}
			s.handler(env)
		}
	}
}

func (s *Subscriber) Close() {
	select {
	case <-s.quit:
	default:
		close(s.quit)
	}
	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.mu.Unlock()
	<-s.stopped
}
