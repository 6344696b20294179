package broker

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

type Options struct {
	Host     string
	Port     string
	Username string
	Password string
	VHost    string
}

func DefaultOptions() Options {
	return Options{
		Host:     "localhost",
		Port:     "5672",
		Username: "guest",
		Password: "guest",
		VHost:    "/",
	}
}

func (o Options) BuildURL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%s/%s",
		url.QueryEscape(o.Username),
		url.QueryEscape(o.Password),
		o.Host,
		o.Port,
		url.PathEscape(o.VHost),
	)
}

// Publisher publishes envelopes to the game topic exchange. Safe for use
// from multiple goroutines; amqp channels are not, so publishes serialize on
// a mutex.
type Publisher struct {
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(opts Options) (*Publisher, error) {
	conn, err := amqp.Dial(opts.BuildURL())
	if err != nil {
		return nil, fmt.Errorf("broker: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("broker: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("broker: declare exchange: %w", err)
	}
	return &Publisher{conn: conn, ch: ch}, nil
}

// Publish sends an envelope under the given routing key.
func (p *Publisher) Publish(topic string, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("broker: marshal envelope: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Publish(Exchange, topic, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   time.Now(),
	})
}

func (p *Publisher) Close() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// Connected reports broker connectivity for health reporting.
func (p *Publisher) Connected() bool {
	return p.conn != nil && !p.conn.IsClosed()
}
