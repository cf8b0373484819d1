// broker/publisher.go
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"friendsnav/models"
)

// channel is the subset of *amqp091.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher sends every team view to a topic exchange under team.<id>.view.
type Publisher struct {
	conn     *amqp091.Connection
	ch       channel
	exchange string
	mutex    sync.Mutex
}

func Dial(url, exchange string) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	p, err := newPublisher(ch, exchange)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	log.Println("Connected to RabbitMQ")
	return p, nil
}

func newPublisher(ch channel, exchange string) (*Publisher, error) {
	err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &Publisher{ch: ch, exchange: exchange}, nil
}

func RoutingKey(teamID string) string {
	return fmt.Sprintf("team.%s.view", teamID)
}

func (p *Publisher) PublishView(ctx context.Context, vm *models.ViewModel) error {
	body, err := json.Marshal(vm)
	if err != nil {
		return fmt.Errorf("failed to marshal view: %w", err)
	}

	// an amqp channel must not be used from several goroutines at once
	p.mutex.Lock()
	defer p.mutex.Unlock()

	err = p.ch.PublishWithContext(ctx,
		p.exchange,            // exchange
		RoutingKey(vm.TeamID), // routing key
		false,                 // mandatory
		false,                 // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
			DeliveryMode: amqp091.Transient,
			Type:         "team-view",
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish view: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if err := p.ch.Close(); err != nil {
		log.Printf("Error closing RabbitMQ channel: %v", err)
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
