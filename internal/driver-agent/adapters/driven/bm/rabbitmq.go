package bm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"driver-agent/internal/config"
	"driver-agent/internal/driver-agent/core/myerrors"
	"driver-agent/internal/mylogger"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dispatchExchangeName = "dispatch_topic"  // topic
	locationExchangeName = "location_fanout" // fanout
	publishTimeout       = 3 * time.Second
)

// RabbitMQ holds one connection shared by the assignment transport and the
// location sink. Each subscription gets its own channel so closing one does
// not affect publishing.
type RabbitMQ struct {
	cfg  *config.RabbitMqconfig
	log  mylogger.Logger
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex
}

func New(rabbitmqCfg *config.RabbitMqconfig, log mylogger.Logger) (*RabbitMQ, error) {
	r := &RabbitMQ{
		cfg: rabbitmqCfg,
		log: log,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.connectLocked(); err != nil {
		return nil, fmt.Errorf("rabbit connect: %w", err)
	}
	return r, nil
}

func URL(cfg *config.RabbitMqconfig) string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.VHost,
	)
}

func (r *RabbitMQ) PublishJSON(ctx context.Context, exchange, routingKey string, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	ch, err := r.channel()
	if err != nil {
		return err
	}
	pubctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := ch.PublishWithContext(pubctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	}); err != nil {
		return fmt.Errorf("%w: publish to %s: %v", myerrors.ErrTransport, exchange, err)
	}
	return nil
}

func (r *RabbitMQ) IsAlive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aliveLocked()
}

func (r *RabbitMQ) aliveLocked() bool {
	if r.conn == nil || r.conn.IsClosed() {
		return false
	}
	if r.ch == nil || r.ch.IsClosed() {
		return false
	}
	return true
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch != nil && !r.ch.IsClosed() {
		if err := r.ch.Close(); err != nil {
			return fmt.Errorf("close channel: %w", err)
		}
	}
	if r.conn != nil && !r.conn.IsClosed() {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("close connection: %w", err)
		}
	}
	return nil
}

// channel returns the publishing channel, reconnecting once if the broker
// dropped us. Longer outages are retried by the callers' own policies.
func (r *RabbitMQ) channel() (*amqp.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.aliveLocked() {
		r.log.Action("mb_reconnecting").Info("amqp connection lost, reconnecting")
		if err := r.connectLocked(); err != nil {
			return nil, fmt.Errorf("%w: amqp closed: %v", myerrors.ErrTransport, err)
		}
		r.log.Action("mb_reconnection_completed").Info("reconnected")
	}
	return r.ch, nil
}

// openChannel opens a dedicated channel for one subscription.
func (r *RabbitMQ) openChannel() (*amqp.Channel, error) {
	if _, err := r.channel(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: open channel: %v", myerrors.ErrTransport, err)
	}
	return ch, nil
}

func (r *RabbitMQ) connectLocked() error {
	if r.conn != nil && !r.conn.IsClosed() {
		_ = r.conn.Close()
	}
	conn, err := amqp.Dial(URL(r.cfg))
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := declareExchanges(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	r.conn = conn
	r.ch = ch
	return nil
}

func declareExchanges(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dispatchExchangeName, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", dispatchExchangeName, err)
	}
	if err := ch.ExchangeDeclare(locationExchangeName, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", locationExchangeName, err)
	}
	return nil
}
