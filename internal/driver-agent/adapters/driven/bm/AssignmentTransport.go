package bm

import (
	"context"
	"fmt"

	"driver-agent/internal/driver-agent/core/myerrors"
	"driver-agent/internal/driver-agent/core/ports/driven"
	"driver-agent/internal/mylogger"
)

func AssignmentKey(driverID string) string {
	return "driver." + driverID + ".assignments"
}

// AssignmentTransport consumes driver.{id}.assignments from the dispatch
// topic exchange through an exclusive, auto-deleted queue.
type AssignmentTransport struct {
	broker *RabbitMQ
	log    mylogger.Logger
}

var _ driven.IAssignmentTransport = (*AssignmentTransport)(nil)

func NewAssignmentTransport(broker *RabbitMQ, log mylogger.Logger) *AssignmentTransport {
	return &AssignmentTransport{broker: broker, log: log}
}

// subscription is written by a single goroutine; err is set before out is closed.
type subscription struct {
	out chan []byte
	err error
}

func (s *subscription) Payloads() <-chan []byte { return s.out }

func (s *subscription) Err() error { return s.err }

func (t *AssignmentTransport) Subscribe(ctx context.Context, driverID string) (driven.ISubscription, error) {
	ch, err := t.broker.openChannel()
	if err != nil {
		return nil, err
	}
	fail := func(step string, err error) (driven.ISubscription, error) {
		_ = ch.Close()
		return nil, fmt.Errorf("%w: %s: %v", myerrors.ErrTransport, step, err)
	}

	q, err := ch.QueueDeclare(
		"",
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fail("queue declare", err)
	}
	key := AssignmentKey(driverID)
	if err := ch.QueueBind(q.Name, key, dispatchExchangeName, false, nil); err != nil {
		return fail("queue bind", err)
	}
	deliveries, err := ch.Consume(
		q.Name,
		"",    // consumer tag
		true,  // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fail("consume", err)
	}

	l := t.log.Action("amqp_subscription").With("driver_id", driverID, "binding_key", key)
	sub := &subscription{out: make(chan []byte)}
	go func() {
		defer close(sub.out)
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-deliveries:
				if !ok {
					l.Warn("delivery channel closed by broker")
					sub.err = fmt.Errorf("%w: delivery channel closed by broker", myerrors.ErrTransport)
					return
				}
				select {
				case sub.out <- m.Body:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	l.Info("subscribed to assignments")
	return sub, nil
}
