package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"driver-agent/internal/config"
	"driver-agent/internal/driver-agent/core/domain/dto"
	"driver-agent/internal/driver-agent/core/domain/model"
	"driver-agent/internal/driver-agent/core/myerrors"
	"driver-agent/internal/driver-agent/core/ports/driven"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// LocationSink produces samples to a Kafka topic keyed by driver id, so all
// samples of one driver land on the same partition in order.
type LocationSink struct {
	writer messageWriter
}

var _ driven.ILocationSink = (*LocationSink)(nil)

func NewKafkaProducer(cfg *config.Kafkaconfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(Brokers(cfg.Brokers)...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

func NewLocationSink(writer messageWriter) *LocationSink {
	return &LocationSink{writer: writer}
}

// Brokers splits a comma separated broker list.
func Brokers(list string) []string {
	var out []string
	for _, b := range strings.Split(list, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func (s *LocationSink) SendLocation(ctx context.Context, driverID string, sample model.LocationSample) error {
	body, err := json.Marshal(dto.LocationUpdateRequest{DriverID: driverID, LocationSample: sample})
	if err != nil {
		return fmt.Errorf("marshal location: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(driverID),
		Value: body,
		Time:  time.UnixMilli(sample.CapturedAtEpochMs),
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%w: kafka write: %v", myerrors.ErrTransport, err)
	}
	return nil
}

func (s *LocationSink) Close() error {
	return s.writer.Close()
}
