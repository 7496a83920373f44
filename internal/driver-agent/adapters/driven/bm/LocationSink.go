package bm

import (
	"context"

	"driver-agent/internal/driver-agent/core/domain/dto"
	"driver-agent/internal/driver-agent/core/domain/model"
	"driver-agent/internal/driver-agent/core/ports/driven"
)

func LocationKey(driverID string) string {
	return "driver." + driverID + ".location"
}

// LocationSink publishes samples to the location fanout exchange.
type LocationSink struct {
	broker *RabbitMQ
}

var _ driven.ILocationSink = (*LocationSink)(nil)

func NewLocationSink(broker *RabbitMQ) *LocationSink {
	return &LocationSink{broker: broker}
}

func (s *LocationSink) SendLocation(ctx context.Context, driverID string, sample model.LocationSample) error {
	return s.broker.PublishJSON(ctx, locationExchangeName, LocationKey(driverID), dto.LocationUpdateRequest{
		DriverID:       driverID,
		LocationSample: sample,
	})
}
