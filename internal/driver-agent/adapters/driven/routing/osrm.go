package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"driver-agent/internal/driver-agent/core/domain/dto"
	"driver-agent/internal/driver-agent/core/domain/model"
	"driver-agent/internal/driver-agent/core/myerrors"
	"driver-agent/internal/driver-agent/core/ports/driven"
)

// OSRMClient fetches driving legs from an OSRM compatible route service.
type OSRMClient struct {
	baseURL string
	client  *http.Client
}

var _ driven.IRoutingClient = (*OSRMClient)(nil)

func NewOSRMClient(baseURL string, timeout time.Duration) *OSRMClient {
	return &OSRMClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *OSRMClient) Leg(ctx context.Context, from, to model.Coord) (model.RouteLeg, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%s;%s?overview=false", c.baseURL, lngLat(from), lngLat(to))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.RouteLeg{}, fmt.Errorf("creating route request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return model.RouteLeg{}, fmt.Errorf("%w: route request: %v", myerrors.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.RouteLeg{}, fmt.Errorf("%w: route service returned status %d", myerrors.ErrTransport, resp.StatusCode)
	}

	var body dto.RouteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.RouteLeg{}, fmt.Errorf("%w: decoding route: %v", myerrors.ErrMalformedPayload, err)
	}
	if body.Code != "Ok" || len(body.Routes) == 0 {
		return model.RouteLeg{}, fmt.Errorf("%w: no route (code %q)", myerrors.ErrMalformedPayload, body.Code)
	}

	route := body.Routes[0]
	return model.RouteLeg{
		DistanceM: route.Distance,
		DurationS: route.Duration,
		Geometry:  route.Geometry,
	}, nil
}

func lngLat(c model.Coord) string {
	return strconv.FormatFloat(c.Longitude, 'f', 6, 64) + "," + strconv.FormatFloat(c.Latitude, 'f', 6, 64)
}
