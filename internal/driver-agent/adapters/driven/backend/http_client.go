package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"driver-agent/internal/driver-agent/core/domain/dto"
	"driver-agent/internal/driver-agent/core/domain/model"
	"driver-agent/internal/driver-agent/core/myerrors"
	"driver-agent/internal/driver-agent/core/ports/driven"
	"driver-agent/internal/mylogger"
)

const maxErrorBody = 512

// StatusError is a non-2xx answer from the dispatch backend. It unwraps to
// the matching myerrors sentinel.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusNotFound || e.Code == http.StatusConflict:
		// 409 is deliberately read like 404: the order is gone or already
		// claimed by someone else
		return myerrors.ErrOfferConflict
	case e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden:
		return myerrors.ErrProtocol
	case e.Code >= 500, e.Code == http.StatusRequestTimeout, e.Code == http.StatusTooManyRequests:
		return myerrors.ErrTransport
	default:
		return myerrors.ErrMalformedPayload
	}
}

// Client talks to the dispatch backend REST API on behalf of one driver.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	log     mylogger.Logger
}

var (
	_ driven.IDispatchBackend = (*Client)(nil)
	_ driven.ILocationSink    = (*Client)(nil)
)

func NewClient(baseURL, token string, timeout time.Duration, log mylogger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimPrefix(token, "Bearer "),
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (c *Client) AcceptOffer(ctx context.Context, req dto.OfferResponseRequest) error {
	return c.do(ctx, http.MethodPost, "/orders/"+url.PathEscape(req.OrderID)+"/accept", req, nil)
}

func (c *Client) DeclineOffer(ctx context.Context, req dto.OfferResponseRequest) error {
	return c.do(ctx, http.MethodPost, "/orders/"+url.PathEscape(req.OrderID)+"/decline", req, nil)
}

func (c *Client) CreateTrip(ctx context.Context, req dto.TripCreateRequest) error {
	return c.do(ctx, http.MethodPost, "/trips", req, map[string]string{
		"Idempotency-Key": req.IdempotencyKey,
	})
}

func (c *Client) UpdateTripStatus(ctx context.Context, req dto.TripStatusRequest) error {
	return c.do(ctx, http.MethodPatch, "/trips/"+url.PathEscape(req.OrderID)+"/status", req, nil)
}

func (c *Client) SendLocation(ctx context.Context, driverID string, sample model.LocationSample) error {
	return c.do(ctx, http.MethodPost, "/drivers/"+url.PathEscape(driverID)+"/location", dto.LocationUpdateRequest{
		DriverID:       driverID,
		LocationSample: sample,
	}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", myerrors.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	serr := &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	c.log.Action("backend_call").Debug("backend returned an error status",
		"method", method, "path", path, "status", resp.StatusCode)
	return serr
}
