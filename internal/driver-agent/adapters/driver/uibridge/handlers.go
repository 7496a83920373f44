package uibridge

import (
	"context"
	"errors"
	"net/http"

	"driver-agent/internal/driver-agent/core/domain/model"
	"driver-agent/internal/driver-agent/core/myerrors"

	"github.com/gin-gonic/gin"
)

type advanceRequest struct {
	To model.TripAdvance `json:"to" binding:"required,oneof=PICKUP DELIVERED"`
}

type connectivityRequest struct {
	Connected *bool `json:"connected" binding:"required"`
}

type positionRequest struct {
	Latitude     *float64 `json:"latitude" binding:"required,min=-90,max=90"`
	Longitude    *float64 `json:"longitude" binding:"required,min=-180,max=180"`
	HeadingDeg   float64  `json:"heading_deg"`
	SpeedMps     float64  `json:"speed_mps"`
	AccuracyM    float64  `json:"accuracy_m"`
	AltitudeM    float64  `json:"altitude_m"`
	BatteryLevel float64  `json:"battery_level" binding:"min=0,max=1"`
}

type acceptResponse struct {
	Outcome model.AcceptOutcome `json:"outcome"`
	View    model.DriverView    `json:"view"`
}

type flushResponse struct {
	Locations model.DrainResult `json:"locations"`
	Trips     model.DrainResult `json:"trips"`
}

type routeResponse struct {
	Route model.RouteInfo `json:"route"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := healthResponse{Status: "ok"}
	code := http.StatusOK
	for name, check := range s.healthChecks() {
		if resp.Checks == nil {
			resp.Checks = make(map[string]string)
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			s.mylog.Action("health_check").Warn("dependency unhealthy", "check", name, "error", err.Error())
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	c.JSON(code, resp)
}

func (s *Server) handleSession(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.View())
}

func (s *Server) handleOnline(c *gin.Context) {
	if err := s.svc.GoOnline(c.Request.Context()); err != nil {
		s.fail(c, "go_online", err)
		return
	}
	c.JSON(http.StatusOK, s.svc.View())
}

func (s *Server) handleOffline(c *gin.Context) {
	if err := s.svc.GoOffline(c.Request.Context()); err != nil {
		s.fail(c, "go_offline", err)
		return
	}
	c.JSON(http.StatusOK, s.svc.View())
}

func (s *Server) handleAccept(c *gin.Context) {
	outcome, err := s.svc.Accept(c.Request.Context())
	if err != nil {
		s.fail(c, "offer_accept", err)
		return
	}
	c.JSON(http.StatusOK, acceptResponse{Outcome: outcome, View: s.svc.View()})
}

func (s *Server) handleDecline(c *gin.Context) {
	if err := s.svc.Decline(c.Request.Context()); err != nil {
		s.fail(c, "offer_decline", err)
		return
	}
	c.JSON(http.StatusOK, s.svc.View())
}

func (s *Server) handleAdvance(c *gin.Context) {
	var req advanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, err)
		return
	}
	trip, err := s.svc.AdvanceTrip(c.Request.Context(), req.To)
	if err != nil {
		s.fail(c, "trip_advance", err)
		return
	}
	c.JSON(http.StatusOK, trip)
}

func (s *Server) handleCancelTrip(c *gin.Context) {
	trip, err := s.svc.CancelTrip(c.Request.Context())
	if err != nil {
		s.fail(c, "trip_cancel", err)
		return
	}
	c.JSON(http.StatusOK, trip)
}

func (s *Server) handleRefreshRoute(c *gin.Context) {
	info, ok := s.svc.RefreshRoute(c.Request.Context())
	if !ok {
		jsonError(c, http.StatusNotFound, errors.New("nothing to route"))
		return
	}
	c.JSON(http.StatusOK, routeResponse{Route: info})
}

func (s *Server) handlePosition(c *gin.Context) {
	if s.feed == nil {
		jsonError(c, http.StatusNotFound, errors.New("position feed is disabled"))
		return
	}
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, err)
		return
	}
	accepted := s.feed.Push(model.Position{
		Coord:        model.Coord{Latitude: *req.Latitude, Longitude: *req.Longitude},
		HeadingDeg:   req.HeadingDeg,
		SpeedMps:     req.SpeedMps,
		AccuracyM:    req.AccuracyM,
		AltitudeM:    req.AltitudeM,
		BatteryLevel: req.BatteryLevel,
	})
	if !accepted {
		jsonError(c, http.StatusServiceUnavailable, errors.New("location reporting is not running"))
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) handleConnectivity(c *gin.Context) {
	var req connectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, err)
		return
	}
	s.svc.NetworkChanged(c.Request.Context(), *req.Connected)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleFlush(c *gin.Context) {
	locations, trips := s.svc.FlushPending(c.Request.Context())
	c.JSON(http.StatusOK, flushResponse{Locations: locations, Trips: trips})
}

func (s *Server) fail(c *gin.Context, action string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.mylog.Action(action).Error("request failed", err)
	}
	jsonError(c, code, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, myerrors.ErrNotOnline),
		errors.Is(err, myerrors.ErrNoActiveOffer),
		errors.Is(err, myerrors.ErrNoActiveTrip),
		errors.Is(err, myerrors.ErrOfferAlreadyActive),
		errors.Is(err, myerrors.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, myerrors.ErrTransport),
		errors.Is(err, myerrors.ErrOfferConflict),
		errors.Is(err, myerrors.ErrProtocol):
		return http.StatusBadGateway
	case errors.Is(err, myerrors.ErrMalformedPayload):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// jsonError writes an error body with the given status code.
func jsonError(c *gin.Context, code int, err error) {
	c.JSON(code, gin.H{
		"error": err.Error(),
		"code":  code,
	})
}
