package uibridge

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenVerifier extracts the driver id from a bearer token.
type TokenVerifier interface {
	DriverIDFromToken(token string) (string, error)
}

// RequireDriverToken makes every route except /healthz demand a token
// issued to driverID. Websocket clients may pass it as ?token=.
func (s *Server) RequireDriverToken(verifier TokenVerifier, driverID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifier = verifier
	s.driverID = driverID
}

func (s *Server) authenticate(c *gin.Context) {
	s.mu.Lock()
	verifier, driverID := s.verifier, s.driverID
	s.mu.Unlock()
	if verifier == nil {
		c.Next()
		return
	}

	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		jsonError(c, http.StatusUnauthorized, errors.New("empty JWT-Token"))
		c.Abort()
		return
	}

	id, err := verifier.DriverIDFromToken(token)
	if err != nil {
		jsonError(c, http.StatusUnauthorized, err)
		c.Abort()
		return
	}
	if id != driverID {
		jsonError(c, http.StatusForbidden, errors.New("token belongs to another driver"))
		c.Abort()
		return
	}
	c.Next()
}
