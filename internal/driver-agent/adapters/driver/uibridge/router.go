package uibridge

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)

	r := s.engine.Group("/", s.authenticate)
	r.GET("/session", s.handleSession)
	r.POST("/session/online", s.handleOnline)
	r.POST("/session/offline", s.handleOffline)

	r.POST("/offer/accept", s.handleAccept)
	r.POST("/offer/decline", s.handleDecline)

	r.POST("/trip/advance", s.handleAdvance)
	r.POST("/trip/cancel", s.handleCancelTrip)
	r.POST("/route/refresh", s.handleRefreshRoute)

	r.POST("/position", s.handlePosition)
	r.POST("/connectivity", s.handleConnectivity)
	r.POST("/pending/flush", s.handleFlush)

	r.GET("/events", s.events.Handle)
}
