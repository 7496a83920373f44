package myerrors

import "errors"

var (
	// transport: socket closed, timeout, 5xx
	ErrTransport = errors.New("transport error")
	// conflict: the order was already claimed by another driver
	ErrOfferConflict = errors.New("order already taken")
	// validation: malformed event or payload
	ErrMalformedPayload = errors.New("malformed payload")
	// protocol: handshake or authentication rejected by the server
	ErrProtocol = errors.New("protocol error")

	ErrNoActiveOffer      = errors.New("no active offer")
	ErrInvalidTransition  = errors.New("invalid offer transition")
	ErrOfferAlreadyActive = errors.New("an offer is already active")
	ErrNotOnline          = errors.New("driver is offline")
	ErrNoActiveTrip       = errors.New("no active trip")
	ErrInvalidToken       = errors.New("invalid token")
)
