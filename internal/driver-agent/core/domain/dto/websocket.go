package dto

// WebSocket / broker message types
const (
	MessageTypeAuth            = "auth"
	MessageTypeSubscribe       = "subscribe"
	MessageTypeOrderAssignment = "order_assignment"
	MessageTypePing            = "ping"
	MessageTypePong            = "pong"
	MessageTypeError           = "error"
)

type WebSocketMessage struct {
	Type string `json:"type"`
}

type AuthMessage struct {
	WebSocketMessage
	Token string `json:"token"`
}

type SubscribeMessage struct {
	WebSocketMessage
	Destination string `json:"destination"`
}

type ErrorMessage struct {
	WebSocketMessage
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type LocationDetail struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

type PaymentDetail struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Method   string  `json:"method"`
}

// OrderAssignmentMessage is pushed on driver.{driver_id}.assignments
type OrderAssignmentMessage struct {
	WebSocketMessage
	OrderID     string         `json:"order_id"`
	DriverID    string         `json:"driver_id"`
	CustomerID  string         `json:"customer_id,omitempty"`
	OfferedAtMs int64          `json:"offered_at_ms"`
	ExpiresAtMs int64          `json:"expires_at_ms"`
	Restaurant  LocationDetail `json:"restaurant"`
	Customer    LocationDetail `json:"customer"`
	Payment     PaymentDetail  `json:"payment"`
}
