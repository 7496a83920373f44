package model

type OfferState string

const (
	OfferOffered   OfferState = "OFFERED"
	OfferAccepting OfferState = "ACCEPTING"
	OfferAccepted  OfferState = "ACCEPTED"
	OfferDeclining OfferState = "DECLINING"
	OfferDeclined  OfferState = "DECLINED"
	OfferExpired   OfferState = "EXPIRED"
)

// Terminal reports whether the offer no longer blocks new assignments.
func (s OfferState) Terminal() bool {
	switch s {
	case OfferAccepted, OfferDeclined, OfferExpired:
		return true
	}
	return false
}

type Place struct {
	Coord
	Address string `json:"address,omitempty"`
}

type Payment struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Method   string  `json:"method"`
}

type OrderOffer struct {
	OrderID          string     `json:"order_id"`
	DriverID         string     `json:"driver_id"`
	CustomerID       string     `json:"customer_id,omitempty"`
	OfferedAtEpochMs int64      `json:"offered_at_ms"`
	ExpiresAtEpochMs int64      `json:"expires_at_ms"`
	Restaurant       Place      `json:"restaurant"`
	Customer         Place      `json:"customer"`
	Payment          Payment    `json:"payment"`
	State            OfferState `json:"state"`
}

type RouteLeg struct {
	DistanceM float64 `json:"distance_m"`
	DurationS float64 `json:"duration_s"`
	Geometry  string  `json:"geometry,omitempty"`
}

type RouteInfo struct {
	PickupDistanceM   float64 `json:"pickup_distance_m"`
	PickupDurationS   float64 `json:"pickup_duration_s"`
	DeliveryDistanceM float64 `json:"delivery_distance_m"`
	DeliveryDurationS float64 `json:"delivery_duration_s"`
	TotalDistanceM    float64 `json:"total_distance_m"`
	TotalDurationS    float64 `json:"total_duration_s"`
	// Degraded is set when at least one leg could not be fetched and was
	// counted as zero.
	Degraded bool `json:"degraded"`
}

// CombineLegs builds a RouteInfo from the pickup and delivery legs. A nil leg
// counts as zero and marks the result degraded.
func CombineLegs(pickup, delivery *RouteLeg) RouteInfo {
	var info RouteInfo
	if pickup != nil {
		info.PickupDistanceM = pickup.DistanceM
		info.PickupDurationS = pickup.DurationS
	} else {
		info.Degraded = true
	}
	if delivery != nil {
		info.DeliveryDistanceM = delivery.DistanceM
		info.DeliveryDurationS = delivery.DurationS
	} else {
		info.Degraded = true
	}
	info.TotalDistanceM = info.PickupDistanceM + info.DeliveryDistanceM
	info.TotalDurationS = info.PickupDurationS + info.DeliveryDurationS
	return info
}

// AcceptOutcome tells the UI how an accept attempt ended.
type AcceptOutcome string

const (
	AcceptOK AcceptOutcome = "ACCEPTED"
	// AcceptWithWarning: the backend call failed for a reason other than a
	// conflict. The driver proceeds with the delivery anyway.
	AcceptWithWarning AcceptOutcome = "ACCEPTED_WITH_WARNING"
	// AcceptStale: someone else already took the order.
	AcceptStale AcceptOutcome = "STALE"
)
