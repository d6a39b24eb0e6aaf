package models

// WebSocket subscription kinds.
const (
	SubKindStrategy = "strategy"
	SubKindStock    = "stock"
	SubKindMarket   = "market"
)

// WebSocket message types.
const (
	WSTypeSubscribe    = "subscribe"
	WSTypeUnsubscribe  = "unsubscribe"
	WSTypePing         = "ping"
	WSTypeConnected    = "connected"
	WSTypeSubscribed   = "subscribed"
	WSTypeUnsubscribed = "unsubscribed"
	WSTypePong         = "pong"
	WSTypePriceUpdate  = "price_update"
	WSTypeSignalUpdate = "signal_update"
	WSTypeError        = "error"
)

// WSInbound is a client-to-server message.
type WSInbound struct {
	Type             string `json:"type"`
	SubscriptionType string `json:"subscription_type,omitempty"`
	Target           string `json:"target,omitempty"`
}

// WSAck is the server reply to connect/subscribe/unsubscribe.
type WSAck struct {
	Type             string `json:"type"`
	ClientID         string `json:"client_id,omitempty"`
	SubscriptionType string `json:"subscription_type,omitempty"`
	Target           string `json:"target,omitempty"`
	Message          string `json:"message"`
	Timestamp        string `json:"timestamp"`
}

// WSPong answers a client ping.
type WSPong struct {
	Type      string `json:"type"` // always "pong"
	Timestamp string `json:"timestamp"`
}

// WSError reports a protocol-level failure to the client.
type WSError struct {
	Type      string `json:"type"` // always "error"
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	Timestamp string `json:"timestamp"`
}

// PricePoint is one entry inside a price_update payload.
type PricePoint struct {
	Code          string  `json:"code"`
	Name          string  `json:"name,omitempty"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Volume        float64 `json:"volume,omitempty"`
	Timestamp     string  `json:"timestamp"`
}

// WSPriceUpdate is a batched price push.
type WSPriceUpdate struct {
	Type      string       `json:"type"` // always "price_update"
	Data      []PricePoint `json:"data"`
	Count     int          `json:"count"`
	Timestamp string       `json:"timestamp"`
}

// WSSignalUpdate pushes signal set deltas.
type WSSignalUpdate struct {
	Type      string   `json:"type"`   // always "signal_update"
	Action    string   `json:"action"` // add or remove
	Data      []Signal `json:"data"`
	Count     int      `json:"count"`
	Timestamp string   `json:"timestamp"`
}
