package domain

import "time"

// Transport names the surface a request arrived on.
type Transport string

const (
	TransportHeader    Transport = "header"
	TransportCookie    Transport = "cookie"
	TransportWebSocket Transport = "websocket"
)

// RequestLog is one served request, recorded for the analytics dashboard.
type RequestLog struct {
	ID         string
	Method     string
	Route      string // mux pattern, not the raw path
	Status     int
	DurationMS int64
	UserID     string
	Transport  Transport
	AuthState  string
	CreatedAt  time.Time
}

// TrafficSummary aggregates request logs over a window.
type TrafficSummary struct {
	Since         time.Time
	Until         time.Time
	TotalRequests int64
	AvgDurationMS float64
	ActiveUsers   int64
	StatusClasses map[string]int64 // "2xx" -> count
	AuthStates    map[string]int64 // "AUTHENTICATED" -> count
	TopRoutes     []RouteCount
}

type RouteCount struct {
	Method        string
	Route         string
	Count         int64
	AvgDurationMS float64
}
