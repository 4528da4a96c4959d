package domain

import "time"

// Uptime is an elapsed duration split into calendar-free components.
type Uptime struct {
	Days              int64  `json:"days"`
	Hours             int64  `json:"hours"`
	Minutes           int64  `json:"minutes"`
	Seconds           int64  `json:"seconds"`
	TotalMilliseconds int64  `json:"total_milliseconds"`
	Human             string `json:"human"`
}

// Ports lists the configured listening ports.
type Ports struct {
	HTTP      string `json:"http"`
	WebSocket string `json:"websocket"`
}

// Status is a point-in-time read of the relay's state.
type Status struct {
	Status      string    `json:"status"`
	StartedAt   Timestamp `json:"started_at"`
	CurrentTime Timestamp `json:"current_time"`
	Uptime      Uptime    `json:"uptime"`
	Connections int       `json:"connections"`
	Ports       Ports     `json:"ports"`

	Start time.Time `json:"-"`
	Now   time.Time `json:"-"`
}
