// Package status composes point-in-time status snapshots of the relay.
package status

import (
	"time"

	"github.com/pscheid92/routerws/internal/domain"
)

const statusRunning = "running"

// ConnectionCounter reports the number of live connections.
type ConnectionCounter interface {
	Size() int
}

var _ domain.StatusReporter = (*Reporter)(nil)

// Reporter builds status snapshots. The start instant is fixed at construction.
type Reporter struct {
	start       time.Time
	clock       domain.Clock
	connections ConnectionCounter
	ports       domain.Ports
}

func NewReporter(start time.Time, clock domain.Clock, connections ConnectionCounter, ports domain.Ports) *Reporter {
	return &Reporter{
		start:       start,
		clock:       clock,
		connections: connections,
		ports:       ports,
	}
}

// StartedAt returns the service start instant.
func (r *Reporter) StartedAt() time.Time {
	return r.start
}

// Current recomputes the snapshot on every call.
func (r *Reporter) Current() domain.Status {
	now := r.clock.Now()
	tz := r.clock.Timezone()

	return domain.Status{
		Status:      statusRunning,
		StartedAt:   r.clock.Format(r.start, tz),
		CurrentTime: r.clock.Format(now, tz),
		Uptime:      r.clock.Elapsed(r.start, now),
		Connections: r.connections.Size(),
		Ports:       r.ports,
		Start:       r.start,
		Now:         now,
	}
}
