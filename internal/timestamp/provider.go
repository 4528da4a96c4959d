package timestamp

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/routerws/internal/domain"
)

const (
	isoLayout     = "2006-01-02T15:04:05.000Z07:00"
	localLayout   = "01/02/2006, 15:04:05"
	compactLayout = "20060102-150405"

	invalidTimezone = "invalid timezone"
)

const (
	msPerSecond = int64(1000)
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute
	msPerDay    = 24 * msPerHour
)

var _ domain.Clock = (*Provider)(nil)

// Provider formats instants for a configured timezone.
type Provider struct {
	clock    clockwork.Clock
	timezone string

	mu        sync.RWMutex
	locations map[string]*time.Location
}

// NewProvider creates a provider reading time from clock and rendering local
// representations in timezone (an IANA label such as "Europe/Berlin").
func NewProvider(clock clockwork.Clock, timezone string) *Provider {
	if timezone == "" {
		timezone = "UTC"
	}
	return &Provider{
		clock:     clock,
		timezone:  timezone,
		locations: make(map[string]*time.Location),
	}
}

// Timezone returns the configured timezone label.
func (p *Provider) Timezone() string {
	return p.timezone
}

func (p *Provider) Now() time.Time {
	return p.clock.Now()
}

// Snapshot formats the current instant in the configured timezone.
func (p *Provider) Snapshot() domain.Timestamp {
	return p.Format(p.Now(), p.timezone)
}

// Format renders instant in timezone. An unresolvable timezone yields a UTC
// rendering with Error set.
func (p *Provider) Format(instant time.Time, timezone string) domain.Timestamp {
	ts := domain.Timestamp{
		ISO:      instant.UTC().Format(isoLayout),
		Unix:     instant.Unix(),
		Timezone: timezone,
		Instant:  instant,
	}

	loc, err := p.location(timezone)
	if err != nil {
		slog.Debug("Timezone resolution failed, using UTC", "timezone", timezone, "error", err)
		loc = time.UTC
		ts.Error = invalidTimezone
	}

	local := instant.In(loc)
	ts.Local = local.Format(localLayout)
	ts.Compact = local.Format(compactLayout)
	return ts
}

// Elapsed delegates to the package-level Elapsed.
func (p *Provider) Elapsed(start, end time.Time) domain.Uptime {
	return Elapsed(start, end)
}

func (p *Provider) location(name string) (*time.Location, error) {
	p.mu.RLock()
	loc, ok := p.locations[name]
	p.mu.RUnlock()
	if ok {
		return loc, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}

	p.mu.Lock()
	p.locations[name] = loc
	p.mu.Unlock()
	return loc, nil
}

// Elapsed splits end-start into days, hours, minutes and seconds by successive
// integer division of the millisecond delta. A negative delta is not clamped.
func Elapsed(start, end time.Time) domain.Uptime {
	total := end.Sub(start).Milliseconds()

	days := total / msPerDay
	rest := total % msPerDay
	hours := rest / msPerHour
	rest %= msPerHour
	minutes := rest / msPerMinute
	rest %= msPerMinute
	seconds := rest / msPerSecond

	return domain.Uptime{
		Days:              days,
		Hours:             hours,
		Minutes:           minutes,
		Seconds:           seconds,
		TotalMilliseconds: total,
		Human:             fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds),
	}
}
