package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// RefreshPolicy decides whether a tick pushes a full update instead of the
// band's partial update. Repeated partial updates leave residual ghosting;
// a policy is how long-running deployments clear it.
type RefreshPolicy interface {
	// Due is called once per tick, tick counting from 1.
	Due(tick uint64, now time.Time) bool
	String() string
}

type never struct{}

// Never keeps every tick a partial update.
func Never() RefreshPolicy { return never{} }

func (never) Due(uint64, time.Time) bool { return false }
func (never) String() string             { return "never" }

type everyTicks struct {
	n uint64
}

// EveryTicks makes every n-th tick a full update. n == 0 is Never.
func EveryTicks(n uint64) RefreshPolicy {
	if n == 0 {
		return Never()
	}
	return everyTicks{n: n}
}

func (p everyTicks) Due(tick uint64, _ time.Time) bool {
	return tick > 0 && tick%p.n == 0
}

func (p everyTicks) String() string {
	return fmt.Sprintf("every %d ticks", p.n)
}

// cronPolicy fires on the first tick at or after each scheduled activation.
type cronPolicy struct {
	spec  string
	sched cron.Schedule
	next  time.Time
}

// Cron parses a standard five-field cron spec or a descriptor such as
// "@hourly" or "@every 10m".
func Cron(spec string) (RefreshPolicy, error) {
	spec = strings.TrimSpace(spec)
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("render: invalid full refresh schedule %q: %w", spec, err)
	}
	return &cronPolicy{spec: spec, sched: sched}, nil
}

func (p *cronPolicy) Due(_ uint64, now time.Time) bool {
	if p.next.IsZero() {
		p.next = p.sched.Next(now)
		return false
	}
	if now.Before(p.next) {
		return false
	}
	p.next = p.sched.Next(now)
	return true
}

func (p *cronPolicy) String() string {
	return "cron " + p.spec
}

// NewPolicy builds the policy named by config: a cron spec wins over a tick
// count, and neither means Never.
func NewPolicy(ticks uint64, cronSpec string) (RefreshPolicy, error) {
	if strings.TrimSpace(cronSpec) != "" {
		return Cron(cronSpec)
	}
	return EveryTicks(ticks), nil
}
