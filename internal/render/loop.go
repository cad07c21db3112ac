// Package render drives the scrolling band readout: each tick paints an 8
// pixel band with the current label and pushes exactly one update for it.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"time"

	"inkband/internal/epd"
	appLog "inkband/internal/log"
	"inkband/internal/surface"
)

const (
	DefaultBandHeight = 8
	DefaultLabels     = 16
	DefaultInterval   = 50 * time.Millisecond
)

// Panel is the part of epd.Controller the loop needs.
type Panel interface {
	Geometry() epd.Geometry
	State() epd.State
	PartialsSinceFull() int
	FullUpdate(buf []byte) error
	PartialUpdate(buf []byte, r epd.Region) error
}

// Observer receives a status and a private copy of the surface after every
// pushed update. It is called on the loop goroutine and must not block.
type Observer interface {
	Observe(st Status, snap *surface.Surface)
}

// Status describes the loop after its last update.
type Status struct {
	Geometry          string     `json:"geometry"`
	State             string     `json:"state"`
	Policy            string     `json:"policy"`
	Ticks             uint64     `json:"ticks"`
	FullUpdates       uint64     `json:"full_updates"`
	PartialUpdates    uint64     `json:"partial_updates"`
	PartialsSinceFull int        `json:"partials_since_full"`
	LastRegion        epd.Region `json:"last_region"`
	LastLabel         string     `json:"last_label"`
	LastFull          bool       `json:"last_full"`
	NextY             int        `json:"next_y"`
	NextChannel       int        `json:"next_channel"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Frame is what one tick drew and pushed.
type Frame struct {
	Region epd.Region
	Label  string
	Full   bool
}

// Options configures a Loop. Zero fields take the defaults.
type Options struct {
	BandHeight int
	Labels     int
	Interval   time.Duration
	Policy     RefreshPolicy
	Observer   Observer
	// MaxTicks stops Run after that many ticks. 0 runs until cancelled.
	MaxTicks uint64
	// Now is the clock handed to the policy.
	Now func() time.Time
}

// Loop owns the surface and drives the panel. It is not safe for concurrent
// use.
type Loop struct {
	panel Panel
	surf  *surface.Surface
	opts  Options

	y       int
	channel int

	ticks    uint64
	fulls    uint64
	partials uint64
	last     Frame
}

// New validates that the surface matches the panel and the band tiles the
// panel height.
func New(p Panel, s *surface.Surface, opts *Options) (*Loop, error) {
	if p == nil || s == nil {
		return nil, errors.New("render: panel and surface are required")
	}
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.BandHeight == 0 {
		o.BandHeight = DefaultBandHeight
	}
	if o.Labels == 0 {
		o.Labels = DefaultLabels
	}
	if o.Interval == 0 {
		o.Interval = DefaultInterval
	}
	if o.Policy == nil {
		o.Policy = Never()
	}
	if o.Now == nil {
		o.Now = time.Now
	}

	g := p.Geometry()
	if s.Bounds() != g.Bounds() {
		return nil, fmt.Errorf("render: surface %v does not match panel %s", s.Bounds().Size(), g)
	}
	if o.BandHeight < 0 || o.BandHeight%8 != 0 || g.Height%o.BandHeight != 0 {
		return nil, fmt.Errorf("render: band height %d must be a multiple of 8 dividing %d", o.BandHeight, g.Height)
	}
	if o.Labels < 0 {
		return nil, fmt.Errorf("render: label count %d is negative", o.Labels)
	}
	if o.Interval < 0 {
		return nil, fmt.Errorf("render: interval %v is negative", o.Interval)
	}
	return &Loop{panel: p, surf: s, opts: o}, nil
}

// Surface returns the surface the loop draws on.
func (l *Loop) Surface() *surface.Surface {
	return l.surf
}

// Tick paints the next band, pushes it and advances. On error the position
// and label do not advance.
func (l *Loop) Tick() (Frame, error) {
	g := l.panel.Geometry()
	band := epd.Region{X: 0, Y: l.y, Width: g.Width, Height: l.opts.BandHeight}
	label := strconv.Itoa(l.channel)

	rect := band.Rect()
	l.surf.DrawRectangle(rect, surface.Style{Fill: surface.On, Stroke: surface.Off, StrokeWidth: 1})
	l.surf.DrawText(center(rect).Add(image.Pt(0, 2)), label, surface.TextStyle{Color: surface.Off})

	f := Frame{Region: band, Label: label, Full: l.opts.Policy.Due(l.ticks+1, l.opts.Now())}
	var err error
	if f.Full {
		err = l.panel.FullUpdate(l.surf.Bytes())
	} else {
		err = l.panel.PartialUpdate(l.surf.Bytes(), band)
	}
	if err != nil {
		return Frame{}, fmt.Errorf("render: tick %d at y=%d: %w", l.ticks+1, l.y, err)
	}

	l.ticks++
	if f.Full {
		l.fulls++
	} else {
		l.partials++
	}
	l.last = f
	l.y = (l.y + l.opts.BandHeight) % g.Height
	l.channel = (l.channel + 1) % l.opts.Labels

	appLog.Debug("tick", "n", l.ticks, "region", band.String(), "label", label, "full", f.Full)
	l.publish()
	return f, nil
}

// Run pushes one full update of the current surface, then ticks every
// Interval until ctx is done, MaxTicks is reached or a tick fails.
// Cancellation is only observed between ticks and returns nil.
func (l *Loop) Run(ctx context.Context) error {
	appLog.Info("render loop starting",
		"geometry", l.panel.Geometry().String(),
		"band_height", l.opts.BandHeight,
		"interval", l.opts.Interval.String(),
		"policy", l.opts.Policy.String(),
	)
	if err := l.panel.FullUpdate(l.surf.Bytes()); err != nil {
		return fmt.Errorf("render: initial full update: %w", err)
	}
	l.fulls++
	l.publish()

	timer := time.NewTimer(l.opts.Interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			appLog.Info("render loop stopped", "ticks", l.ticks)
			return nil
		default:
		}

		if _, err := l.Tick(); err != nil {
			return err
		}
		if l.opts.MaxTicks > 0 && l.ticks >= l.opts.MaxTicks {
			appLog.Info("render loop finished", "ticks", l.ticks)
			return nil
		}

		timer.Reset(l.opts.Interval)
		select {
		case <-ctx.Done():
			appLog.Info("render loop stopped", "ticks", l.ticks)
			return nil
		case <-timer.C:
		}
	}
}

// Status reports the loop counters and the panel state.
func (l *Loop) Status() Status {
	return Status{
		Geometry:          l.panel.Geometry().String(),
		State:             l.panel.State().String(),
		Policy:            l.opts.Policy.String(),
		Ticks:             l.ticks,
		FullUpdates:       l.fulls,
		PartialUpdates:    l.partials,
		PartialsSinceFull: l.panel.PartialsSinceFull(),
		LastRegion:        l.last.Region,
		LastLabel:         l.last.Label,
		LastFull:          l.last.Full,
		NextY:             l.y,
		NextChannel:       l.channel,
		UpdatedAt:         l.opts.Now(),
	}
}

func (l *Loop) publish() {
	if l.opts.Observer == nil {
		return
	}
	l.opts.Observer.Observe(l.Status(), l.surf.Snapshot())
}

// center rounds toward the top left, so an 8 pixel band centres on its
// fourth row.
func center(r image.Rectangle) image.Point {
	return r.Min.Add(image.Pt((r.Dx()-1)/2, (r.Dy()-1)/2))
}
