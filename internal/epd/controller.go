// Package epd drives a UC8151 e-paper controller (the 2.9" panel found on the
// Pimoroni Badger 2040 and similar boards).
//
// The Controller owns the bus handle and a small state machine:
//
//	Uninitialized -Reset-> Resetting -busy clears-> Ready
//	Ready -Setup-> Ready
//	Ready -FullUpdate|PartialUpdate-> Busy -busy clears-> Ready
//
// Every command sequence waits for the busy line to clear first. With default
// options that wait has no timeout: an unresponsive panel hangs the caller.
// Repeated partial updates accumulate a small charge difference on the panel;
// the controller does not correct this, callers decide when to FullUpdate.
package epd

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
)

// State is the controller state.
type State uint8

const (
	Uninitialized State = iota
	Resetting
	Ready
	Busy
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Resetting:
		return "Resetting"
	case Ready:
		return "Ready"
	case Busy:
		return "Busy"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Opts is the controller configuration.
type Opts struct {
	// Geometry defaults to DefaultGeometry.
	Geometry Geometry
	// Waveforms are required for Setup(LUTRegister).
	Waveforms *Waveforms
	// MaxBusyPolls bounds every busy wait. 0 waits forever.
	MaxBusyPolls int
}

// Controller sequences a panel through reset, setup and refresh operations.
// It is not safe for concurrent use; the state machine is the only ordering
// discipline.
type Controller struct {
	bus          Bus
	geom         Geometry
	waveforms    *Waveforms
	maxBusyPolls int

	state      State
	configured bool
	lut        LUT
	partials   int

	cmd     [1]byte
	scratch []byte
}

// New returns a controller in the Uninitialized state. No bus activity
// happens until Reset.
func New(bus Bus, opts *Opts) (*Controller, error) {
	if bus == nil {
		return nil, errors.New("epd: bus is nil")
	}
	if opts == nil {
		opts = &Opts{}
	}
	g := opts.Geometry
	if g == (Geometry{}) {
		g = DefaultGeometry
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if opts.MaxBusyPolls < 0 {
		return nil, errors.New("epd: MaxBusyPolls must not be negative")
	}
	return &Controller{
		bus:          bus,
		geom:         g,
		waveforms:    opts.Waveforms,
		maxBusyPolls: opts.MaxBusyPolls,
		scratch:      make([]byte, 0, g.BufferSize()),
	}, nil
}

// State returns the current controller state.
func (c *Controller) State() State {
	return c.state
}

// Geometry returns the panel geometry.
func (c *Controller) Geometry() Geometry {
	return c.geom
}

// Configured reports whether Setup completed since the last Reset.
func (c *Controller) Configured() bool {
	return c.configured
}

// LUT returns the waveform source chosen at Setup.
func (c *Controller) LUT() LUT {
	return c.lut
}

// PartialsSinceFull counts partial updates since the last full update.
func (c *Controller) PartialsSinceFull() int {
	return c.partials
}

// IsBusy reads the busy line once without blocking.
func (c *Controller) IsBusy() bool {
	return c.bus.Busy()
}

// Reset pulses the reset line low for at least 10µs, releases it for at
// least 10µs and then waits for the panel to report idle. Reset is accepted
// in any state.
func (c *Controller) Reset() error {
	c.state = Resetting
	c.configured = false

	if err := c.line("reset", LineReset, gpio.Low); err != nil {
		c.fault()
		return err
	}
	c.bus.DelayMicroseconds(resetPulseUs)
	if err := c.line("reset", LineReset, gpio.High); err != nil {
		c.fault()
		return err
	}
	c.bus.DelayMicroseconds(resetPulseUs)

	if err := c.waitIdle(); err != nil {
		return err
	}
	c.state = Ready
	return nil
}

// Setup sends the initialization sequence: panel setting, optional LUT
// upload, power, booster, timing and PLL.
func (c *Controller) Setup(lut LUT) error {
	if err := c.require("setup", false); err != nil {
		return err
	}

	res, _ := c.geom.resolutionBits()
	psr := res | psrFormatBW | psrScanUp | psrShiftR | psrBooster | psrNoReset
	switch lut {
	case LUTInternal:
		psr |= psrLUTOTP
	case LUTRegister:
		if err := c.waveforms.Validate(); err != nil {
			return err
		}
		psr |= psrLUTReg
	default:
		return fmt.Errorf("epd: unknown LUT %v", lut)
	}

	s := c.sequence("setup")
	s.send(cmdPSR, psr)
	if lut == LUTRegister {
		for _, t := range c.waveforms.tables() {
			s.send(t.cmd, t.data...)
		}
	}
	s.send(cmdPWR, powerSetting...)
	s.send(cmdPON)
	s.pause(powerSettleMs)
	s.idle()
	s.send(cmdBTST, boosterSoftStart...)
	s.send(cmdPFS, powerOffFrames)
	s.send(cmdTCON, tconSetting)
	s.send(cmdCDI, vcomDataSetting)
	s.send(cmdPLL, pll100Hz)
	s.send(cmdPOF)
	s.pause(powerSettleMs)
	s.idle()
	if s.err != nil {
		c.fault()
		return s.err
	}

	c.lut = lut
	c.configured = true
	return nil
}

// FullUpdate transfers the whole frame and refreshes the entire panel. It is
// slow but clears ghosting left by partial updates.
func (c *Controller) FullUpdate(buf []byte) error {
	if err := c.require("full update", true); err != nil {
		return err
	}
	if err := c.checkBuffer(buf); err != nil {
		return err
	}

	s := c.sequence("full update")
	s.idle()
	c.state = Busy
	s.send(cmdPON)
	s.send(cmdPTOU)
	s.send(cmdDTM2, buf...)
	s.send(cmdDSP)
	s.send(cmdDRF)
	s.idle()
	s.send(cmdPOF)
	if s.err != nil {
		c.fault()
		return s.err
	}

	c.state = Ready
	c.partials = 0
	return nil
}

// PartialUpdate transfers only the bytes of buf covered by r and refreshes
// that window. r is validated before anything is sent.
func (c *Controller) PartialUpdate(buf []byte, r Region) error {
	if err := c.require("partial update", true); err != nil {
		return err
	}
	if err := c.checkBuffer(buf); err != nil {
		return err
	}
	if err := c.geom.CheckRegion(r); err != nil {
		return err
	}
	data := c.regionBytes(buf, r)

	s := c.sequence("partial update")
	s.idle()
	c.state = Busy
	s.send(cmdPON)
	s.send(cmdPTIN)
	s.send(cmdPTL, r.window()...)
	s.send(cmdDTM2, data...)
	s.send(cmdDSP)
	s.send(cmdDRF)
	s.idle()
	s.send(cmdPTOU)
	s.send(cmdPOF)
	if s.err != nil {
		c.fault()
		return s.err
	}

	c.state = Ready
	c.partials++
	return nil
}

// Sleep powers the panel down into deep sleep. Only Reset wakes it.
func (c *Controller) Sleep() error {
	if err := c.require("sleep", false); err != nil {
		return err
	}
	s := c.sequence("sleep")
	s.send(cmdPOF)
	s.pause(powerSettleMs)
	s.idle()
	s.send(cmdDSLP, deepSleep)
	c.fault()
	return s.err
}

func (c *Controller) String() string {
	return fmt.Sprintf("epd.Controller{%s, %s}", c.geom, c.state)
}

func (c *Controller) require(op string, needSetup bool) error {
	if c.state != Ready {
		return fmt.Errorf("%w: %s in state %s", ErrProtocol, op, c.state)
	}
	if needSetup && !c.configured {
		return fmt.Errorf("%w: %s before setup", ErrProtocol, op)
	}
	return nil
}

func (c *Controller) checkBuffer(buf []byte) error {
	if want := c.geom.BufferSize(); len(buf) != want {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrBufferSize, len(buf), want)
	}
	return nil
}

// fault drops the controller back to Uninitialized. After a failed sequence
// the panel state is unknown and only Reset can recover it.
func (c *Controller) fault() {
	c.state = Uninitialized
	c.configured = false
}

// waitIdle spins on the busy line.
func (c *Controller) waitIdle() error {
	polls := 0
	for c.bus.Busy() {
		polls++
		if c.maxBusyPolls > 0 && polls >= c.maxBusyPolls {
			c.fault()
			return fmt.Errorf("%w after %d polls", ErrBusyTimeout, polls)
		}
	}
	return nil
}

// regionBytes gathers, gate line by gate line, the bytes of buf inside r.
// The returned slice aliases c.scratch.
func (c *Controller) regionBytes(buf []byte, r Region) []byte {
	lineBytes := c.geom.LineBytes()
	first := r.Y / 8
	n := r.Height / 8

	out := c.scratch[:0]
	for x := r.X; x < r.X+r.Width; x++ {
		off := x*lineBytes + first
		out = append(out, buf[off:off+n]...)
	}
	c.scratch = out
	return out
}

func (c *Controller) line(op string, l Line, level gpio.Level) error {
	if err := c.bus.SetLine(l, level); err != nil {
		return &BusError{Op: op + ": " + l.String(), Err: err}
	}
	return nil
}

func (c *Controller) transfer(op string, p []byte) error {
	if err := c.bus.Transfer(p); err != nil {
		return &BusError{Op: op, Err: err}
	}
	return nil
}

// send writes a command byte with DC low, then its parameters with DC high,
// inside one chip-select window.
func (c *Controller) send(op string, cmd byte, data []byte) error {
	if err := c.line(op, LineChipSelect, gpio.Low); err != nil {
		return err
	}
	err := c.sendSelected(op, cmd, data)
	if e := c.line(op, LineChipSelect, gpio.High); err == nil {
		err = e
	}
	return err
}

func (c *Controller) sendSelected(op string, cmd byte, data []byte) error {
	if err := c.line(op, LineDataCommand, gpio.Low); err != nil {
		return err
	}
	c.cmd[0] = cmd
	if err := c.transfer(op, c.cmd[:]); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := c.line(op, LineDataCommand, gpio.High); err != nil {
		return err
	}
	return c.transfer(op, data)
}

// sequence keeps the first error of a command sequence so each step can be
// written on one line.
type sequence struct {
	c   *Controller
	op  string
	err error
}

func (c *Controller) sequence(op string) *sequence {
	return &sequence{c: c, op: op}
}

func (s *sequence) send(cmd byte, data ...byte) {
	if s.err == nil {
		s.err = s.c.send(s.op, cmd, data)
	}
}

func (s *sequence) idle() {
	if s.err == nil {
		s.err = s.c.waitIdle()
	}
}

func (s *sequence) pause(ms uint32) {
	if s.err == nil {
		s.c.bus.DelayMilliseconds(ms)
	}
}
