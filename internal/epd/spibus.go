package epd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// DefaultSPIFrequency is conservative; the UC8151 accepts up to 20MHz writes.
const DefaultSPIFrequency = 4 * physic.MegaHertz

// SPIConfig names the SPI port and GPIO pins of a wired panel. Pin names are
// anything gpioreg.ByName resolves, e.g. "GPIO25" or "P1_22".
type SPIConfig struct {
	Port      string // "" opens the first registered port
	Frequency physic.Frequency
	DC        string
	CS        string
	Reset     string
	Busy      string
	// Enable optionally powers the panel (driven High on open).
	Enable string
}

// SPIBus implements Bus on periph.io SPI and GPIO.
type SPIBus struct {
	c     spi.Conn
	maxTx int

	dc   gpio.PinOut
	cs   gpio.PinOut
	rst  gpio.PinOut
	busy gpio.PinIn

	closer io.Closer
}

// NewSPIBus connects to p in SPI mode 0 and puts the pins in their idle
// levels: CS high, DC low, RST high, busy as a pulled-up input.
func NewSPIBus(p spi.Port, f physic.Frequency, dc, cs, rst gpio.PinOut, busy gpio.PinIn) (*SPIBus, error) {
	if dc == nil || cs == nil || rst == nil || busy == nil {
		return nil, errors.New("epd: all of DC, CS, RST and BUSY pins are required")
	}
	if f <= 0 {
		f = DefaultSPIFrequency
	}
	c, err := p.Connect(f, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("epd: failed to connect SPI: %w", err)
	}

	for _, o := range []struct {
		pin gpio.PinOut
		l   gpio.Level
	}{{cs, gpio.High}, {dc, gpio.Low}, {rst, gpio.High}} {
		if err := o.pin.Out(o.l); err != nil {
			return nil, fmt.Errorf("epd: gpio %s Out failed: %w", o.pin, err)
		}
	}
	if err := busy.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("epd: gpio %s In failed: %w", busy, err)
	}

	b := &SPIBus{c: c, dc: dc, cs: cs, rst: rst, busy: busy}
	if l, ok := c.(conn.Limits); ok {
		b.maxTx = l.MaxTxSize()
	}
	return b, nil
}

// OpenSPI initializes the periph host drivers, then opens the port and pins
// named in cfg.
func OpenSPI(cfg SPIConfig) (*SPIBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("epd: periph host init failed: %w", err)
	}

	port, err := spireg.Open(cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("epd: failed to open SPI port %q: %w", cfg.Port, err)
	}

	var pins [5]gpio.PinIO
	for i, name := range []string{cfg.DC, cfg.CS, cfg.Reset, cfg.Busy, cfg.Enable} {
		if name == "" {
			continue
		}
		if pins[i] = gpioreg.ByName(name); pins[i] == nil {
			_ = port.Close()
			return nil, fmt.Errorf("epd: gpio %s not found", name)
		}
	}
	if pins[4] != nil {
		if err := pins[4].Out(gpio.High); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("epd: gpio %s Out failed: %w", pins[4], err)
		}
	}

	b, err := NewSPIBus(port, cfg.Frequency, outPin(pins[0]), outPin(pins[1]), outPin(pins[2]), inPin(pins[3]))
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	b.closer = port
	return b, nil
}

// outPin keeps a nil PinIO a nil interface.
func outPin(p gpio.PinIO) gpio.PinOut {
	if p == nil {
		return nil
	}
	return p
}

func inPin(p gpio.PinIO) gpio.PinIn {
	if p == nil {
		return nil
	}
	return p
}

// Transfer writes p, split into chunks the port accepts in one transaction.
func (b *SPIBus) Transfer(p []byte) error {
	for len(p) > 0 {
		n := len(p)
		if b.maxTx > 0 && n > b.maxTx {
			n = b.maxTx
		}
		if err := b.c.Tx(p[:n], nil); err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func (b *SPIBus) SetLine(l Line, level gpio.Level) error {
	switch l {
	case LineReset:
		return b.rst.Out(level)
	case LineDataCommand:
		return b.dc.Out(level)
	case LineChipSelect:
		return b.cs.Out(level)
	}
	return fmt.Errorf("epd: unknown line %d", l)
}

// Busy is active low on the UC8151.
func (b *SPIBus) Busy() bool {
	return b.busy.Read() == gpio.Low
}

func (b *SPIBus) DelayMicroseconds(n uint32) {
	time.Sleep(time.Duration(n) * time.Microsecond)
}

func (b *SPIBus) DelayMilliseconds(n uint32) {
	time.Sleep(time.Duration(n) * time.Millisecond)
}

// Close releases the SPI port when the bus opened it.
func (b *SPIBus) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

func (b *SPIBus) String() string {
	return fmt.Sprintf("epd.SPIBus{%s, DC:%s, CS:%s, RST:%s, BUSY:%s}", b.c, b.dc, b.cs, b.rst, b.busy)
}

var _ Bus = (*SPIBus)(nil)
