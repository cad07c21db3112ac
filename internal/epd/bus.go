package epd

import (
	"errors"

	"periph.io/x/conn/v3/gpio"
)

// Line names a control line driven by the controller.
type Line uint8

const (
	// LineReset is the active-low reset (enable) input of the panel.
	LineReset Line = iota
	// LineDataCommand selects data (High) or command (Low) for the next transfer.
	LineDataCommand
	// LineChipSelect is the active-low chip select.
	LineChipSelect
)

func (l Line) String() string {
	switch l {
	case LineReset:
		return "RST"
	case LineDataCommand:
		return "DC"
	case LineChipSelect:
		return "CS"
	}
	return "line?"
}

// Bus is everything the controller needs from the platform. Implementations
// own the SPI transport and pin electrical setup; the controller never
// assumes a specific transport.
type Bus interface {
	// Transfer writes p to the panel.
	Transfer(p []byte) error
	// SetLine drives a control line.
	SetLine(l Line, level gpio.Level) error
	// Busy reports whether the panel is mid-operation. It must not block.
	Busy() bool
	DelayMicroseconds(n uint32)
	DelayMilliseconds(n uint32)
}

var (
	// ErrProtocol is returned when an operation is invoked in the wrong
	// controller state. Nothing has been sent to the panel.
	ErrProtocol = errors.New("epd: operation not valid in current state")
	// ErrInvalidRegion is returned when a partial update region is outside
	// the panel or not encodable. Nothing has been sent to the panel.
	ErrInvalidRegion = errors.New("epd: invalid region")
	// ErrBufferSize is returned when a frame buffer does not match the
	// panel geometry.
	ErrBufferSize = errors.New("epd: invalid buffer size")
	// ErrBusyTimeout is returned when Opts.MaxBusyPolls is set and the busy
	// line did not clear in time.
	ErrBusyTimeout = errors.New("epd: busy line did not clear")
)

// BusError wraps a transport failure. It is never retried.
type BusError struct {
	Op  string
	Err error
}

func (e *BusError) Error() string {
	return "epd: bus error during " + e.Op + ": " + e.Err.Error()
}

func (e *BusError) Unwrap() error {
	return e.Err
}
