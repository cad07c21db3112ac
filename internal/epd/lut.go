package epd

import (
	"fmt"
	"strings"
)

// LUT selects where the refresh waveforms come from. It is fixed at Setup.
type LUT uint8

const (
	// LUTInternal uses the waveforms programmed into the panel OTP. This is
	// the fast default.
	LUTInternal LUT = iota
	// LUTRegister uploads Opts.Waveforms during Setup.
	LUTRegister
)

func (l LUT) String() string {
	switch l {
	case LUTInternal:
		return "internal"
	case LUTRegister:
		return "register"
	}
	return fmt.Sprintf("LUT(%d)", uint8(l))
}

// ParseLUT maps "internal" or "register" to a LUT.
func ParseLUT(s string) (LUT, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "internal", "otp":
		return LUTInternal, nil
	case "register", "custom":
		return LUTRegister, nil
	}
	return 0, fmt.Errorf("epd: unknown LUT %q", s)
}

// Waveforms holds the register LUT tables uploaded for LUTRegister.
type Waveforms struct {
	VCOM []byte // 44 bytes
	WW   []byte // 42 bytes each
	BW   []byte
	WB   []byte
	BB   []byte
}

// Validate checks the table lengths expected by the controller.
func (w *Waveforms) Validate() error {
	if w == nil {
		return fmt.Errorf("epd: register LUT selected without waveforms")
	}
	if len(w.VCOM) != lutVCOMLen {
		return fmt.Errorf("epd: VCOM LUT must be %d bytes, got %d", lutVCOMLen, len(w.VCOM))
	}
	for _, t := range []struct {
		name string
		b    []byte
	}{{"WW", w.WW}, {"BW", w.BW}, {"WB", w.WB}, {"BB", w.BB}} {
		if len(t.b) != lutColorLen {
			return fmt.Errorf("epd: %s LUT must be %d bytes, got %d", t.name, lutColorLen, len(t.b))
		}
	}
	return nil
}

type lutTable struct {
	cmd  byte
	data []byte
}

// tables returns the upload order used by Setup.
func (w *Waveforms) tables() []lutTable {
	return []lutTable{
		{cmdLUTC, w.VCOM},
		{cmdLUTWW, w.WW},
		{cmdLUTBW, w.BW},
		{cmdLUTWB, w.WB},
		{cmdLUTBB, w.BB},
	}
}
