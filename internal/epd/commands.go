package epd

// UC8151 command set.
const (
	cmdPSR    byte = 0x00 // panel setting
	cmdPWR    byte = 0x01 // power setting
	cmdPOF    byte = 0x02 // power off
	cmdPFS    byte = 0x03 // power off sequence
	cmdPON    byte = 0x04 // power on
	cmdBTST   byte = 0x06 // booster soft start
	cmdDSLP   byte = 0x07 // deep sleep
	cmdDSP    byte = 0x11 // data stop
	cmdDRF    byte = 0x12 // display refresh
	cmdDTM2   byte = 0x13 // data start transmission 2 (new frame)
	cmdLUTC   byte = 0x20 // VCOM LUT
	cmdLUTWW  byte = 0x21
	cmdLUTBW  byte = 0x22
	cmdLUTWB  byte = 0x23
	cmdLUTBB  byte = 0x24
	cmdPLL    byte = 0x30
	cmdCDI    byte = 0x50 // VCOM and data interval
	cmdTCON   byte = 0x60
	cmdPTL    byte = 0x90 // partial window
	cmdPTIN   byte = 0x91 // partial in
	cmdPTOU   byte = 0x92 // partial out
	deepSleep byte = 0xA5 // DSLP check code
)

// Panel setting (PSR) bits.
const (
	psrRes96x230  byte = 0b0000_0000
	psrRes96x252  byte = 0b0100_0000
	psrRes128x296 byte = 0b1000_0000
	psrRes160x296 byte = 0b1100_0000

	psrLUTOTP byte = 0b0000_0000
	psrLUTReg byte = 0b0010_0000

	psrFormatBW byte = 0b0001_0000
	psrScanUp   byte = 0b0000_1000
	psrShiftR   byte = 0b0000_0100
	psrBooster  byte = 0b0000_0010
	psrNoReset  byte = 0b0000_0001
)

// Register values used by Setup.
var (
	// VDS/VDG internal, VGH/VGL 16V, VDH +11V, VDL -11V, VDHR +11V.
	powerSetting = []byte{0x03, 0x00, 0x2B, 0x2B, 0x2B}
	// 10ms soft start, strength 3, 6.58us off time, for phases A, B and C.
	boosterSoftStart = []byte{0x17, 0x17, 0x17}
)

const (
	powerOffFrames  byte = 0x00 // PFS: 1 frame
	tconSetting     byte = 0x22
	vcomDataSetting byte = 0x4C
	pll100Hz        byte = 0x3A
	partialScanOut  byte = 0x01 // PTL: scan inside and outside the window
)

// Timing and LUT table sizes.
const (
	resetPulseUs  = 10 // minimum settle time around the reset edge
	powerSettleMs = 10 // pacing after PON/POF before polling busy
	lutVCOMLen    = 44
	lutColorLen   = 42
)
