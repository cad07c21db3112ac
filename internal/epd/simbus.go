package epd

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"

	"inkband/internal/log"
)

// SimBus is a Bus with no panel behind it. It accepts everything, keeps
// counters and, when RefreshPolls is set, reports busy for that many reads
// after each display refresh command. Delays return immediately.
type SimBus struct {
	RefreshPolls int

	mu        sync.Mutex
	dc        gpio.Level
	busyLeft  int
	transfers int
	bytes     int
	commands  int
	refreshes int
	last      byte
}

// SimStats is a snapshot of SimBus counters.
type SimStats struct {
	Transfers   int
	Bytes       int
	Commands    int
	Refreshes   int
	LastCommand byte
}

func (s *SimBus) Transfer(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers++
	s.bytes += len(p)
	if s.dc == gpio.Low && len(p) > 0 {
		s.commands++
		s.last = p[0]
		if p[0] == cmdDRF {
			s.refreshes++
			s.busyLeft = s.RefreshPolls
		}
		log.Debug("sim bus command", "cmd", fmt.Sprintf("0x%02X", p[0]))
	}
	return nil
}

func (s *SimBus) SetLine(l Line, level gpio.Level) error {
	if l == LineDataCommand {
		s.mu.Lock()
		s.dc = level
		s.mu.Unlock()
	}
	return nil
}

func (s *SimBus) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busyLeft > 0 {
		s.busyLeft--
		return true
	}
	return false
}

func (s *SimBus) DelayMicroseconds(uint32) {}

func (s *SimBus) DelayMilliseconds(uint32) {}

// Stats returns the counters accumulated so far.
func (s *SimBus) Stats() SimStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SimStats{
		Transfers:   s.transfers,
		Bytes:       s.bytes,
		Commands:    s.commands,
		Refreshes:   s.refreshes,
		LastCommand: s.last,
	}
}

var _ Bus = (*SimBus)(nil)
