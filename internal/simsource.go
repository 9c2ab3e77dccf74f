package internal

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/voltsys/batlog/libraries/encoding"
)

// TelemetrySource produces ring-buffer snapshots for a set of devices.
// A snapshot is the device's N most recent records, in whatever order
// the device's circular memory yields them.
type TelemetrySource interface {
	Devices() ([]string, error)
	Snapshot(serial string) ([]LogRecord, error)
}

type SimSourceConfig struct {
	Serials        []string
	RingSize       int
	RecordsPerPoll int
}

// simFrame is the telemetry sample a simulated battery monitor logs.
type simFrame struct {
	Index       uint32  `json:"index"`
	PackVoltage float64 `json:"pack_voltage"`
	Current     float64 `json:"current"`
	TempC       float64 `json:"temp_c"`
	ChargePct   float64 `json:"charge_pct"`
}

// SimSource emulates a fleet of battery monitors, each with a small
// circular record memory that wraps over its oldest entries as new
// samples are logged.
type SimSource struct {
	mu      sync.Mutex
	cfg     SimSourceConfig
	rings   map[string][]LogRecord
	nextIdx map[string]uint32
	rng     *rand.Rand
}

func NewSimSource(cfg SimSourceConfig) *SimSource {
	if cfg.RingSize <= 0 {
		cfg.RingSize = 32
	}
	if cfg.RecordsPerPoll < 0 {
		cfg.RecordsPerPoll = 0
	}
	s := &SimSource{
		cfg:     cfg,
		rings:   make(map[string][]LogRecord),
		nextIdx: make(map[string]uint32),
		rng:     rand.New(rand.NewSource(0x6261746C)),
	}
	return s
}

func (s *SimSource) Devices() ([]string, error) {
	return append([]string(nil), s.cfg.Serials...), nil
}

// Snapshot logs a few new samples, then returns a copy of the ring.
func (s *SimSource) Snapshot(serial string) ([]LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.knows(serial) {
		return nil, fmt.Errorf("%w: unknown serial %s", ErrNotFound, serial)
	}

	s.advance(serial, s.cfg.RecordsPerPoll)

	ring := s.rings[serial]
	out := make([]LogRecord, len(ring))
	for i, rec := range ring {
		out[i] = LogRecord{Index: rec.Index, Payload: append([]byte(nil), rec.Payload...)}
	}
	return out, nil
}

// Advance logs n new samples for a device without taking a snapshot.
func (s *SimSource) Advance(serial string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(serial, n)
}

func (s *SimSource) knows(serial string) bool {
	for _, known := range s.cfg.Serials {
		if known == serial {
			return true
		}
	}
	return false
}

func (s *SimSource) advance(serial string, n int) {
	for i := 0; i < n; i++ {
		idx := s.nextIdx[serial]
		s.nextIdx[serial] = idx + 1

		frame := simFrame{
			Index:       idx,
			PackVoltage: 48.0 + s.rng.Float64()*6.0,
			Current:     -20.0 + s.rng.Float64()*40.0,
			TempC:       15.0 + s.rng.Float64()*30.0,
			ChargePct:   s.rng.Float64() * 100.0,
		}
		payload, err := encoding.JSONiter.Marshal(&frame)
		if err != nil {
			continue
		}

		ring := append(s.rings[serial], LogRecord{Index: idx, Payload: payload})
		if len(ring) > s.cfg.RingSize {
			ring = ring[len(ring)-s.cfg.RingSize:]
		}
		s.rings[serial] = ring
	}
}

// Overwrite replaces the in-ring payload at a given index, emulating
// the device's circular memory wrapping over an old entry.
func (s *SimSource) Overwrite(serial string, index uint32, payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring := s.rings[serial]
	for i := range ring {
		if ring[i].Index == index {
			ring[i].Payload = append([]byte(nil), payload...)
			return true
		}
	}
	return false
}
