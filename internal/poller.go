package internal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"github.com/voltsys/batlog/libraries/logger"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type PollerConfig struct {
	Interval time.Duration
	Workers  int
	// RatePerSec caps snapshot reads across the fleet; 0 disables the
	// limiter.
	RatePerSec float64
}

type PollerStats struct {
	Cycles        uint64    `json:"cycles"`
	RecordsStored uint64    `json:"records_stored"`
	Errors        uint64    `json:"errors"`
	LastCycle     time.Time `json:"last_cycle"`
	LastDuration  string    `json:"last_duration"`
}

// Poller drives sync cycles: every interval it snapshots each device
// and hands the snapshot to the sync engine. Devices are polled
// concurrently, but each device's cycle runs to completion before its
// next one starts. A per-device circuit breaker keeps one flaky device
// from eating the whole cycle's budget.
type Poller struct {
	source  TelemetrySource
	engine  *SyncEngine
	cfg     PollerConfig
	limiter *rate.Limiter

	breakers   map[string]*gobreaker.CircuitBreaker
	breakersMu sync.Mutex

	connected   map[string]bool
	connectedMu sync.Mutex

	cycles       atomic.Uint64
	stored       atomic.Uint64
	errorCount   atomic.Uint64
	lastCycle    atomic.Int64
	lastDuration atomic.Int64

	stopChan chan struct{}
	doneChan chan struct{}
}

func NewPoller(source TelemetrySource, engine *SyncEngine, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	p := &Poller{
		source:    source,
		engine:    engine,
		cfg:       cfg,
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		connected: make(map[string]bool),
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
	if cfg.RatePerSec > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return p
}

func (p *Poller) Start() {
	go p.run()
	logger.Printf("poll", "Poller started (interval %v, %d workers)", p.cfg.Interval, p.cfg.Workers)
}

func (p *Poller) Stop() {
	close(p.stopChan)
	<-p.doneChan
	logger.Printf("poll", "Poller stopped")
}

func (p *Poller) Stats() PollerStats {
	return PollerStats{
		Cycles:        p.cycles.Load(),
		RecordsStored: p.stored.Load(),
		Errors:        p.errorCount.Load(),
		LastCycle:     time.Unix(0, p.lastCycle.Load()),
		LastDuration:  time.Duration(p.lastDuration.Load()).String(),
	}
}

func (p *Poller) run() {
	defer close(p.doneChan)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// First cycle immediately rather than one interval in.
	p.runCycle()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.runCycle()
		}
	}
}

func (p *Poller) runCycle() {
	start := time.Now()

	serials, err := p.source.Devices()
	if err != nil {
		p.errorCount.Add(1)
		logger.Warning("Device enumeration failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-p.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	for _, serial := range serials {
		serial := serial
		g.Go(func() error {
			if p.limiter != nil {
				if err := p.limiter.Wait(ctx); err != nil {
					return nil
				}
			}
			p.pollDevice(serial)
			return nil
		})
	}
	g.Wait()

	p.cycles.Add(1)
	p.lastCycle.Store(start.UnixNano())
	p.lastDuration.Store(int64(time.Since(start)))
	metricPollCycles.Inc()
}

func (p *Poller) pollDevice(serial string) {
	cb := p.breaker(serial)
	result, err := cb.Execute(func() (interface{}, error) {
		snapshot, err := p.source.Snapshot(serial)
		if err != nil {
			return nil, err
		}
		return p.engine.Sync(serial, snapshot)
	})

	if err != nil {
		p.errorCount.Add(1)
		metricPollErrors.WithLabelValues(serial).Inc()
		if cb.State() == gobreaker.StateOpen {
			metricPollBreakerOpen.WithLabelValues(serial).Set(1)
		}
		p.noteConnected(serial, false, err)
		return
	}

	metricPollBreakerOpen.WithLabelValues(serial).Set(0)
	p.noteConnected(serial, true, nil)

	if res, ok := result.(SyncResult); ok {
		p.stored.Add(uint64(res.Appended))
	}
}

func (p *Poller) breaker(serial string) *gobreaker.CircuitBreaker {
	p.breakersMu.Lock()
	defer p.breakersMu.Unlock()

	cb, ok := p.breakers[serial]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     serial,
			Interval: 60 * time.Second,
			Timeout:  2 * p.cfg.Interval,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
		})
		p.breakers[serial] = cb
	}
	return cb
}

// noteConnected logs connect/disconnect transitions once, not every
// cycle.
func (p *Poller) noteConnected(serial string, up bool, err error) {
	p.connectedMu.Lock()
	was, seen := p.connected[serial]
	p.connected[serial] = up
	p.connectedMu.Unlock()

	switch {
	case up && (!seen || !was):
		logger.Printf("poll", "%s: device online", serial)
	case !up && (!seen || was):
		logger.Printf("poll", "%s: device unreachable: %v", serial, err)
	}
}
