package internal

import (
	"fmt"
	"sort"
	"time"

	"github.com/voltsys/batlog/libraries/logger"
)

type SyncStrategy string

const (
	// StrategyTail compares the stored tail (index + payload hash)
	// against the snapshot to decide what is new.
	StrategyTail SyncStrategy = "tail"
	// StrategyWindow reads the last N stored records back and skips any
	// incoming record whose (index, hash) pair is already present.
	StrategyWindow SyncStrategy = "window"
)

type SyncConfig struct {
	Strategy SyncStrategy
	// WrapGuard bounds the tail strategy's trust in monotonic indices:
	// when the stored tail index has scrolled out of the snapshot and is
	// below this threshold, the source is assumed not to have wrapped
	// yet and index filtering still applies.
	WrapGuard uint32
	// WindowSize is how many stored tail records the window strategy
	// reads back for dedup.
	WindowSize int
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{Strategy: StrategyTail, WrapGuard: 256, WindowSize: 32}
}

// SyncResult reports what one cycle decided.
type SyncResult struct {
	Appended     int
	Duplicates   int
	FirstSync    bool
	WrapDetected bool
	Ambiguous    bool
	Meta         SyncMeta
}

// SyncEngine reconciles ring-buffer snapshots against the stored log,
// appending only records not already durably stored. One cycle per
// serial runs to completion before the next; the engine does not retry
// on error, that belongs to the caller's schedule.
type SyncEngine struct {
	logs        *LogStore
	meta        *MetaStore
	cfg         SyncConfig
	broadcaster *RecordBroadcaster
	now         func() time.Time
}

func NewSyncEngine(logs *LogStore, meta *MetaStore, cfg SyncConfig) *SyncEngine {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyTail
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 32
	}
	return &SyncEngine{logs: logs, meta: meta, cfg: cfg, now: time.Now}
}

// SetBroadcaster attaches a live-stream fanout for appended records.
func (e *SyncEngine) SetBroadcaster(b *RecordBroadcaster) {
	e.broadcaster = b
}

// Sync runs one reconciliation cycle for a device. The snapshot may
// arrive in any index order and may be empty.
func (e *SyncEngine) Sync(serial string, snapshot []LogRecord) (SyncResult, error) {
	start := time.Now()
	var res SyncResult

	if serial == "" {
		return res, fmt.Errorf("%w: empty serial", ErrInvalidArgument)
	}
	if len(snapshot) == 0 {
		return res, nil
	}

	prev, err := e.meta.Read(serial)
	var fresh []LogRecord
	switch {
	case err == ErrNotFound:
		res.FirstSync = true
		fresh = append(fresh, snapshot...)
	case err != nil:
		return res, err
	case e.cfg.Strategy == StrategyWindow:
		fresh, err = e.selectWindow(serial, snapshot)
		if err != nil {
			return res, err
		}
	default:
		fresh = e.selectTail(prev, snapshot, &res)
	}

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].Index < fresh[j].Index })

	if len(fresh) > 0 {
		if err := e.logs.Append(serial, fresh); err != nil {
			return res, err
		}
	}
	res.Appended = len(fresh)
	res.Duplicates = len(snapshot) - len(fresh)

	// The refreshed tail is the highest-indexed snapshot record, not
	// merely the last one appended.
	tail := snapshot[0]
	for _, rec := range snapshot[1:] {
		if rec.Index > tail.Index {
			tail = rec
		}
	}
	meta := SyncMeta{
		LastIndex:     tail.Index,
		RecordCount:   prev.RecordCount + uint32(res.Appended),
		LastTimestamp: uint32(e.now().Unix()),
		LastHash:      RecordHash(tail.Payload),
	}
	if err := e.meta.Write(serial, meta); err != nil {
		return res, err
	}
	res.Meta = meta

	if e.broadcaster != nil {
		for _, rec := range fresh {
			e.broadcaster.Broadcast(StreamedRecord{
				Serial:   serial,
				Index:    rec.Index,
				Hash:     RecordHash(rec.Payload),
				Payload:  rec.Payload,
				StoredAt: meta.LastTimestamp,
			})
		}
	}

	metricSyncCycles.WithLabelValues(serial).Inc()
	metricSyncAppended.WithLabelValues(serial).Add(float64(res.Appended))
	metricSyncDuplicates.WithLabelValues(serial).Add(float64(res.Duplicates))
	if res.WrapDetected {
		metricSyncWraparounds.WithLabelValues(serial).Inc()
	}
	if res.Ambiguous {
		metricSyncAmbiguous.WithLabelValues(serial).Inc()
	}
	metricSyncDuration.Observe(time.Since(start).Seconds())

	switch {
	case res.FirstSync:
		logger.Printf("sync", "%s: first sync, stored %d records (tail index %d)", serial, res.Appended, meta.LastIndex)
	case res.WrapDetected:
		logger.Printf("sync", "%s: tail hash mismatch (source wrapped), re-stored all %d records", serial, res.Appended)
	case res.Ambiguous:
		logger.Printf("sync", "%s: tail index %d not in snapshot and past wrap guard, skipping cycle", serial, prev.LastIndex)
	case res.Appended > 0:
		logger.Printf("sync", "%s: appended %d records, skipped %d duplicates (tail index %d)", serial, res.Appended, res.Duplicates, meta.LastIndex)
	default:
		logger.Printf("debug-sync", "%s: nothing new (%d duplicates, tail index %d)", serial, res.Duplicates, meta.LastIndex)
	}

	return res, nil
}

// selectTail picks new records by comparing the stored tail against the
// snapshot.
func (e *SyncEngine) selectTail(prev SyncMeta, snapshot []LogRecord, res *SyncResult) []LogRecord {
	var tail *LogRecord
	for i := range snapshot {
		if snapshot[i].Index == prev.LastIndex {
			tail = &snapshot[i]
			break
		}
	}

	var fresh []LogRecord
	switch {
	case tail != nil && RecordHash(tail.Payload) == prev.LastHash:
		// Stored tail and snapshot agree: anything past it is new.
		for _, rec := range snapshot {
			if rec.Index > prev.LastIndex {
				fresh = append(fresh, rec)
			}
		}

	case tail != nil:
		// Same index, different content: the source's circular memory
		// wrapped over what we stored. Index filtering is no longer
		// trustworthy, so take everything and accept duplicates over
		// losing data.
		res.WrapDetected = true
		fresh = append(fresh, snapshot...)

	case prev.LastIndex < e.cfg.WrapGuard:
		// Tail scrolled out of the window but the index is too low for
		// the source to have wrapped: indices are still monotonic.
		for _, rec := range snapshot {
			if rec.Index > prev.LastIndex {
				fresh = append(fresh, rec)
			}
		}

	default:
		// Tail gone and the source may have wrapped: position unknown,
		// append nothing this cycle.
		res.Ambiguous = true
	}
	return fresh
}

// selectWindow dedups against the (index, hash) pairs of the stored
// tail window.
func (e *SyncEngine) selectWindow(serial string, snapshot []LogRecord) ([]LogRecord, error) {
	stored, err := e.logs.ReadLast(serial, e.cfg.WindowSize)
	if err != nil && err != ErrNotFound {
		return nil, err
	}

	seen := make(map[uint64]struct{}, len(stored))
	for _, rec := range stored {
		seen[pairKey(rec.Index, RecordHash(rec.Payload))] = struct{}{}
	}

	var fresh []LogRecord
	for _, rec := range snapshot {
		if _, dup := seen[pairKey(rec.Index, RecordHash(rec.Payload))]; dup {
			continue
		}
		fresh = append(fresh, rec)
	}
	return fresh, nil
}

func pairKey(index, hash uint32) uint64 {
	return uint64(index)<<32 | uint64(hash)
}
