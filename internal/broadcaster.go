package internal

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/voltsys/batlog/libraries/logger"
)

// StreamedRecord is one freshly appended record fanned out to live
// subscribers.
type StreamedRecord struct {
	Serial   string
	Index    uint32
	Hash     uint32
	Payload  []byte
	StoredAt uint32
}

// RecordFilter limits a subscription to a set of serials. Empty means
// all devices.
type RecordFilter struct {
	Serials map[string]struct{}
}

func (f RecordFilter) Matches(rec StreamedRecord) bool {
	if len(f.Serials) == 0 {
		return true
	}
	_, ok := f.Serials[rec.Serial]
	return ok
}

type RecordSub struct {
	id        uint64
	filter    RecordFilter
	sendCh    chan StreamedRecord
	createdAt time.Time

	sentCount    atomic.Uint64
	droppedCount atomic.Uint64
}

func (s *RecordSub) Records() <-chan StreamedRecord { return s.sendCh }

func (s *RecordSub) Stats() (sent, dropped uint64, uptime time.Duration) {
	return s.sentCount.Load(), s.droppedCount.Load(), time.Since(s.createdAt)
}

// RecordBroadcaster fans appended records out to stream subscribers.
// Delivery is best-effort: a subscriber that cannot keep up loses
// records rather than stalling sync cycles.
type RecordBroadcaster struct {
	subs   map[uint64]*RecordSub
	mu     sync.RWMutex
	nextID atomic.Uint64
	closed atomic.Bool
}

func NewRecordBroadcaster() *RecordBroadcaster {
	return &RecordBroadcaster{subs: make(map[uint64]*RecordSub)}
}

func (b *RecordBroadcaster) Subscribe(filter RecordFilter) *RecordSub {
	sub := &RecordSub{
		id:        b.nextID.Add(1),
		filter:    filter,
		sendCh:    make(chan StreamedRecord, 256),
		createdAt: time.Now(),
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	subCount := len(b.subs)
	b.mu.Unlock()

	metricStreamSubscribers.Set(float64(subCount))
	logger.Printf("stream", "Subscription %d created (%d total)", sub.id, subCount)
	return sub
}

func (b *RecordBroadcaster) Unsubscribe(sub *RecordSub) {
	b.mu.Lock()
	_, ok := b.subs[sub.id]
	if ok {
		delete(b.subs, sub.id)
		close(sub.sendCh)
	}
	subCount := len(b.subs)
	b.mu.Unlock()

	if ok {
		metricStreamSubscribers.Set(float64(subCount))
		logger.Printf("stream", "Subscription %d removed (%d remaining)", sub.id, subCount)
	}
}

func (b *RecordBroadcaster) Broadcast(rec StreamedRecord) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !sub.filter.Matches(rec) {
			continue
		}
		select {
		case sub.sendCh <- rec:
			sub.sentCount.Add(1)
		default:
			dropped := sub.droppedCount.Add(1)
			if dropped == 1 || dropped%100 == 0 {
				logger.Printf("stream", "Subscription %d buffer full, dropped %d records", sub.id, dropped)
			}
		}
	}
}

func (b *RecordBroadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *RecordBroadcaster) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}

	b.mu.Lock()
	for _, sub := range b.subs {
		close(sub.sendCh)
	}
	b.subs = make(map[uint64]*RecordSub)
	b.mu.Unlock()

	metricStreamSubscribers.Set(0)
	logger.Printf("stream", "Record broadcaster closed")
}
