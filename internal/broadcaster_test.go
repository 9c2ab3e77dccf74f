package internal

import (
	"testing"
)

func TestBroadcastDelivery(t *testing.T) {
	b := NewRecordBroadcaster()
	defer b.Close()

	all := b.Subscribe(RecordFilter{})
	onlyA := b.Subscribe(RecordFilter{Serials: map[string]struct{}{"A": {}}})

	b.Broadcast(StreamedRecord{Serial: "A", Index: 1})
	b.Broadcast(StreamedRecord{Serial: "B", Index: 2})

	if got := len(all.Records()); got != 2 {
		t.Errorf("unfiltered subscriber got %d records, want 2", got)
	}
	if got := len(onlyA.Records()); got != 1 {
		t.Errorf("filtered subscriber got %d records, want 1", got)
	}
	recA := <-onlyA.Records()
	if recA.Serial != "A" || recA.Index != 1 {
		t.Errorf("filtered record = %+v", recA)
	}
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	b := NewRecordBroadcaster()
	defer b.Close()

	sub := b.Subscribe(RecordFilter{})
	for i := 0; i < 300; i++ {
		b.Broadcast(StreamedRecord{Serial: "A", Index: uint32(i)})
	}

	sent, dropped, _ := sub.Stats()
	if sent != 256 {
		t.Errorf("sent = %d, want buffer capacity 256", sent)
	}
	if dropped != 44 {
		t.Errorf("dropped = %d, want 44", dropped)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewRecordBroadcaster()
	defer b.Close()

	sub := b.Subscribe(RecordFilter{})
	b.Unsubscribe(sub)

	if _, open := <-sub.Records(); open {
		t.Error("channel still open after unsubscribe")
	}
	if b.SubscriberCount() != 0 {
		t.Errorf("subscriber count = %d", b.SubscriberCount())
	}

	// Double unsubscribe must not panic.
	b.Unsubscribe(sub)
}

func TestBroadcastAfterCloseIsNoOp(t *testing.T) {
	b := NewRecordBroadcaster()
	sub := b.Subscribe(RecordFilter{})
	b.Close()

	b.Broadcast(StreamedRecord{Serial: "A", Index: 1})
	if _, open := <-sub.Records(); open {
		t.Error("record delivered after close")
	}
}
