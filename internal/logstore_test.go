package internal

import (
	"bytes"
	"encoding/binary"
	"os"
	"sort"
	"testing"
)

func newTestLogStore(t *testing.T) *LogStore {
	t.Helper()
	s, err := NewLogStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLogStore: %v", err)
	}
	return s
}

func rec(index uint32, payload string) LogRecord {
	return LogRecord{Index: index, Payload: []byte(payload)}
}

func TestAppendReadRoundTrip(t *testing.T) {
	s := newTestLogStore(t)

	want := []LogRecord{rec(10, "alpha"), rec(11, ""), rec(12, "gamma")}
	if err := s.Append("BAT-1", want); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.ReadAll("BAT-1")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Index != want[i].Index || !bytes.Equal(got[i].Payload, want[i].Payload) {
			t.Errorf("record %d: got {%d %q}, want {%d %q}",
				i, got[i].Index, got[i].Payload, want[i].Index, want[i].Payload)
		}
	}

	last, err := s.LastIndex("BAT-1")
	if err != nil || last != 12 {
		t.Errorf("LastIndex = %d, %v; want 12, nil", last, err)
	}
	count, err := s.EntryCount("BAT-1")
	if err != nil || count != 3 {
		t.Errorf("EntryCount = %d, %v; want 3, nil", count, err)
	}
}

func TestMissingLog(t *testing.T) {
	s := newTestLogStore(t)

	if s.Exists("nope") {
		t.Error("Exists true for missing log")
	}
	if _, err := s.LastIndex("nope"); err != ErrNotFound {
		t.Errorf("LastIndex: got %v, want %v", err, ErrNotFound)
	}
	if _, err := s.ReadAll("nope"); err != ErrNotFound {
		t.Errorf("ReadAll: got %v, want %v", err, ErrNotFound)
	}
	if err := s.Remove("nope"); err != ErrNotFound {
		t.Errorf("Remove: got %v, want %v", err, ErrNotFound)
	}
}

func TestTruncatedTrailingPayload(t *testing.T) {
	s := newTestLogStore(t)
	if err := s.Append("dev", []LogRecord{rec(1, "aaaa"), rec(2, "bbbb"), rec(3, "cccc")}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Chop two bytes off the last payload.
	path := s.path("dev")
	st, _ := os.Stat(path)
	if err := os.Truncate(path, st.Size()-2); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	last, err := s.LastIndex("dev")
	if err != nil || last != 2 {
		t.Errorf("LastIndex = %d, %v; want 2, nil", last, err)
	}
	got, err := s.ReadAll("dev")
	if err != nil || len(got) != 2 {
		t.Fatalf("ReadAll = %d records, %v; want 2, nil", len(got), err)
	}
	if got[1].Index != 2 || string(got[1].Payload) != "bbbb" {
		t.Errorf("surviving tail = {%d %q}", got[1].Index, got[1].Payload)
	}
}

func TestTruncatedTrailingHeader(t *testing.T) {
	s := newTestLogStore(t)
	if err := s.Append("dev", []LogRecord{rec(7, "data")}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// A partial header: 3 bytes where 8 are needed.
	f, err := os.OpenFile(s.path("dev"), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte{0x08, 0x00, 0x00})
	f.Close()

	count, err := s.EntryCount("dev")
	if err != nil || count != 1 {
		t.Errorf("EntryCount = %d, %v; want 1, nil", count, err)
	}
}

func TestOversizeLengthEndsScan(t *testing.T) {
	s := newTestLogStore(t)
	if err := s.Append("dev", []LogRecord{rec(1, "ok")}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// A header claiming a payload past the limit: end of valid data.
	header := make([]byte, recordHeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], 2)
	binary.LittleEndian.PutUint32(header[4:8], MaxRecordPayload+1)
	f, err := os.OpenFile(s.path("dev"), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.Write(header)
	f.Write(bytes.Repeat([]byte{0xEE}, 64))
	f.Close()

	got, err := s.ReadAll("dev")
	if err != nil || len(got) != 1 || got[0].Index != 1 {
		t.Errorf("ReadAll = %v, %v; want the single valid record", got, err)
	}
}

func TestAppendRejectsOversizePayload(t *testing.T) {
	s := newTestLogStore(t)
	big := LogRecord{Index: 1, Payload: make([]byte, MaxRecordPayload+1)}
	if err := s.Append("dev", []LogRecord{big}); err == nil {
		t.Error("oversize payload accepted")
	}
	if s.Exists("dev") {
		t.Error("file created for rejected append")
	}
}

func TestReadEachEarlyStop(t *testing.T) {
	s := newTestLogStore(t)
	if err := s.Append("dev", []LogRecord{rec(1, "a"), rec(2, "b"), rec(3, "c")}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var seen []uint32
	err := s.ReadEach("dev", func(r LogRecord) bool {
		seen = append(seen, r.Index)
		return len(seen) < 2
	})
	if err != nil {
		t.Fatalf("ReadEach: %v", err)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("seen = %v, want [1 2]", seen)
	}
}

func TestReadLast(t *testing.T) {
	s := newTestLogStore(t)
	if err := s.Append("dev", []LogRecord{rec(1, "a"), rec(2, "b"), rec(3, "c"), rec(4, "d")}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.ReadLast("dev", 2)
	if err != nil {
		t.Fatalf("ReadLast: %v", err)
	}
	if len(got) != 2 || got[0].Index != 3 || got[1].Index != 4 {
		t.Errorf("ReadLast = %v", got)
	}

	all, err := s.ReadLast("dev", 10)
	if err != nil || len(all) != 4 {
		t.Errorf("ReadLast(10) = %d records, %v; want 4", len(all), err)
	}
}

func TestSerialsAndPurge(t *testing.T) {
	s := newTestLogStore(t)
	for _, serial := range []string{"b", "a", "c"} {
		if err := s.Append(serial, []LogRecord{rec(1, "x")}); err != nil {
			t.Fatalf("Append(%s): %v", serial, err)
		}
	}

	serials, err := s.Serials()
	if err != nil {
		t.Fatalf("Serials: %v", err)
	}
	sort.Strings(serials)
	if len(serials) != 3 || serials[0] != "a" || serials[2] != "c" {
		t.Errorf("Serials = %v", serials)
	}

	info, err := s.Info()
	if err != nil || info.Devices != 3 || info.Records != 3 {
		t.Errorf("Info = %+v, %v", info, err)
	}

	purged, err := s.PurgeAll()
	if err != nil || purged != 3 {
		t.Fatalf("PurgeAll = %d, %v", purged, err)
	}
	if left, _ := s.Serials(); len(left) != 0 {
		t.Errorf("serials remain after purge: %v", left)
	}
}
