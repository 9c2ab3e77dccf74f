package internal

import (
	"bytes"
	"testing"
)

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestLogStore(t)
	records := []LogRecord{rec(10, "alpha"), rec(11, ""), rec(12, "gamma")}
	if err := src.Append("dev", records); err != nil {
		t.Fatal(err)
	}

	var archive bytes.Buffer
	count, err := ExportLog(src, "dev", &archive)
	if err != nil || count != 3 {
		t.Fatalf("ExportLog = %d, %v", count, err)
	}

	dstDir := t.TempDir()
	dst, err := NewLogStore(dstDir)
	if err != nil {
		t.Fatal(err)
	}
	dstMeta, err := NewMetaStore(dstDir)
	if err != nil {
		t.Fatal(err)
	}

	imported, err := ImportLog(dst, dstMeta, "dev", &archive)
	if err != nil || imported != 3 {
		t.Fatalf("ImportLog = %d, %v", imported, err)
	}

	got, err := dst.ReadAll("dev")
	if err != nil || len(got) != 3 {
		t.Fatalf("ReadAll = %d records, %v", len(got), err)
	}
	for i := range records {
		if got[i].Index != records[i].Index || !bytes.Equal(got[i].Payload, records[i].Payload) {
			t.Errorf("record %d: got {%d %q}, want {%d %q}",
				i, got[i].Index, got[i].Payload, records[i].Index, records[i].Payload)
		}
	}

	m, err := dstMeta.Read("dev")
	if err != nil {
		t.Fatalf("meta read: %v", err)
	}
	if m.LastIndex != 12 || m.RecordCount != 3 || m.LastHash != RecordHash([]byte("gamma")) {
		t.Errorf("meta = %+v", m)
	}
}

func TestImportContinuesSync(t *testing.T) {
	src := newTestLogStore(t)
	if err := src.Append("dev", []LogRecord{rec(10, "A"), rec(11, "B")}); err != nil {
		t.Fatal(err)
	}
	var archive bytes.Buffer
	if _, err := ExportLog(src, "dev", &archive); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	logs, _ := NewLogStore(dir)
	meta, _ := NewMetaStore(dir)
	if _, err := ImportLog(logs, meta, "dev", &archive); err != nil {
		t.Fatal(err)
	}

	// The next cycle picks up from the imported tail.
	e := NewSyncEngine(logs, meta, DefaultSyncConfig())
	res, err := e.Sync("dev", []LogRecord{rec(11, "B"), rec(12, "C")})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Appended != 1 || res.FirstSync {
		t.Errorf("result = %+v, want 1 appended without first-sync", res)
	}
}

func TestImportRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	logs, _ := NewLogStore(dir)
	meta, _ := NewMetaStore(dir)

	if _, err := ImportLog(logs, meta, "dev", bytes.NewReader([]byte("nonsense archive"))); err == nil {
		t.Error("bad magic accepted")
	}
}

func TestExportMissingDevice(t *testing.T) {
	logs := newTestLogStore(t)
	var buf bytes.Buffer
	if _, err := ExportLog(logs, "nope", &buf); err != ErrNotFound {
		t.Errorf("got %v, want %v", err, ErrNotFound)
	}
}
