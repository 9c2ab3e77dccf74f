package internal

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/voltsys/batlog/libraries/compression"
	"github.com/voltsys/batlog/libraries/encoding"
)

// Export archive: 4-byte magic, then a zstd frame whose plaintext is
// uvarint record count followed by (uvarint index, uvarint length,
// payload) per record.
var exportMagic = []byte("BLX1")

const exportZstdLevel = 3

// ExportLog writes a compressed archive of a device's complete log.
func ExportLog(logs *LogStore, serial string, w io.Writer) (int, error) {
	records, err := logs.ReadAll(serial)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, ErrNotFound
	}

	var body bytes.Buffer
	encoding.PutAsUVarint(&body, uint64(len(records)))
	for _, rec := range records {
		encoding.PutAsUVarint(&body, uint64(rec.Index))
		encoding.PutAsUVarint(&body, uint64(len(rec.Payload)))
		body.Write(rec.Payload)
	}

	compressed, err := compression.ZstdCompressLevel(nil, body.Bytes(), exportZstdLevel)
	if err != nil {
		return 0, err
	}

	if _, err := w.Write(exportMagic); err != nil {
		return 0, err
	}
	if _, err := w.Write(compressed); err != nil {
		return 0, err
	}
	return len(records), nil
}

// ImportLog reads an archive produced by ExportLog, appends its records
// to the device's log, and refreshes the sync metadata so the next
// cycle continues from the imported tail.
func ImportLog(logs *LogStore, meta *MetaStore, serial string, r io.Reader) (int, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	if len(raw) < len(exportMagic) || !bytes.Equal(raw[:len(exportMagic)], exportMagic) {
		return 0, fmt.Errorf("%w: bad archive magic", ErrInvalidArgument)
	}

	body, err := compression.ZstdDecompress(nil, raw[len(exportMagic):])
	if err != nil {
		return 0, err
	}

	br := bytes.NewReader(body)
	count := encoding.GetAsUVarint(br)
	records := make([]LogRecord, 0, count)
	for i := uint64(0); i < count; i++ {
		index := encoding.GetAsUVarint(br)
		length := encoding.GetAsUVarint(br)
		if length > MaxRecordPayload {
			return 0, fmt.Errorf("%w: archive record %d payload %d bytes", ErrCorruptEntry, i, length)
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(br, payload); err != nil {
			return 0, fmt.Errorf("%w: archive truncated at record %d", ErrCorruptEntry, i)
		}
		records = append(records, LogRecord{Index: uint32(index), Payload: payload})
	}

	if len(records) == 0 {
		return 0, nil
	}
	if err := logs.Append(serial, records); err != nil {
		return 0, err
	}

	prev, err := meta.Read(serial)
	if err != nil && err != ErrNotFound {
		return 0, err
	}
	tail := records[len(records)-1]
	next := SyncMeta{
		LastIndex:     tail.Index,
		RecordCount:   prev.RecordCount + uint32(len(records)),
		LastTimestamp: prev.LastTimestamp,
		LastHash:      RecordHash(tail.Payload),
	}
	if err := meta.Write(serial, next); err != nil {
		return 0, err
	}
	return len(records), nil
}

// ExportLogFile is ExportLog to a path, for the one-shot CLI mode.
func ExportLogFile(logs *LogStore, serial, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	count, err := ExportLog(logs, serial, f)
	if err != nil {
		f.Close()
		os.Remove(path)
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	return count, nil
}

// ImportLogFile is ImportLog from a path.
func ImportLogFile(logs *LogStore, meta *MetaStore, serial, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ImportLog(logs, meta, serial, f)
}
