package internal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	logFileExt  = ".bin"
	metaFileExt = ".met"

	recordHeaderSize = 8

	// Payloads larger than this cannot come from a real device snapshot;
	// a bigger length in a header means the file is damaged.
	MaxRecordPayload = 4096
)

var (
	ErrNotFound     = errors.New("not found")
	ErrCorruptEntry = errors.New("corrupt log entry")
)

// LogRecord is one telemetry sample as the device numbered it.
type LogRecord struct {
	Index   uint32 `json:"index"`
	Payload []byte `json:"payload"`
}

// LogStore keeps one append-only file per device serial. Records are
// stored as index:u32-LE length:u32-LE payload, back to back. Files are
// opened per call and never held between calls.
type LogStore struct {
	dir string
}

func NewLogStore(dir string) (*LogStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &LogStore{dir: dir}, nil
}

func (s *LogStore) Dir() string { return s.dir }

func (s *LogStore) path(serial string) string {
	return filepath.Join(s.dir, serial+logFileExt)
}

// Append writes records to the tail of a device's log, creating it on
// first use. A crash mid-write leaves a truncated trailing record that
// every scan below tolerates; there is no rollback.
func (s *LogStore) Append(serial string, records []LogRecord) error {
	if serial == "" {
		return fmt.Errorf("%w: empty serial", ErrInvalidArgument)
	}
	for _, rec := range records {
		if len(rec.Payload) > MaxRecordPayload {
			return fmt.Errorf("%w: payload %d bytes exceeds limit %d", ErrInvalidArgument, len(rec.Payload), MaxRecordPayload)
		}
	}
	if len(records) == 0 {
		return nil
	}

	f, err := os.OpenFile(s.path(serial), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	header := make([]byte, recordHeaderSize)
	for _, rec := range records {
		binary.LittleEndian.PutUint32(header[0:4], rec.Index)
		binary.LittleEndian.PutUint32(header[4:8], uint32(len(rec.Payload)))
		if _, err := w.Write(header); err != nil {
			f.Close()
			return err
		}
		if _, err := w.Write(rec.Payload); err != nil {
			f.Close()
			return err
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *LogStore) Exists(serial string) bool {
	_, err := os.Stat(s.path(serial))
	return err == nil
}

// scan walks complete records, invoking fn for each until it returns
// false. A truncated trailing header or payload, or a length past the
// payload limit, silently ends the scan: the valid prefix is the log.
// payloads=false skips payload bytes and passes records with nil
// payloads.
func (s *LogStore) scan(serial string, payloads bool, fn func(LogRecord) bool) (int, error) {
	f, err := os.Open(s.path(serial))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := st.Size()

	r := bufio.NewReader(f)
	header := make([]byte, recordHeaderSize)
	var offset int64
	var count int

	for {
		if _, err := io.ReadFull(r, header); err != nil {
			break // EOF or truncated header
		}
		index := binary.LittleEndian.Uint32(header[0:4])
		length := binary.LittleEndian.Uint32(header[4:8])

		if length > MaxRecordPayload {
			break // damaged header, end of valid data
		}
		if offset+recordHeaderSize+int64(length) > size {
			break // truncated payload
		}

		rec := LogRecord{Index: index}
		if payloads {
			rec.Payload = make([]byte, length)
			if _, err := io.ReadFull(r, rec.Payload); err != nil {
				break
			}
		} else {
			if _, err := r.Discard(int(length)); err != nil {
				break
			}
		}

		offset += recordHeaderSize + int64(length)
		count++
		if !fn(rec) {
			return count, nil
		}
	}

	return count, nil
}

// LastIndex returns the index of the last complete record.
func (s *LogStore) LastIndex(serial string) (uint32, error) {
	var last uint32
	count, err := s.scan(serial, false, func(rec LogRecord) bool {
		last = rec.Index
		return true
	})
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, ErrNotFound
	}
	return last, nil
}

// EntryCount returns the number of complete records.
func (s *LogStore) EntryCount(serial string) (int, error) {
	return s.scan(serial, false, func(LogRecord) bool { return true })
}

// ReadAll returns every complete record, in file order.
func (s *LogStore) ReadAll(serial string) ([]LogRecord, error) {
	var out []LogRecord
	_, err := s.scan(serial, true, func(rec LogRecord) bool {
		out = append(out, rec)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadEach streams complete records to fn; fn returning false stops the
// scan early.
func (s *LogStore) ReadEach(serial string, fn func(LogRecord) bool) error {
	_, err := s.scan(serial, true, fn)
	return err
}

// ReadLast returns up to n trailing records, oldest first.
func (s *LogStore) ReadLast(serial string, n int) ([]LogRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	ring := make([]LogRecord, 0, n)
	_, err := s.scan(serial, true, func(rec LogRecord) bool {
		if len(ring) == n {
			copy(ring, ring[1:])
			ring[n-1] = rec
		} else {
			ring = append(ring, rec)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return ring, nil
}

// Size returns the byte size of a device's log file.
func (s *LogStore) Size(serial string) (int64, error) {
	st, err := os.Stat(s.path(serial))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return st.Size(), nil
}

func (s *LogStore) Remove(serial string) error {
	err := os.Remove(s.path(serial))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

// Serials lists every device with a log file.
func (s *LogStore) Serials() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var serials []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, logFileExt) {
			continue
		}
		serials = append(serials, strings.TrimSuffix(name, logFileExt))
	}
	return serials, nil
}

// PurgeAll removes every log file. Metadata is purged separately.
func (s *LogStore) PurgeAll() (int, error) {
	serials, err := s.Serials()
	if err != nil {
		return 0, err
	}
	for _, serial := range serials {
		if err := s.Remove(serial); err != nil {
			return 0, err
		}
	}
	return len(serials), nil
}

type StoreInfo struct {
	Devices    int   `json:"devices"`
	Records    int   `json:"records"`
	TotalBytes int64 `json:"total_bytes"`
}

// Info scans every device log and totals records and bytes.
func (s *LogStore) Info() (StoreInfo, error) {
	serials, err := s.Serials()
	if err != nil {
		return StoreInfo{}, err
	}
	info := StoreInfo{Devices: len(serials)}
	for _, serial := range serials {
		count, err := s.EntryCount(serial)
		if err != nil && err != ErrNotFound {
			return StoreInfo{}, err
		}
		info.Records += count
		if size, err := s.Size(serial); err == nil {
			info.TotalBytes += size
		}
	}
	return info, nil
}
