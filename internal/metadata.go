package internal

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

const syncMetaSize = 16

// SyncMeta describes the tail of a device's stored log: the index and
// payload hash of the most recently appended record, the running total
// of records ever appended, and when the last sync cycle ran.
type SyncMeta struct {
	LastIndex     uint32 `json:"last_index"`
	RecordCount   uint32 `json:"record_count"`
	LastTimestamp uint32 `json:"last_timestamp"`
	LastHash      uint32 `json:"last_hash"`
}

func (m SyncMeta) encode() []byte {
	buf := make([]byte, syncMetaSize)
	binary.LittleEndian.PutUint32(buf[0:4], m.LastIndex)
	binary.LittleEndian.PutUint32(buf[4:8], m.RecordCount)
	binary.LittleEndian.PutUint32(buf[8:12], m.LastTimestamp)
	binary.LittleEndian.PutUint32(buf[12:16], m.LastHash)
	return buf
}

func decodeSyncMeta(buf []byte) SyncMeta {
	return SyncMeta{
		LastIndex:     binary.LittleEndian.Uint32(buf[0:4]),
		RecordCount:   binary.LittleEndian.Uint32(buf[4:8]),
		LastTimestamp: binary.LittleEndian.Uint32(buf[8:12]),
		LastHash:      binary.LittleEndian.Uint32(buf[12:16]),
	}
}

// MetaStore persists one fixed 16-byte SyncMeta record per serial.
type MetaStore struct {
	dir string
}

func NewMetaStore(dir string) (*MetaStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &MetaStore{dir: dir}, nil
}

func (s *MetaStore) path(serial string) string {
	return filepath.Join(s.dir, serial+metaFileExt)
}

// Read returns the stored metadata. A missing or short file both read
// as NotFound: a short record means the last write never completed, and
// the sync engine treats that the same as a first sync.
func (s *MetaStore) Read(serial string) (SyncMeta, error) {
	buf, err := os.ReadFile(s.path(serial))
	if err != nil {
		if os.IsNotExist(err) {
			return SyncMeta{}, ErrNotFound
		}
		return SyncMeta{}, err
	}
	if len(buf) < syncMetaSize {
		return SyncMeta{}, ErrNotFound
	}
	return decodeSyncMeta(buf), nil
}

// Write replaces the metadata record atomically via a tmp-file rename.
func (s *MetaStore) Write(serial string, meta SyncMeta) error {
	if serial == "" {
		return fmt.Errorf("%w: empty serial", ErrInvalidArgument)
	}
	path := s.path(serial)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, meta.encode(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (s *MetaStore) Exists(serial string) bool {
	_, err := os.Stat(s.path(serial))
	return err == nil
}

func (s *MetaStore) Remove(serial string) error {
	err := os.Remove(s.path(serial))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

// PurgeAll removes every metadata record.
func (s *MetaStore) PurgeAll() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != metaFileExt {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
