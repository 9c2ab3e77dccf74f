package internal

import "hash/crc32"

// RecordHash is the dedup hash over a record payload. CRC32/IEEE
// (reflected 0xEDB88320) matches what the battery firmware computes, so
// hashes stored by either side compare equal.
func RecordHash(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}
