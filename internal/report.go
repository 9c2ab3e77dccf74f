package internal

import (
	"github.com/RoaringBitmap/roaring"
)

const maxGapRanges = 64

type IndexRange struct {
	From uint32 `json:"from"`
	To   uint32 `json:"to"`
}

// LogReport summarizes the index coverage of one device's log: which
// indices are present, where the gaps are, and how many records share
// an index (the duplication the sync engine accepts on wraparound).
type LogReport struct {
	Serial        string       `json:"serial"`
	Records       int          `json:"records"`
	UniqueIndices uint64       `json:"unique_indices"`
	Duplicates    int          `json:"duplicates"`
	MinIndex      uint32       `json:"min_index"`
	MaxIndex      uint32       `json:"max_index"`
	Missing       uint64       `json:"missing"`
	Gaps          []IndexRange `json:"gaps,omitempty"`
	GapsTruncated bool         `json:"gaps_truncated,omitempty"`
}

// BuildLogReport scans a device's log once and builds its coverage
// report.
func BuildLogReport(logs *LogStore, serial string) (LogReport, error) {
	report := LogReport{Serial: serial}
	present := roaring.New()

	err := logs.ReadEach(serial, func(rec LogRecord) bool {
		if present.Contains(rec.Index) {
			report.Duplicates++
		} else {
			present.Add(rec.Index)
		}
		report.Records++
		return true
	})
	if err != nil {
		return LogReport{}, err
	}
	if report.Records == 0 {
		return LogReport{}, ErrNotFound
	}

	report.UniqueIndices = present.GetCardinality()
	report.MinIndex = present.Minimum()
	report.MaxIndex = present.Maximum()

	span := uint64(report.MaxIndex-report.MinIndex) + 1
	report.Missing = span - report.UniqueIndices
	if report.Missing == 0 {
		return report, nil
	}

	// Walk the set indices and emit the holes between consecutive runs.
	it := present.Iterator()
	prev := report.MinIndex
	it.Next() // minimum, already in prev
	for it.HasNext() {
		cur := it.Next()
		if cur > prev+1 {
			if len(report.Gaps) == maxGapRanges {
				report.GapsTruncated = true
				break
			}
			report.Gaps = append(report.Gaps, IndexRange{From: prev + 1, To: cur - 1})
		}
		prev = cur
	}
	return report, nil
}
