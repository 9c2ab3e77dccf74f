package internal

import (
	"testing"
)

func TestLogReportContiguous(t *testing.T) {
	logs := newTestLogStore(t)
	if err := logs.Append("dev", []LogRecord{rec(5, "a"), rec(6, "b"), rec(7, "c")}); err != nil {
		t.Fatal(err)
	}

	report, err := BuildLogReport(logs, "dev")
	if err != nil {
		t.Fatalf("BuildLogReport: %v", err)
	}
	if report.Records != 3 || report.UniqueIndices != 3 || report.Duplicates != 0 {
		t.Errorf("report = %+v", report)
	}
	if report.MinIndex != 5 || report.MaxIndex != 7 || report.Missing != 0 || len(report.Gaps) != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestLogReportGapsAndDuplicates(t *testing.T) {
	logs := newTestLogStore(t)
	records := []LogRecord{
		rec(1, "a"), rec(2, "b"),
		rec(5, "c"),
		rec(5, "c2"), // wraparound duplicate
		rec(9, "d"), rec(10, "e"),
	}
	if err := logs.Append("dev", records); err != nil {
		t.Fatal(err)
	}

	report, err := BuildLogReport(logs, "dev")
	if err != nil {
		t.Fatalf("BuildLogReport: %v", err)
	}
	if report.Records != 6 || report.UniqueIndices != 5 || report.Duplicates != 1 {
		t.Errorf("report = %+v", report)
	}
	if report.Missing != 5 {
		t.Errorf("missing = %d, want 5", report.Missing)
	}
	wantGaps := []IndexRange{{From: 3, To: 4}, {From: 6, To: 8}}
	if len(report.Gaps) != len(wantGaps) {
		t.Fatalf("gaps = %v, want %v", report.Gaps, wantGaps)
	}
	for i, gap := range wantGaps {
		if report.Gaps[i] != gap {
			t.Errorf("gap %d = %+v, want %+v", i, report.Gaps[i], gap)
		}
	}
}

func TestLogReportMissingDevice(t *testing.T) {
	logs := newTestLogStore(t)
	if _, err := BuildLogReport(logs, "nope"); err != ErrNotFound {
		t.Errorf("got %v, want %v", err, ErrNotFound)
	}
}
