package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintfIncludesCategory(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	RegisterCategories("sync", "nand")
	SetCategoryFilter(nil)

	Printf("sync", "appended %d records", 3)

	out := buf.String()
	if !strings.Contains(out, "sync") {
		t.Errorf("output missing category: %q", out)
	}
	if !strings.Contains(out, "appended 3 records") {
		t.Errorf("output missing message: %q", out)
	}
}

func TestCategoryFilter(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	RegisterCategories("sync", "poll")
	SetCategoryFilter([]string{"sync"})
	defer SetCategoryFilter(nil)

	Printf("poll", "filtered out")
	Printf("sync", "passes through")

	out := buf.String()
	if strings.Contains(out, "filtered out") {
		t.Errorf("filtered category logged: %q", out)
	}
	if !strings.Contains(out, "passes through") {
		t.Errorf("allowed category suppressed: %q", out)
	}
}

func TestDebugCategorySuppressedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	SetMinLevel(LevelInfo)
	SetCategoryFilter(nil)

	Printf("debug-sync", "noisy detail")
	if strings.Contains(buf.String(), "noisy detail") {
		t.Errorf("debug category logged at info level: %q", buf.String())
	}

	SetMinLevel(LevelDebug)
	defer SetMinLevel(LevelInfo)
	Printf("debug-sync", "noisy detail")
	if !strings.Contains(buf.String(), "noisy detail") {
		t.Error("debug category suppressed at debug level")
	}
}

func TestFormatHelpers(t *testing.T) {
	cases := []struct {
		got  string
		want string
	}{
		{FormatBytes(0), "0 B"},
		{FormatBytes(2048), "2.0 KB"},
		{FormatCount(999), "999"},
		{FormatCount(1500), "1.5K"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("got %q, want %q", c.got, c.want)
		}
	}
}
